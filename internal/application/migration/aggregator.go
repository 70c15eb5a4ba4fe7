package migration

import (
	"sort"
	"sync"
	"time"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
)

// Aggregator accumulates per-record outcomes. Record is safe for concurrent
// use by in-flight workers; counters are monotonic. Unlike counters, failure
// details are kept for every failed record so the error report is complete.
type Aggregator struct {
	mu       sync.Mutex
	total    int
	imported int
	skipped  int
	warnings int
	errors   int
	failures []domain.Failure

	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

func (a *Aggregator) Record(unit DispatchUnit, out domain.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.warnings += out.Warnings

	switch out.Kind {
	case domain.OutcomeImported:
		a.imported++
	case domain.OutcomeSkipped:
		a.skipped++
	case domain.OutcomeFailed:
		a.errors++
		a.failures = append(a.failures, domain.Failure{
			RecordNumber: unit.Number,
			SourceID:     unit.User.ID,
			RemoteUserID: out.RemoteUserID,
			PrimaryEmail: unit.primaryEmail(),
			ErrorMessage: out.Reason,
			Timestamp:    a.now(),
		})
	}
}

// Finalize returns the run summary. Valid once the engine is done; the
// failure list is sorted by record number regardless of completion order.
func (a *Aggregator) Finalize() domain.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	failures := make([]domain.Failure, len(a.failures))
	copy(failures, a.failures)
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].RecordNumber < failures[j].RecordNumber
	})

	return domain.Summary{
		Total:    a.total,
		Imported: a.imported,
		Skipped:  a.skipped,
		Warnings: a.warnings,
		Errors:   a.errors,
		Failures: failures,
	}
}
