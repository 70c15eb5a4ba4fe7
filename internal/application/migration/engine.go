package migration

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/source"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// State is the engine's admission state.
type State int32

const (
	StateRunning State = iota
	StatePaused
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// DispatchUnit is one admitted record. Number is 1-based and assigned in
// source order; it is the sole ordering key used in reporting. User is only
// meaningful when normalization succeeded.
type DispatchUnit struct {
	Number     int
	Raw        source.Record
	User       domain.User
	normalized bool
}

func (u DispatchUnit) primaryEmail() string {
	if !u.normalized {
		return ""
	}
	return u.User.PrimaryEmail()
}

type recordReconciler interface {
	Reconcile(ctx context.Context, u domain.User) (domain.Outcome, error)
}

type EngineConfig struct {
	Concurrency int
	Offset      int
	Limit       int
	DryRun      bool
}

// Engine pulls records from the source, fans them out to at most Concurrency
// in-flight reconciliations and classifies every record's outcome exactly
// once. On a throttling signal it stops admitting new records, lets in-flight
// work finish, retries the throttled record once after its wait and resumes.
type Engine struct {
	source     source.Source
	reconciler recordReconciler
	results    *Aggregator
	cfg        EngineConfig
	logger     *zap.Logger

	state atomic.Int32

	mu          sync.Mutex
	pausedUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

const defaultConcurrency = 10

func NewEngine(src source.Source, reconciler recordReconciler, results *Aggregator, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:     src,
		reconciler: reconciler,
		results:    results,
		cfg:        cfg,
		logger:     logger.Named("engine"),
		now:        time.Now,
		sleep:      sleepWithContext,
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Run drives the migration to completion and returns the final summary. A
// non-nil error means the source failed mid-stream or the run was cancelled;
// outcomes recorded up to that point are still in the summary.
func (e *Engine) Run(ctx context.Context) (domain.Summary, error) {
	e.setState(StateRunning)

	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var wg sync.WaitGroup

	var runErr error
	position := 0
	admitted := 0

	for {
		// a slot is taken before the source is pulled, so at most
		// Concurrency records are ever in flight and the source is never
		// read ahead of capacity
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		// the gate may have moved while this goroutine was parked waiting
		// for a slot. Check it with the slot already held so a freed slot
		// cannot turn into an admission inside the pause window.
		if err := e.waitWhilePaused(ctx); err != nil {
			sem.Release(1)
			runErr = err
			break
		}

		rec, err := e.source.Next(ctx)
		if err == io.EOF {
			sem.Release(1)
			break
		}
		if err != nil {
			sem.Release(1)
			runErr = fmt.Errorf("record source failed: %w", err)
			break
		}

		position++
		if position <= e.cfg.Offset {
			sem.Release(1)
			continue
		}
		if e.cfg.Limit > 0 && admitted >= e.cfg.Limit {
			sem.Release(1)
			break
		}
		admitted++

		unit := DispatchUnit{Number: position, Raw: rec}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			e.process(ctx, unit)
		}()
	}

	e.setState(StateDraining)
	wg.Wait()
	e.setState(StateDone)

	e.logger.Info("run finished",
		zap.Int("admitted", admitted),
		zap.Bool("clean", runErr == nil))

	return e.results.Finalize(), runErr
}

func (e *Engine) process(ctx context.Context, unit DispatchUnit) {
	u, err := Normalize(unit.Raw)
	if err != nil {
		e.results.Record(unit, domain.Failed(err.Error()))
		return
	}
	unit.User = u
	unit.normalized = true

	if e.cfg.DryRun {
		e.results.Record(unit, domain.Skipped("dry run, no remote call"))
		return
	}

	e.results.Record(unit, e.reconcileWithRetry(ctx, unit))
}

// reconcileWithRetry runs one record to a terminal outcome. A throttled
// attempt produces no outcome; only its single retry does. The retry happens
// in this worker's own slot, so the ceiling is never exceeded. A retry that
// throttles again fails the record rather than recursing.
func (e *Engine) reconcileWithRetry(ctx context.Context, unit DispatchUnit) domain.Outcome {
	out, err := e.reconciler.Reconcile(ctx, unit.User)
	rl, throttled := domain.IsRateLimit(err)
	if !throttled {
		if err != nil {
			return domain.Failed(err.Error())
		}
		return out
	}

	wait := rl.RetryAfter + time.Second
	e.pauseFor(wait)
	e.logger.Warn("rate limited, pausing admission",
		zap.Int("record", unit.Number),
		zap.Duration("wait", wait))

	if !e.sleep(ctx, wait) {
		return domain.Failed(fmt.Sprintf("cancelled while rate limited: %v", ctx.Err()))
	}

	out, err = e.reconciler.Reconcile(ctx, unit.User)
	if _, again := domain.IsRateLimit(err); again {
		return domain.Failed("rate limited after retry")
	}
	if err != nil {
		return domain.Failed(err.Error())
	}
	return out
}

// pauseFor extends the shared admission gate. Overlapping throttle signals
// share one window: the gate moves to the furthest deadline, it does not
// accumulate waits.
func (e *Engine) pauseFor(wait time.Duration) {
	deadline := e.now().Add(wait)

	e.mu.Lock()
	defer e.mu.Unlock()
	if deadline.After(e.pausedUntil) {
		e.pausedUntil = deadline
	}
}

func (e *Engine) waitWhilePaused(ctx context.Context) error {
	for {
		e.mu.Lock()
		until := e.pausedUntil
		e.mu.Unlock()

		remaining := until.Sub(e.now())
		if remaining <= 0 {
			e.setState(StateRunning)
			return nil
		}

		e.setState(StatePaused)
		if !e.sleep(ctx, remaining) {
			return ctx.Err()
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
