package user

import "time"

// OutcomeKind is the terminal classification of one dispatched record.
type OutcomeKind int

const (
	OutcomeImported OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeImported:
		return "imported"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of reconciling one record. Exactly one Outcome is
// produced per record number. Warnings counts soft side-effect failures
// (email verification or password update) that did not change the kind.
type Outcome struct {
	Kind         OutcomeKind
	RemoteUserID string
	Reason       string
	Warnings     int
}

func Imported(remoteUserID string) Outcome {
	return Outcome{Kind: OutcomeImported, RemoteUserID: remoteUserID}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// Failure is one entry of the final error report. RemoteUserID is almost
// always empty for a failed record; it is carried for completeness of the
// report schema.
type Failure struct {
	RecordNumber int
	SourceID     string
	RemoteUserID string
	PrimaryEmail string
	ErrorMessage string
	Timestamp    time.Time
}

// Summary is the aggregate accounting of a finished run.
type Summary struct {
	Total    int
	Imported int
	Skipped  int
	Warnings int
	Errors   int
	Failures []Failure
}
