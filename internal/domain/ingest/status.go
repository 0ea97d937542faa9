package ingest

import (
	"fmt"
	"time"
)

// State is the lifecycle stage of an ingest job.
type State string

// Ingest job states.
const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StatePartial    State = "partial"
	StateFailed     State = "failed"
)

// IsValid checks if the state is one of the supported values.
func (s State) IsValid() bool {
	switch s {
	case StateProcessing, StateCompleted, StatePartial, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether the job has finished.
func (s State) Terminal() bool { return s != StateProcessing }

// Status is the externally visible progress of one document ingest.
type Status struct {
	url       string
	state     State
	pages     int
	succeeded int
	failed    int
	message   string
	updatedAt time.Time
}

// Processing creates the initial status of a job.
func Processing(url string, at time.Time) Status {
	return Status{url: url, state: StateProcessing, updatedAt: at}
}

// Finished derives the terminal state from feed counts.
func Finished(url string, pages, succeeded, failed int, at time.Time) Status {
	s := Status{url: url, pages: pages, succeeded: succeeded, failed: failed, updatedAt: at}
	switch {
	case failed == 0:
		s.state = StateCompleted
	case succeeded == 0:
		s.state = StateFailed
	default:
		s.state = StatePartial
	}
	return s
}

// Failed creates a terminal status for a job that never reached the feed.
func Failed(url string, err error, at time.Time) Status {
	return Status{url: url, state: StateFailed, message: err.Error(), updatedAt: at}
}

// Reconstruct creates a Status from storage data.
func Reconstruct(url string, state State, pages, succeeded, failed int, message string, updatedAt time.Time) (Status, error) {
	if !state.IsValid() {
		return Status{}, fmt.Errorf("invalid ingest state %q", state)
	}
	return Status{
		url: url, state: state, pages: pages, succeeded: succeeded,
		failed: failed, message: message, updatedAt: updatedAt,
	}, nil
}

// WithMessage returns a copy carrying a diagnostic message.
func (s Status) WithMessage(msg string) Status {
	s.message = msg
	return s
}

// URL returns the document URL.
func (s *Status) URL() string { return s.url }

// State returns the lifecycle stage.
func (s *Status) State() State { return s.state }

// Pages returns the number of page records built.
func (s *Status) Pages() int { return s.pages }

// Succeeded returns the number of accepted records.
func (s *Status) Succeeded() int { return s.succeeded }

// Failed returns the number of rejected records.
func (s *Status) Failed() int { return s.failed }

// Message returns the diagnostic message, if any.
func (s *Status) Message() string { return s.message }

// UpdatedAt returns the time of the last transition.
func (s *Status) UpdatedAt() time.Time { return s.updatedAt }
