package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidVectorLength signals a patch vector whose length is not a multiple of 8.
	ErrInvalidVectorLength = errors.New("invalid vector length")
	// ErrEmptyQuery signals a free-text query without text.
	ErrEmptyQuery = errors.New("empty query")
	// ErrInvalidQueryEmbedding signals a missing or oversized query embedding.
	ErrInvalidQueryEmbedding = errors.New("invalid query embedding")
	// ErrInvalidRequest signals a malformed request (unknown mode, bad hit count).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRecordBuild signals that a document could not be turned into page records.
	ErrRecordBuild = errors.New("record build failure")
	// ErrFeedSubmission signals that the index rejected or never received a record.
	ErrFeedSubmission = errors.New("feed submission failure")
	// ErrQueryExecution signals a non-success status from the index on query.
	ErrQueryExecution = errors.New("query execution failed")
	// ErrSessionTimeout signals a session deadline; work may still be in flight.
	ErrSessionTimeout = errors.New("session timeout")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingProviderError signals an embedding collaborator failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrAnswerProviderError signals an answer-generation collaborator failure.
	ErrAnswerProviderError = errors.New("answer provider error")
)

// RecordBuildError pins a build failure to the offending page and patch.
type RecordBuildError struct {
	Page  int
	Patch int
	Err   error
}

func (e *RecordBuildError) Error() string {
	return fmt.Sprintf("%s: page %d patch %d: %v", ErrRecordBuild.Error(), e.Page, e.Patch, e.Err)
}

// Is matches ErrRecordBuild.
func (e *RecordBuildError) Is(target error) bool { return target == ErrRecordBuild }

func (e *RecordBuildError) Unwrap() error { return e.Err }

// FeedSubmissionError carries the record id and, when the index answered, its status code.
type FeedSubmissionError struct {
	ID         string
	StatusCode int
	Err        error
}

func (e *FeedSubmissionError) Error() string {
	msg := ErrFeedSubmission.Error() + ": id " + e.ID
	if e.StatusCode != 0 {
		msg += ": status " + strconv.Itoa(e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrFeedSubmission.
func (e *FeedSubmissionError) Is(target error) bool { return target == ErrFeedSubmission }

func (e *FeedSubmissionError) Unwrap() error { return e.Err }

// QueryExecutionError carries the status code returned by the index.
type QueryExecutionError struct {
	StatusCode int
	Message    string
}

func (e *QueryExecutionError) Error() string {
	msg := fmt.Sprintf("%s with status code %d", ErrQueryExecution.Error(), e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *QueryExecutionError) Unwrap() error { return ErrQueryExecution }

// NewSessionTimeout wraps err so that it matches both ErrSessionTimeout and err.
func NewSessionTimeout(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSessionTimeout, err)
}

// IsTimeout reports whether err is a session timeout or a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrSessionTimeout) || errors.Is(err, context.DeadlineExceeded)
}
