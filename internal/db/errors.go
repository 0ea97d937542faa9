package db

import (
	"errors"
	"strconv"
)

// Sentinel errors for storage and index operations.
var (
	ErrKeyNotFound      = errors.New("db: key not found")
	ErrUnexpectedStatus = errors.New("db: unexpected status")
	ErrSessionClosed    = errors.New("db: session closed")
	ErrInvalidSchema    = errors.New("db: invalid schema")
)

// Op constants name the backend operation for error context.
const (
	OpHGetAll = "HGETALL"
	OpHSet    = "HSET"
	OpGet     = "GET"
	OpSet     = "SET"
	OpExpire  = "EXPIRE"

	OpPut    = "document.put"
	OpQuery  = "search.query"
	OpHealth = "state.health"
	OpDeploy = "application.deploy"
)

// Error wraps an underlying error with the operation name and, for HTTP
// backends, the response status code.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op + ": "
	if e.StatusCode != 0 {
		msg += "status " + strconv.Itoa(e.StatusCode) + ": "
	}
	return msg + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status carried by a db.Error, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
