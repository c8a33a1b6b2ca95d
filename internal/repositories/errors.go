package repositories

import (
	"errors"
	"fmt"
)

// Error is the concrete RepositoryError used by the in-tree backends.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// NewNotFound builds a not-found repository error for the given operation.
func NewNotFound(op string, err error) *Error {
	return &Error{op: op, err: err, notFound: true}
}

// NewConflict builds a conflict repository error for the given operation.
func NewConflict(op string, err error) *Error {
	return &Error{op: op, err: err, conflict: true}
}

// NewUnavailable builds an unavailable repository error for the given operation.
func NewUnavailable(op string, err error) *Error {
	return &Error{op: op, err: err, unavailable: true}
}

// NewInternal builds an uncategorised repository error.
func NewInternal(op string, err error) *Error {
	return &Error{op: op, err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing row.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a constraint conflict.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the error represents a backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func asRepositoryError(err error) (RepositoryError, bool) {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr, true
	}
	return nil, false
}
