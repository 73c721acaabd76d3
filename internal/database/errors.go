package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nfrund/relaychat/internal/domain"
)

// Common database errors that can be checked using errors.Is(). ErrNotFound and
// ErrAlreadyExists alias the domain sentinels so callers above the store layer
// never import this package to classify failures.
var (
	ErrNotFound      = domain.ErrNotFound
	ErrAlreadyExists = domain.ErrAlreadyExists

	// ErrNotConnected is returned when no healthy session is available.
	ErrNotConnected = errors.New("database not connected")

	// ErrInvalidInput is returned when a record is missing required fields.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrQueryFailed is returned when a query execution fails.
	ErrQueryFailed = errors.New("query execution failed")
)

// DBError represents a database error with additional context.
type DBError struct {
	err     error
	context string
	query   string
}

// NewDBError creates a new DBError with the given error and context.
// The context should describe what operation was being performed.
func NewDBError(err error, context string) *DBError {
	return &DBError{err: err, context: context}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s (query: %s)", msg, e.query)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// WrapError wraps an error with additional context.
// If the error is already a DBError, the contexts are chained.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return &DBError{err: dbErr.err, context: context + ": " + dbErr.context, query: dbErr.query}
	}
	return NewDBError(err, context)
}

// isUniqueViolation reports whether err comes from a unique index rejecting a write.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists")
}
