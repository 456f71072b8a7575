package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfirmationDeclined is returned when the user aborts a destructive action.
	ErrConfirmationDeclined = errors.New("confirmation declined")
	// ErrUnknownStatus is returned for values outside the three board columns.
	ErrUnknownStatus = errors.New("unknown status")
	// ErrDuplicateRequest is returned when a create with the same idempotency
	// key is still being processed.
	ErrDuplicateRequest = errors.New("create already in progress")
)

// TransportError reports a network failure or a non-success HTTP response
// from the collection backend.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError reports a task that the backend does not hold.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}

// ValidationError maps field names to the reason they were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid task: " + strings.Join(parts, "; ")
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
