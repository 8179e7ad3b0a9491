package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by every operation of a client that has
	// no driver.
	ErrNotConfigured = errors.New("remote backend not configured")

	// ErrNotFound is returned when a single-record operation targets an id
	// the remote does not hold.
	ErrNotFound = errors.New("record not found")
)

// RemoteError represents a failed remote operation.
// It carries the operation and table context plus the driver error.
type RemoteError struct {
	Operation string // e.g., "BatchUpsert", "Read", "Subscribe"
	Table     string
	RecordID  string // Optional: affected record id
	Message   string // Optional: human-readable detail
	Err       error  // Optional: underlying error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	target := e.Table
	if e.RecordID != "" {
		target = fmt.Sprintf("%s/%s", e.Table, e.RecordID)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %s failed: %s", e.Operation, target, msg)
}

// Unwrap returns the underlying error for error wrapping
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the failure was a missing record.
func (e *RemoteError) IsNotFound() bool {
	return errors.Is(e.Err, ErrNotFound)
}

// NewRemoteError creates a new RemoteError
func NewRemoteError(operation, table string, err error) *RemoteError {
	return &RemoteError{
		Operation: operation,
		Table:     table,
		Err:       err,
	}
}

// WithRecordID adds the record id to the error for context
func (e *RemoteError) WithRecordID(id string) *RemoteError {
	e.RecordID = id
	return e
}

// WithMessage sets a human-readable message
func (e *RemoteError) WithMessage(msg string) *RemoteError {
	e.Message = msg
	return e
}

// wrap returns nil for a nil err, otherwise a RemoteError. Sentinel errors
// from this package are returned unwrapped.
func wrap(operation, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotConfigured) {
		return err
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return NewRemoteError(operation, table, err)
}
