package application

import (
	"errors"
	"fmt"

	"github.com/kaizen2025/Formation/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrDraftNotFound is returned when no draft exists for the supplied identifier.
	ErrDraftNotFound = errors.New("application: draft not found")
	// ErrDraftExpired is returned when a draft was idle past its lifetime.
	ErrDraftExpired = errors.New("application: draft expired")
	// ErrFinalizeInProgress is returned when the same draft is already being finalized.
	ErrFinalizeInProgress = errors.New("application: finalize already in progress")
	// ErrUploadTooLarge is returned when an uploaded file exceeds the size ceiling.
	ErrUploadTooLarge = errors.New("application: upload too large")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports slots already held by another non-canceled session,
// or repeated within the same request. Conflicts follow request order.
type ConflictError struct {
	Conflicts []scheduler.Conflict
}

// First returns the first reported conflict.
func (e *ConflictError) First() scheduler.Conflict {
	if e == nil || len(e.Conflicts) == 0 {
		return scheduler.Conflict{}
	}
	return e.Conflicts[0]
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || len(e.Conflicts) == 0 {
		return "slot conflict"
	}
	first := e.Conflicts[0]
	var msg string
	switch {
	case first.Type == scheduler.ConflictTypeDuplicate:
		msg = fmt.Sprintf("slot %s selected twice", first.Slot)
	case first.GroupName != "":
		msg = fmt.Sprintf("slot %s already booked by %s", first.Slot, first.GroupName)
	default:
		msg = fmt.Sprintf("slot %s already booked", first.Slot)
	}
	if len(e.Conflicts) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(e.Conflicts)-1)
	}
	return msg
}

// StepError is returned when a wizard step is requested before its prerequisite.
type StepError struct {
	Requested DraftStep
	Current   DraftStep
	Redirect  DraftStep
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("step %d requires step %d first (draft is at step %d)", e.Requested, e.Redirect, e.Current)
}

// TransientError wraps an unexpected storage or filesystem failure the user may retry.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var tErr *TransientError
	if errors.As(err, &tErr) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// NotificationError records a confirmation that could not be delivered after commit.
type NotificationError struct {
	SessionID int64
	Err       error
}

// Error implements the error interface.
func (e *NotificationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("confirmation for session %d: %v", e.SessionID, e.Err)
}

// Unwrap exposes the dispatcher failure.
func (e *NotificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
