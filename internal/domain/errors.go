package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent handling across server, client, and engine.
// Remote and storage failures are expected outcomes and travel as values;
// nothing here is ever used to crash the process.

// ErrNotFound indicates a transaction id unknown to the store.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates malformed input rejected at the mutation boundary.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnreachable indicates the remote store could not be reached at the
// transport level (the offline case). Distinguished from ErrRemote so
// telemetry can tell "no connectivity" from "reachable but rejected".
type ErrUnreachable struct {
	Err error
}

func (e *ErrUnreachable) Error() string {
	return fmt.Sprintf("remote store unreachable: %v", e.Err)
}

func (e *ErrUnreachable) Unwrap() error { return e.Err }

// ErrRemote indicates the remote store answered with a non-2xx status.
type ErrRemote struct {
	Op      string
	Status  int
	Message string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("remote store rejected %s: status %d: %s", e.Op, e.Status, e.Message)
}

// ErrCircuitOpen indicates the circuit breaker is refusing remote calls.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrStorage indicates a local persistence failure. The previously stored
// value is guaranteed intact; the caller decides whether to retry or carry
// on with the in-memory view.
type ErrStorage struct {
	Slot string
	Err  error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("local storage failure on %s: %v", e.Slot, e.Err)
}

func (e *ErrStorage) Unwrap() error { return e.Err }

// Offline reports whether err represents absent connectivity rather than a
// remote rejection. Circuit-open counts as offline: the breaker is telling
// us the store has been unreachable.
func Offline(err error) bool {
	var unreachable *ErrUnreachable
	var open *ErrCircuitOpen
	return errors.As(err, &unreachable) || errors.As(err, &open)
}

// FailureKind labels an error for metrics.
func FailureKind(err error) string {
	var notFound *ErrNotFound
	var remote *ErrRemote
	switch {
	case err == nil:
		return "none"
	case Offline(err):
		return "offline"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &remote):
		return "rejected"
	}
	return "other"
}
