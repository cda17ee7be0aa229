// Package engine defines the error taxonomy shared by the ledger, alert
// evaluator, and scanners. Callers classify failures with errors.As/Is:
// validation and not-found errors are reported and never retried, upstream
// errors are retried with bounded backoff by the scheduler, storage errors
// are fatal for the operation in flight.
package engine

import (
	"errors"
	"fmt"
)

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing or already-closed entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// UpstreamError reports a market-data or notification-channel failure.
// Distinguishes "could not evaluate" from "no qualifying results".
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for the given operation.
func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// StorageError reports a repository transaction failure. Fatal for the
// single operation in flight; the store guarantees no partial commit.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for the given operation.
func Storage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
