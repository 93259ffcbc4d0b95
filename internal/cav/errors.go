package cav

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is. Each typed error below matches exactly one of
// these (ValidationError may additionally match ErrMalformed).
var (
	ErrValidation     = errors.New("validation failed")
	ErrMalformed      = errors.New("malformed backup file")
	ErrNotFound       = errors.New("not found")
	ErrIntegrity      = errors.New("integrity check failed")
	ErrPartialFailure = errors.New("partial failure")
	ErrStorage        = errors.New("storage error")
)

// ValidationError reports malformed input to an append or import.
type ValidationError struct {
	Field     string
	Reason    string
	malformed bool
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NewMalformedError returns a ValidationError that also matches ErrMalformed.
func NewMalformedError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, malformed: true}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.malformed && target == ErrMalformed)
}

// NotFoundError reports an unknown backup or event ID.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IntegrityError reports a checksum mismatch between a backup's stored digest
// and the digest recomputed over its payload.
type IntegrityError struct {
	BackupID string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("backup %s failed integrity check: stored checksum %s, computed %s",
		e.BackupID, shortChecksum(e.Expected), shortChecksum(e.Actual))
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// BucketError records a failure for a single bucket during restore.
type BucketError struct {
	Bucket  string `json:"bucket"`
	Message string `json:"error"`
}

// PartialFailureError summarizes buckets that failed during an otherwise
// completed restore. It is carried on the RestoreReport, never returned
// as the restore's error.
type PartialFailureError struct {
	Failed []BucketError
}

func (e *PartialFailureError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Bucket
	}
	return fmt.Sprintf("%d bucket(s) failed to restore: %s", len(e.Failed), strings.Join(names, ", "))
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

// StorageError wraps a failure reported by the BucketStore collaborator.
type StorageError struct {
	Op     string
	Bucket string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Bucket, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

func shortChecksum(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
