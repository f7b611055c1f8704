// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors shared across the reconciliation core
var (
	ErrNotConnected     = errors.New("device not connected")
	ErrMutexHeld        = errors.New("configuration operation in progress")
	ErrQueueFull        = errors.New("request queue full")
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource in unexpected state")
	ErrSubmitFailed     = errors.New("device rejected command script")
)

// MutexError reports a failed lease acquisition. RetryAfter carries the
// suggested wait before the caller tries again (roughly the lease timeout).
type MutexError struct {
	Device     string
	Holder     string
	RetryAfter time.Duration
}

func (e *MutexError) Error() string {
	msg := fmt.Sprintf("configuration operation in progress on %s", e.Device)
	if e.Holder != "" {
		msg += " (held since " + e.Holder + ")"
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry in %s", e.RetryAfter)
	}
	return msg
}

func (e *MutexError) Unwrap() error {
	return ErrMutexHeld
}

// NewMutexError creates a mutex error with a retry hint
func NewMutexError(device, holder string, retryAfter time.Duration) *MutexError {
	return &MutexError{
		Device:     device,
		Holder:     holder,
		RetryAfter: retryAfter,
	}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// ConflictError represents a shared resource found in an unexpected state,
// typically a reference count that disagrees with the diff being applied.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Detail)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a conflict error
func NewConflictError(resource, detail string) *ConflictError {
	return &ConflictError{Resource: resource, Detail: detail}
}

// SubmitError wraps a failure reported by the device while executing a
// command script. Output holds whatever the device returned.
type SubmitError struct {
	Device string
	Output string
	Err    error
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("script submission to %s failed", e.Device)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmitError) Unwrap() error {
	return ErrSubmitFailed
}
