package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")

	// Workflow rules
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReopenLimitExceeded = errors.New("reopen limit exceeded")
	ErrConcurrencyConflict = errors.New("ticket was modified concurrently")
	ErrNoActiveUndoWindow  = errors.New("no active undo window")

	// ErrTimerRaceIgnored marks a timer that fired against a ticket whose state
	// already moved on. It is logged, never returned to a user.
	ErrTimerRaceIgnored = errors.New("timer fired against changed state")

	// Lookups
	ErrNotFound       = errors.New("resource not found")
	ErrTicketNotFound = fmt.Errorf("ticket %w", ErrNotFound)

	// Generic
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RuleError carries the violated rule in human terms while still matching
// its category sentinel through errors.Is.
type RuleError struct {
	Kind   error
	Reason string
}

func (e *RuleError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Reason
}

func (e *RuleError) Unwrap() error {
	return e.Kind
}

// NewRuleError builds a RuleError for the given category.
func NewRuleError(kind error, format string, args ...any) *RuleError {
	return &RuleError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports an action that is not legal from the current status.
func InvalidTransition(status, action string) error {
	return NewRuleError(ErrInvalidTransition, "action %q is not allowed while ticket is %s", action, status)
}

// PermissionDenied reports a failed role or ownership guard.
func PermissionDenied(format string, args ...any) error {
	return NewRuleError(ErrPermissionDenied, format, args...)
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}





// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error lists every failed rule so callers see why, not just that, it failed.
func (v *ValidationErrors) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(v.Errors[field], "; "))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, ", "))
}

// Unwrap lets errors.Is(err, ErrValidation) match field errors.
func (v *ValidationErrors) Unwrap() error {
	return ErrValidation
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (v *ValidationErrors) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
