package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"  // Invalid input
	ErrCatExecution   ErrorCategory = "execution"   // Provider or runtime failure
	ErrCatTimeout     ErrorCategory = "timeout"     // Operation timed out
	ErrCatRateLimit   ErrorCategory = "rate_limit"  // Provider rate limited
	ErrCatAuth        ErrorCategory = "auth"        // Missing or rejected credentials
	ErrCatNetwork     ErrorCategory = "network"     // Network connectivity
	ErrCatNotFound    ErrorCategory = "not_found"   // Resource not found
	ErrCatParse       ErrorCategory = "parse"       // Model output not recoverable
	ErrCatUnsupported ErrorCategory = "unsupported" // Input type not accepted
	ErrCatState       ErrorCategory = "state"       // Illegal state transition
	ErrCatInternal    ErrorCategory = "internal"    // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTransient creates a retryable provider failure.
func ErrTransient(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrNetwork creates a retryable connectivity error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "NETWORK",
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      "AUTH_FAILED",
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// FailureClass is the retry classification of a failed inference call.
type FailureClass string

const (
	ClassRateLimited FailureClass = "rate_limited"
	ClassTransient   FailureClass = "transient"
	ClassFatal       FailureClass = "fatal"
)

// ClassOf maps an error to its retry class. Unknown errors are fatal so
// that nothing is retried by accident.
func ClassOf(err error) FailureClass {
	if err == nil {
		return ""
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.Class
	}
	var domErr *DomainError
	if !errors.As(err, &domErr) {
		return ClassFatal
	}
	switch {
	case domErr.Category == ErrCatRateLimit:
		return ClassRateLimited
	case domErr.Retryable:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// IsRateLimited reports whether err was ultimately caused by provider rate limiting.
func IsRateLimited(err error) bool {
	return ClassOf(err) == ClassRateLimited
}

// InvocationError is raised when an inference call fails after exhausting
// its retries or hits a fatal cause.
type InvocationError struct {
	Role     Role
	Class    FailureClass
	Attempts int
	Cause    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %s failure after %d attempt(s): %v", e.Role, e.Class, e.Attempts, e.Cause)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// SanitizationError is raised when model output cannot be recovered as
// structured data after the single repair attempt.
type SanitizationError struct {
	Shape   string
	Reason  string
	Snippet string
	Cause   error
}

func (e *SanitizationError) Error() string {
	msg := fmt.Sprintf("sanitizing %s response: %s", e.Shape, e.Reason)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *SanitizationError) Unwrap() error {
	return e.Cause
}

// UnsupportedInputError rejects a submitted file before it reaches the pipeline.
type UnsupportedInputError struct {
	MimeType string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported file type %q: upload a text, markdown, CSV, JSON or image file", e.MimeType)
}

// SessionNotFoundError is returned for streams or queries against an unknown session.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("analysis session not found: %s", e.ID)
}

// IsSessionNotFound reports whether err is a SessionNotFoundError.
func IsSessionNotFound(err error) bool {
	var nf *SessionNotFoundError
	return errors.As(err, &nf)
}

// IsUnsupportedInput reports whether err is an UnsupportedInputError.
func IsUnsupportedInput(err error) bool {
	var ui *UnsupportedInputError
	return errors.As(err, &ui)
}

// Predefined error codes
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDuplicateDebate   = "DUPLICATE_DEBATE"
	CodeEmptyDocument     = "EMPTY_DOCUMENT"
	CodeDocumentTooLarge  = "DOCUMENT_TOO_LARGE"
	CodeUnknownRole       = "UNKNOWN_ROLE"
	CodeUnknownProvider   = "UNKNOWN_PROVIDER"
	CodeMissingAPIKey     = "MISSING_API_KEY"
	CodeEmptyResponse     = "EMPTY_RESPONSE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeNoFactors         = "NO_FACTORS"
	CodeDuplicateSession  = "DUPLICATE_SESSION"
)
