// internal/compliance/errors.go
package compliance

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures that are not compliance findings.
type ErrorCode string

const (
	ErrCodeInvalidOperation    ErrorCode = "INVALID_OPERATION"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeExternalUnavailable ErrorCode = "EXTERNAL_SYSTEM_UNAVAILABLE"
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
)

// DomainError carries a code so callers can branch with errors.Is against the
// sentinels below without string matching.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidOperation    = &DomainError{Code: ErrCodeInvalidOperation, Message: "invalid operation"}
	ErrNotFound            = &DomainError{Code: ErrCodeNotFound, Message: "not found"}
	ErrExternalUnavailable = &DomainError{Code: ErrCodeExternalUnavailable, Message: "external system unavailable"}
	ErrConcurrencyConflict = &DomainError{Code: ErrCodeConcurrencyConflict, Message: "concurrency conflict"}
	ErrValidationFailed    = &DomainError{Code: ErrCodeValidationFailed, Message: "validation failed"}
)

func NewInvalidOperation(format string, args ...interface{}) error {
	return &DomainError{Code: ErrCodeInvalidOperation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(resource string, key interface{}) error {
	return &DomainError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, key)}
}

func NewExternalUnavailable(source string, err error) error {
	return &DomainError{Code: ErrCodeExternalUnavailable, Message: source + " lookup failed", Err: err}
}

func NewConcurrencyConflict(format string, args ...interface{}) error {
	return &DomainError{Code: ErrCodeConcurrencyConflict, Message: fmt.Sprintf(format, args...)}
}

func NewValidationFailed(message string, err error) error {
	return &DomainError{Code: ErrCodeValidationFailed, Message: message, Err: err}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
