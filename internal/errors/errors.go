package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError carries a stable code alongside a human-readable message.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by code so sentinel comparisons survive wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

var (
	ErrValidation  = &AppError{Code: "MED_001", Message: "medication validation failed"}
	ErrNotFound    = &AppError{Code: "MED_002", Message: "medication not found"}
	ErrPersistence = &AppError{Code: "STORE_001", Message: "storage operation failed"}
	ErrScheduling  = &AppError{Code: "SCHED_001", Message: "notification scheduling failed"}

	ErrPinNotSet   = &AppError{Code: "AUTH_001", Message: "device pin not set"}
	ErrPinMismatch = &AppError{Code: "AUTH_002", Message: "device pin mismatch"}

	ErrScanUnavailable = &AppError{Code: "SCAN_001", Message: "image recognition unavailable"}

	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}
)

// Validation builds a validation error with a field-specific complaint.
func Validation(message string) *AppError {
	return &AppError{Code: ErrValidation.Code, Message: message}
}

// NotFound builds a not-found error for an unknown id.
func NotFound(kind, id string) *AppError {
	return &AppError{Code: ErrNotFound.Code, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// Persistence wraps a storage failure.
func Persistence(err error, message string) *AppError {
	return &AppError{Code: ErrPersistence.Code, Message: message, Cause: err}
}

// Scheduling wraps a notifier failure. Non-fatal to the mutation that
// triggered it.
func Scheduling(err error, message string) *AppError {
	return &AppError{Code: ErrScheduling.Code, Message: message, Cause: err}
}

func IsValidation(err error) bool  { return stderrors.Is(err, ErrValidation) }
func IsNotFound(err error) bool    { return stderrors.Is(err, ErrNotFound) }
func IsPersistence(err error) bool { return stderrors.Is(err, ErrPersistence) }
func IsScheduling(err error) bool  { return stderrors.Is(err, ErrScheduling) }

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}
