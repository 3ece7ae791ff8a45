package models

import (
	"errors"
	"fmt"
)

// ==============================================
// CUSTOM ERROR TYPES
// ==============================================

// AppError represents a structured application error
type AppError struct {
	Code    string // Error code for display/logging
	Message string // Human-readable message
	Err     error  // Underlying error (for logging)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ==============================================
// PREDEFINED ERRORS
// ==============================================

// Lookup/Validation Errors
var (
	ErrTuitionNotFound   = errors.New("tuition record not found")
	ErrStudentIDTooShort = errors.New("student id too short")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidOTPCode    = errors.New("OTP code must be 6 digits")
)

// Payment Errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentRejected     = errors.New("payment rejected")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNoTuitionSelected   = errors.New("no tuition info loaded for submission")
)

// OTP Errors
var (
	ErrOTPExpired        = errors.New("OTP has expired")
	ErrOTPInvalid        = errors.New("invalid OTP")
	ErrOTPMaxAttempts    = errors.New("maximum OTP attempts exceeded")
	ErrOTPNotFound       = errors.New("OTP challenge not found")
	ErrOTPResendCooldown = errors.New("please wait before requesting another OTP")
)

// Collaborator/Transport Errors
var (
	ErrTransport    = errors.New("collaborator request failed")
	ErrRateLimited  = errors.New("too many requests")
	ErrUnauthorized = errors.New("unauthorized")
	ErrSagaNotFound = errors.New("saga record not found")
)

// Persistence Errors
var (
	ErrCorruptSnapshot = errors.New("persisted snapshot is corrupt")
)

// ==============================================
// ERROR CODES
// ==============================================
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeOTPExpired          = "OTP_EXPIRED"
	ErrCodeOTPInvalid          = "OTP_INVALID"
	ErrCodeOTPMaxAttempts      = "OTP_MAX_ATTEMPTS"
	ErrCodePaymentRejected     = "PAYMENT_REJECTED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeTransport           = "TRANSPORT_ERROR"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// ==============================================
// HELPER FUNCTIONS
// ==============================================

// IsNotFoundError checks if error is a "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTuitionNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrOTPNotFound) ||
		errors.Is(err, ErrSagaNotFound)
}

// IsValidationError checks if error is recoverable bad input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrStudentIDTooShort) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOTPCode) ||
		errors.Is(err, ErrNoTuitionSelected)
}

// IsTerminalOTPError checks if error voids the whole challenge rather than a
// single attempt
func IsTerminalOTPError(err error) bool {
	return errors.Is(err, ErrOTPExpired) ||
		errors.Is(err, ErrOTPMaxAttempts)
}
