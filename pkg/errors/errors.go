// Package errors provides a unified error handling mechanism for SafeAlign.
// It defines a structured error system with error codes, types, and helpful
// formatting capabilities to standardize error handling across the trainer.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation indicates invalid input or parameters
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConfiguration indicates an invalid or inconsistent configuration
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"

	// ErrorTypeNotFound indicates resource not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeConflict indicates resource conflict (e.g., duplicate)
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInfrastructure indicates infrastructure/external service error
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE"

	// ErrorTypeConsistency indicates an internal invariant violation
	ErrorTypeConsistency ErrorType = "CONSISTENCY"

	// ErrorTypeInternal indicates unexpected internal error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeCancelled indicates the operation was cancelled
	ErrorTypeCancelled ErrorType = "CANCELLED"
)

// AppError represents a structured application error
type AppError struct {
	// Code is the error code (e.g., "TRAIN_001")
	Code string `json:"code"`

	// Type categorizes the error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// ToJSON serializes the error for structured emission
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError
func New(code string, errType ErrorType, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new AppError with formatted message
func Newf(code string, errType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as an internal AppError with the given code
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether err carries the given error code
func Is(err error, code string) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == code
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for plain errors
func TypeOf(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}
