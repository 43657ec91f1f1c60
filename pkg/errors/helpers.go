package errors

// Helper functions for common error types to simplify error creation

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return New(code, ErrorTypeValidation, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return New(code, ErrorTypeConfiguration, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string) *AppError {
	return New(code, ErrorTypeNotFound, message)
}

// NewConsistencyError creates an internal invariant violation error
func NewConsistencyError(code, message string) *AppError {
	return New(code, ErrorTypeConsistency, message)
}

// NewInfrastructureError creates an infrastructure error
func NewInfrastructureError(code, message string) *AppError {
	return New(code, ErrorTypeInfrastructure, message)
}

// NewInternalError creates an internal error
func NewInternalError(code, message string) *AppError {
	return New(code, ErrorTypeInternal, message)
}

// WrapInfrastructureError wraps an existing error as infrastructure error
func WrapInfrastructureError(err error, code, message string) *AppError {
	return NewInfrastructureError(code, message).WithCause(err)
}

// WrapInternalError wraps an existing error as internal error
func WrapInternalError(err error, code, message string) *AppError {
	return NewInternalError(code, message).WithCause(err)
}

// Common error codes as constants
const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "ERR_INTERNAL"
	CodeCancelled        = "ERR_CANCELLED"
	CodeExhausted        = "ERR_EXHAUSTED"
)
