// Package errors defines error code constants for SafeAlign.
// Each error code includes a unique identifier, error type, and message
// template for consistent error handling across the training stack.
package errors

// ErrorCode represents a structured error code definition
type ErrorCode struct {
	Code    string
	Type    ErrorType
	Message string
}

// ============================================================================
// Configuration Errors (CFG_xxx)
// ============================================================================

var (
	// ErrConfigInvalid indicates the configuration failed validation
	ErrConfigInvalid = ErrorCode{
		Code:    "CFG_001",
		Type:    ErrorTypeConfiguration,
		Message: "Configuration failed validation",
	}

	// ErrConfigNotFound indicates the configuration file could not be located
	ErrConfigNotFound = ErrorCode{
		Code:    "CFG_002",
		Type:    ErrorTypeConfiguration,
		Message: "Configuration file not found",
	}

	// ErrTokenizerMismatch indicates a critic tokenizer differs from the
	// actor tokenizer; this is fatal and raised before training starts
	ErrTokenizerMismatch = ErrorCode{
		Code:    "CFG_003",
		Type:    ErrorTypeConfiguration,
		Message: "Critic tokenizer must be the same as actor tokenizer",
	}

	// ErrModelLoaderUnknown indicates no model loader is registered under the configured name
	ErrModelLoaderUnknown = ErrorCode{
		Code:    "CFG_004",
		Type:    ErrorTypeConfiguration,
		Message: "Unknown model loader",
	}
)

// ============================================================================
// Training Errors (TRAIN_xxx)
// ============================================================================

var (
	// ErrTrainGeneration indicates sequence generation failed
	ErrTrainGeneration = ErrorCode{
		Code:    "TRAIN_001",
		Type:    ErrorTypeInternal,
		Message: "Sequence generation failed",
	}

	// ErrTrainScoring indicates reward or cost scoring failed
	ErrTrainScoring = ErrorCode{
		Code:    "TRAIN_002",
		Type:    ErrorTypeInternal,
		Message: "Reward/cost scoring failed",
	}

	// ErrTrainShortSequence indicates decoding produced a sequence shorter
	// than its prompt, which violates an internal invariant
	ErrTrainShortSequence = ErrorCode{
		Code:    "TRAIN_003",
		Type:    ErrorTypeConsistency,
		Message: "Generated sequence shorter than prompt",
	}

	// ErrTrainLengthMismatch indicates the per-token streams of a trajectory
	// are not aligned to the same response length
	ErrTrainLengthMismatch = ErrorCode{
		Code:    "TRAIN_004",
		Type:    ErrorTypeConsistency,
		Message: "Trajectory streams disagree on response length",
	}

	// ErrTrainStopped indicates the run was stopped by request
	ErrTrainStopped = ErrorCode{
		Code:    "TRAIN_005",
		Type:    ErrorTypeCancelled,
		Message: "Training run was stopped",
	}
)

// ============================================================================
// Infrastructure Errors (INFRA_xxx)
// ============================================================================

var (
	// ErrInfraPublish indicates a metrics record could not be published
	ErrInfraPublish = ErrorCode{
		Code:    "INFRA_001",
		Type:    ErrorTypeInfrastructure,
		Message: "Failed to publish metrics record",
	}

	// ErrInfraCheckpoint indicates a checkpoint manifest could not be stored
	ErrInfraCheckpoint = ErrorCode{
		Code:    "INFRA_002",
		Type:    ErrorTypeInfrastructure,
		Message: "Failed to store checkpoint manifest",
	}

	// ErrInfraRepository indicates a run record could not be persisted
	ErrInfraRepository = ErrorCode{
		Code:    "INFRA_003",
		Type:    ErrorTypeInfrastructure,
		Message: "Failed to persist run record",
	}
)

// NewFromCode builds an AppError from an ErrorCode definition
func NewFromCode(ec ErrorCode) *AppError {
	return New(ec.Code, ec.Type, ec.Message)
}

// WrapCode wraps err with the code and type of an ErrorCode definition
func WrapCode(err error, ec ErrorCode) *AppError {
	return &AppError{
		Code:    ec.Code,
		Type:    ec.Type,
		Message: ec.Message,
		Cause:   err,
	}
}
