// Package types provides enumeration type definitions for SafeAlign.
// All enums implement String(), Valid(), and FromString() helpers
// for type-safe conversions and validation across the trainer.
package types

import (
	"fmt"
	"strings"
)

// ============================================================================
// Training Type Enumerations
// ============================================================================

// TrainingType represents the type of training algorithm
type TrainingType string

const (
	// TrainingTypePPOLag represents safety-constrained (Lagrangian) PPO
	TrainingTypePPOLag TrainingType = "ppo_lag"

	// TrainingTypePPO represents plain Proximal Policy Optimization
	TrainingTypePPO TrainingType = "ppo"
)

// String returns the string representation
func (tt TrainingType) String() string {
	return string(tt)
}

// Valid checks if the training type is valid
func (tt TrainingType) Valid() bool {
	switch tt {
	case TrainingTypePPOLag, TrainingTypePPO:
		return true
	default:
		return false
	}
}

// FromStringTrainingType converts string to TrainingType
func FromStringTrainingType(s string) (TrainingType, error) {
	tt := TrainingType(strings.ToLower(s))
	if !tt.Valid() {
		return "", fmt.Errorf("invalid training type: %s", s)
	}
	return tt, nil
}

// ============================================================================
// Run Status Enumerations
// ============================================================================

// RunStatus represents the lifecycle status of a training run
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not started
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is in progress
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the run finished successfully
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the run terminated with an error
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was stopped by request
	RunStatusCancelled RunStatus = "cancelled"
)

// String returns the string representation
func (rs RunStatus) String() string {
	return string(rs)
}

// Valid checks if the run status is valid
func (rs RunStatus) Valid() bool {
	switch rs {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a terminal state
func (rs RunStatus) Terminal() bool {
	switch rs {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// FromStringRunStatus converts string to RunStatus
func FromStringRunStatus(s string) (RunStatus, error) {
	rs := RunStatus(strings.ToLower(s))
	if !rs.Valid() {
		return "", fmt.Errorf("invalid run status: %s", s)
	}
	return rs, nil
}

// ============================================================================
// Rollout Phase Enumerations
// ============================================================================

// RolloutPhase names the stages of one rollout-update cycle
type RolloutPhase string

const (
	// PhaseIdle indicates no cycle is in flight
	PhaseIdle RolloutPhase = "idle"

	// PhaseGenerating indicates autoregressive decoding is running
	PhaseGenerating RolloutPhase = "generating"

	// PhaseScoring indicates reward/cost models are scoring sequences
	PhaseScoring RolloutPhase = "scoring"

	// PhaseShaping indicates KL-penalized reward/cost construction
	PhaseShaping RolloutPhase = "shaping"

	// PhaseEstimating indicates advantage estimation is running
	PhaseEstimating RolloutPhase = "estimating_advantages"

	// PhaseUpdating indicates gradient updates are being applied
	PhaseUpdating RolloutPhase = "updating"
)

// String returns the string representation
func (p RolloutPhase) String() string {
	return string(p)
}
