// Package config provides centralized configuration management for SafeAlign.
// It defines configuration structures for the constrained PPO trainer and
// supports validation, default values, and environment-based loading.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// Main Configuration Structure
// ============================================================================

// Config represents the complete trainer configuration
type Config struct {
	// Run identification and bookkeeping
	Run RunConfig `mapstructure:"run" yaml:"run"`

	// Training loop hyperparameters
	Train TrainConfig `mapstructure:"train" yaml:"train"`

	// Lagrangian (dual variable) hyperparameters
	Lambda LambdaConfig `mapstructure:"lambda" yaml:"lambda"`

	// Model handles and decoding parameters
	Model ModelConfig `mapstructure:"model" yaml:"model"`

	// Prompt dataset
	Data DataConfig `mapstructure:"data" yaml:"data"`

	// Distributed execution
	Distributed DistributedConfig `mapstructure:"distributed" yaml:"distributed"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics exposition
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`

	// Kafka step-record publishing
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`

	// Checkpoint manifest storage
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Run record persistence
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// RunConfig identifies a training run
type RunConfig struct {
	// Human-readable run name
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Random seed
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Output directory for local artifacts
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// TrainConfig defines the reinforcement learning loop hyperparameters
type TrainConfig struct {
	// Number of passes over the prompt dataset
	Epochs int `mapstructure:"epochs" yaml:"epochs" validate:"gt=0"`

	// Prompts consumed per device per rollout
	PerDevicePromptBatchSize int `mapstructure:"per_device_prompt_batch_size" yaml:"per_device_prompt_batch_size" validate:"gt=0"`

	// Micro-batch size for inference and update passes
	PerDeviceTrainBatchSize int `mapstructure:"per_device_train_batch_size" yaml:"per_device_train_batch_size" validate:"gt=0"`

	// Update iterations per rollout
	UpdateIters int `mapstructure:"update_iters" yaml:"update_iters" validate:"gt=0"`

	// Discount factor for returns
	Gamma float64 `mapstructure:"gamma" yaml:"gamma" validate:"gt=0,lte=1"`

	// GAE trace-decay parameter
	GAELambda float64 `mapstructure:"gae_lambda" yaml:"gae_lambda" validate:"gte=0,lte=1"`

	// KL penalty coefficient
	KLCoeff float64 `mapstructure:"kl_coeff" yaml:"kl_coeff" validate:"gte=0"`

	// PPO probability-ratio clip range (epsilon)
	ClipRangeRatio float64 `mapstructure:"clip_range_ratio" yaml:"clip_range_ratio" validate:"gt=0"`

	// Shaped reward/cost clamp bound
	ClipRangeScore float64 `mapstructure:"clip_range_score" yaml:"clip_range_score" validate:"gt=0"`

	// Critic value clip range
	ClipRangeValue float64 `mapstructure:"clip_range_value" yaml:"clip_range_value" validate:"gt=0"`

	// Checkpoint save interval in global steps
	SaveInterval int `mapstructure:"save_interval" yaml:"save_interval" validate:"gt=0"`
}

// LambdaConfig defines the dual-variable update rule
type LambdaConfig struct {
	// Initial multiplier value (lambda, not its log)
	Init float64 `mapstructure:"init" yaml:"init" validate:"gt=0"`

	// Upper bound on the multiplier; 0 disables the bound
	Max float64 `mapstructure:"max" yaml:"max" validate:"gte=0"`

	// SGD learning rate on log-lambda
	LR float64 `mapstructure:"lr" yaml:"lr" validate:"gt=0"`

	// Global steps to wait before the first dual update
	UpdateDelaySteps int `mapstructure:"update_delay_steps" yaml:"update_delay_steps" validate:"gte=0"`

	// Episode cost window capacity
	CostWindowSize int `mapstructure:"cost_window_size" yaml:"cost_window_size" validate:"gt=0"`

	// Target expected episode cost
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// ModelConfig defines model handles and decoding parameters
type ModelConfig struct {
	// Registered loader name supplying the six model handles
	Loader string `mapstructure:"loader" yaml:"loader" validate:"required"`

	// Actor (policy) model path or identifier
	ActorPath string `mapstructure:"actor_path" yaml:"actor_path" validate:"required"`

	// Reward model path
	RewardPath string `mapstructure:"reward_path" yaml:"reward_path" validate:"required"`

	// Reward critic path; defaults to the reward path
	RewardCriticPath string `mapstructure:"reward_critic_path" yaml:"reward_critic_path"`

	// Cost model path
	CostPath string `mapstructure:"cost_path" yaml:"cost_path" validate:"required"`

	// Cost critic path; defaults to the cost path
	CostCriticPath string `mapstructure:"cost_critic_path" yaml:"cost_critic_path"`

	// Maximum total sequence length for decoding
	MaxLength int `mapstructure:"max_length" yaml:"max_length" validate:"gt=0"`

	// Sampling temperature
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gt=0"`

	// Nucleus sampling threshold
	TopP float64 `mapstructure:"top_p" yaml:"top_p" validate:"gt=0,lte=1"`

	// Repetition penalty
	RepetitionPenalty float64 `mapstructure:"repetition_penalty" yaml:"repetition_penalty" validate:"gte=1"`
}

// DataConfig defines the prompt dataset
type DataConfig struct {
	// PromptFile path to a text file with one prompt per line
	PromptFile string `mapstructure:"prompt_file" yaml:"prompt_file" validate:"required"`

	// Shuffle prompts at the start of every epoch
	Shuffle bool `mapstructure:"shuffle" yaml:"shuffle"`
}

// DistributedConfig defines data-parallel execution parameters
type DistributedConfig struct {
	// Backend name (local, group)
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Total number of workers
	WorldSize int `mapstructure:"world_size" yaml:"world_size" validate:"gt=0"`

	// This worker's rank
	Rank int `mapstructure:"rank" yaml:"rank" validate:"gte=0"`
}

// LoggingConfig mirrors the logging package configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Format   string `mapstructure:"format" yaml:"format"`
	Output   string `mapstructure:"output" yaml:"output"`
	FilePath string `mapstructure:"file_path" yaml:"file_path"`
}

// MetricsConfig defines Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig defines OTLP tracing settings
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// KafkaConfig defines step-record publishing settings
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// StorageConfig defines checkpoint manifest storage settings
type StorageConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
}

// DatabaseConfig defines run-record persistence settings
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ============================================================================
// Defaults and Validation
// ============================================================================

// Default returns a configuration populated with the standard hyperparameters
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Name:      "ppo-lag",
			Seed:      42,
			OutputDir: "output",
		},
		Train: TrainConfig{
			Epochs:                   1,
			PerDevicePromptBatchSize: 8,
			PerDeviceTrainBatchSize:  4,
			UpdateIters:              1,
			Gamma:                    1.0,
			GAELambda:                0.95,
			KLCoeff:                  0.02,
			ClipRangeRatio:           0.2,
			ClipRangeScore:           50.0,
			ClipRangeValue:           5.0,
			SaveInterval:             100,
		},
		Lambda: LambdaConfig{
			Init:             1.0,
			Max:              20.0,
			LR:               0.1,
			UpdateDelaySteps: 0,
			CostWindowSize:   128,
			Threshold:        0.0,
		},
		Model: ModelConfig{
			Loader:            "external",
			MaxLength:         2048,
			Temperature:       1.0,
			TopP:              1.0,
			RepetitionPenalty: 1.0,
		},
		Data: DataConfig{
			Shuffle: true,
		},
		Distributed: DistributedConfig{
			Backend:   "local",
			WorldSize: 1,
			Rank:      0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Distributed.Rank >= c.Distributed.WorldSize {
		return fmt.Errorf("invalid configuration: rank %d out of range for world size %d",
			c.Distributed.Rank, c.Distributed.WorldSize)
	}
	return nil
}

// ApplyModelDefaults fills critic paths from their scoring counterparts
func (c *Config) ApplyModelDefaults() {
	if c.Model.RewardCriticPath == "" {
		c.Model.RewardCriticPath = c.Model.RewardPath
	}
	if c.Model.CostCriticPath == "" {
		c.Model.CostCriticPath = c.Model.CostPath
	}
}
