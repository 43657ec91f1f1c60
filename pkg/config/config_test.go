package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Model.ActorPath = "models/actor"
	cfg.Model.RewardPath = "models/reward"
	cfg.Model.CostPath = "models/cost"
	cfg.Data.PromptFile = "prompts.txt"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	t.Run("filled defaults pass", func(t *testing.T) {
		cfg := validConfig()
		cfg.ApplyModelDefaults()

		assert.NoError(t, cfg.Validate())
	})

	t.Run("defaults carry the standard dual hyperparameters", func(t *testing.T) {
		cfg := Default()

		assert.Equal(t, 1.0, cfg.Lambda.Init)
		assert.Equal(t, 20.0, cfg.Lambda.Max)
		assert.Equal(t, 0.1, cfg.Lambda.LR)
		assert.Equal(t, 0, cfg.Lambda.UpdateDelaySteps)
		assert.Equal(t, 128, cfg.Lambda.CostWindowSize)
		assert.Equal(t, 0.0, cfg.Lambda.Threshold)
	})

	t.Run("missing model paths fail", func(t *testing.T) {
		cfg := Default()
		cfg.Data.PromptFile = "prompts.txt"

		assert.Error(t, cfg.Validate())
	})

	t.Run("rank beyond world size fails", func(t *testing.T) {
		cfg := validConfig()
		cfg.Distributed.WorldSize = 2
		cfg.Distributed.Rank = 2

		assert.Error(t, cfg.Validate())
	})

	t.Run("gamma outside the unit interval fails", func(t *testing.T) {
		cfg := validConfig()
		cfg.Train.Gamma = 1.5

		assert.Error(t, cfg.Validate())
	})
}

func TestApplyModelDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyModelDefaults()

	assert.Equal(t, "models/reward", cfg.Model.RewardCriticPath)
	assert.Equal(t, "models/cost", cfg.Model.CostCriticPath)

	cfg.Model.RewardCriticPath = "models/custom"
	cfg.ApplyModelDefaults()
	assert.Equal(t, "models/custom", cfg.Model.RewardCriticPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("loads a yaml file over the defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
run:
  name: yaml-run
train:
  kl_coeff: 0.05
lambda:
  threshold: 1.5
model:
  actor_path: models/actor
  reward_path: models/reward
  cost_path: models/cost
data:
  prompt_file: prompts.txt
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		loader := NewLoader(LoaderOptions{ConfigFile: path})
		cfg, err := loader.Load()
		require.NoError(t, err)

		assert.Equal(t, "yaml-run", cfg.Run.Name)
		assert.Equal(t, 0.05, cfg.Train.KLCoeff)
		assert.Equal(t, 1.5, cfg.Lambda.Threshold)
		// 未显式给出的字段保留默认值
		assert.Equal(t, 0.2, cfg.Train.ClipRangeRatio)
		// 评论家路径回落到评分模型路径
		assert.Equal(t, "models/reward", cfg.Model.RewardCriticPath)
	})

	t.Run("invalid file content fails validation", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
model:
  actor_path: models/actor
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		loader := NewLoader(LoaderOptions{ConfigFile: path})
		_, err := loader.Load()
		assert.Error(t, err)
	})
}
