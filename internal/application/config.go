package application

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// SamplingConfig is the YAML shape of generation parameters.
type SamplingConfig struct {
	// MaxTokens caps the length of each generated turn.
	MaxTokens int `yaml:"max_tokens" validate:"omitempty,min=1,max=1000000"`

	// Temperature controls randomness in generation.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// TopP controls nucleus sampling.
	TopP float64 `yaml:"top_p" validate:"min=0,max=1"`

	// Extra holds backend-specific parameters passed through opaquely.
	Extra map[string]any `yaml:"extra"`
}

// Params converts the config into the backend-facing parameter struct.
func (c SamplingConfig) Params() ports.SamplingParams {
	return ports.SamplingParams{
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
		Extra:       c.Extra,
	}
}

// EvalConfig is the complete specification of one evaluation run: the
// engine's turn-loop parameters, the scheduler's concurrency limits, and
// the rubric's weights. It is the primary configuration entry point.
type EvalConfig struct {
	// MessageMode selects structured-chat or raw-text conversations.
	MessageMode string `yaml:"message_mode" validate:"required,oneof=chat completion"`

	// MaxTurns bounds the turn loop; zero or negative disables the bound,
	// which is only safe with a custom completion predicate.
	MaxTurns int `yaml:"max_turns"`

	// ConcurrencyGeneration bounds concurrent rollouts; <= 0 is unbounded.
	ConcurrencyGeneration int `yaml:"concurrency_generation"`

	// ConcurrencyScoring bounds concurrent scorings; <= 0 is unbounded.
	ConcurrencyScoring int `yaml:"concurrency_scoring"`

	// ScoreRollouts disables the scoring phase when false.
	ScoreRollouts bool `yaml:"score_rollouts"`

	// ParallelizeScoring runs a rubric's reward functions concurrently
	// within each rollout's scoring.
	ParallelizeScoring bool `yaml:"parallelize_scoring"`

	// Weights pairs with the rubric's reward functions by index; shorter
	// lists are right-padded with 1.0 at rubric construction.
	Weights []float64 `yaml:"weights"`

	// Sampling is forwarded to the backend on every generation call.
	Sampling SamplingConfig `yaml:"sampling"`
}

// DefaultEvalConfig returns an EvalConfig with sensible defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MessageMode:           string(domain.ModeChat),
		MaxTurns:              10,
		ConcurrencyGeneration: 32,
		ConcurrencyScoring:    32,
		ScoreRollouts:         true,
		ParallelizeScoring:    true,
	}
}

// LoadEvalConfig reads and validates an evaluation config from YAML.
// Unknown fields are rejected so configuration typos fail loudly instead
// of being silently ignored.
func LoadEvalConfig(r io.Reader) (*EvalConfig, error) {
	cfg := DefaultEvalConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode eval config (check for typos): %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("eval config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadEvalConfigFile reads and validates an evaluation config file.
func LoadEvalConfigFile(path string) (*EvalConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open eval config: %w", err)
	}
	defer f.Close()
	return LoadEvalConfig(f)
}

// EngineConfig converts the config into engine turn-loop parameters.
// Tools and metrics are wired by the caller.
func (c *EvalConfig) EngineConfig() EngineConfig {
	return EngineConfig{
		Mode:     domain.MessageMode(c.MessageMode),
		MaxTurns: c.MaxTurns,
	}
}

// BatchOptions converts the config into per-call scheduler options.
func (c *EvalConfig) BatchOptions() BatchOptions {
	return BatchOptions{
		ConcurrencyGeneration: c.ConcurrencyGeneration,
		ConcurrencyScoring:    c.ConcurrencyScoring,
		ScoreRollouts:         c.ScoreRollouts,
		Sampling:              c.Sampling.Params(),
	}
}
