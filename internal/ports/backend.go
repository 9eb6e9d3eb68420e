// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"encoding/json"

	"github.com/ahrav/go-rollout/internal/domain"
)

// SamplingParams carries generation parameters forwarded opaquely to the
// model backend. Zero values mean "backend default".
type SamplingParams struct {
	// MaxTokens caps the length of each generated turn.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// Temperature controls randomness in generation.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// TopP controls nucleus sampling.
	TopP float64 `yaml:"top_p" json:"top_p"`

	// Extra holds backend-specific parameters the engine does not interpret.
	Extra map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Tool describes a callable tool advertised to the model. Parameters is a
// JSON schema; arguments the engine must inject itself (such as a sandbox
// resource id) are deliberately absent from the model-visible schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ModelBackend is the opaque turn-generation function the engine drives.
// Given the conversation context and the available tools, it returns a
// normalized response or the too-long sentinel
// (domain.OverlongPromptResponse) when the input exceeds its context window.
//
// Generate must be safe to call repeatedly; retries, if any, are the
// backend's concern, as are per-call timeouts.
type ModelBackend interface {
	Generate(ctx context.Context, messages []domain.Message, tools []Tool, sampling SamplingParams) (domain.ModelResponse, error)

	// Model returns the backend's model identifier for run metadata.
	Model() string
}
