package ports

import (
	"context"

	"github.com/ahrav/go-rollout/internal/domain"
)

// Parser is the shared text-parser utility handed to every reward function,
// extracting the scorable answer from free-form model output.
type Parser interface {
	// Parse extracts the answer portion of a single text block.
	Parse(text string) string

	// ParseAnswer extracts the answer from a completed conversation,
	// conventionally from its final assistant message.
	ParseAnswer(completion []domain.Message) string
}

// RewardContext is the single canonical calling convention for reward
// functions. Every function receives the full rollout context; there is no
// runtime probing of alternative signatures.
type RewardContext struct {
	Prompt     domain.Prompt
	Completion []domain.Message
	Answer     string
	State      *domain.RolloutState
	Task       string
	Info       map[string]any
	ExampleID  int
	Parser     Parser
}

// RewardFunc maps one rollout's context to a numeric score. Errors and
// non-finite returns are contained by the rubric: the function's metric is
// coerced to zero and no other function is affected.
type RewardFunc func(ctx context.Context, rc RewardContext) (float64, error)
