// Package backends provides ModelBackend adapters and middleware for the
// rollout engine. All backend-native response shapes, including tool calls,
// are normalized into domain types at this boundary; nothing
// provider-shaped crosses into the engine.
package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// Sentinel errors for clear, testable error conditions.
var (
	ErrEmptyModel       = errors.New("model cannot be empty")
	ErrNilClient        = errors.New("client cannot be nil")
	ErrNoResponseChoice = errors.New("response contained no choices")
)

var _ ports.ModelBackend = (*OpenAIBackend)(nil)

// OpenAIBackend adapts any OpenAI-compatible chat-completions API to the
// engine's ModelBackend port. It is the single canonical backend shape;
// an "input exceeded context window" API error is translated into the
// domain's too-long sentinel rather than surfaced as a failure.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds a backend around an existing client. Point the
// client's BaseURL at any OpenAI-compatible server to target other
// providers or local inference.
func NewOpenAIBackend(client *openai.Client, model string) (*OpenAIBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if model == "" {
		return nil, ErrEmptyModel
	}
	return &OpenAIBackend{client: client, model: model}, nil
}

// Model returns the model identifier used for generation.
func (b *OpenAIBackend) Model() string { return b.model }

// Generate implements ports.ModelBackend.
func (b *OpenAIBackend) Generate(
	ctx context.Context,
	messages []domain.Message,
	tools []ports.Tool,
	sampling ports.SamplingParams,
) (domain.ModelResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    toWireMessages(messages),
		Tools:       toWireTools(tools),
		MaxTokens:   sampling.MaxTokens,
		Temperature: float32(sampling.Temperature),
		TopP:        float32(sampling.TopP),
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isContextLengthExceeded(err) {
			return domain.OverlongPromptResponse(), nil
		}
		return domain.ModelResponse{}, fmt.Errorf("chat completion: %w", err)
	}

	return NormalizeResponse(resp)
}

// NormalizeResponse converts a wire response into the engine's canonical
// ModelResponse, normalizing tool calls and preserving their serialized
// arguments verbatim.
func NormalizeResponse(resp openai.ChatCompletionResponse) (domain.ModelResponse, error) {
	if len(resp.Choices) == 0 {
		return domain.ModelResponse{}, ErrNoResponseChoice
	}

	wire := resp.Choices[0].Message
	msg := domain.Message{
		Role:    domain.RoleAssistant,
		Content: wire.Content,
	}
	for _, tc := range wire.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return domain.ModelResponse{ID: resp.ID, Message: &msg}, nil
}

// toWireMessages converts canonical messages into the wire format.
func toWireMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	wire := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		wire = append(wire, wm)
	}
	return wire
}

// toWireTools converts tool descriptors into the wire format.
func toWireTools(tools []ports.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	wire := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return wire
}

// isContextLengthExceeded recognizes the provider's "input exceeded the
// context window" rejection, which the engine treats as a terminal,
// non-error condition.
func isContextLengthExceeded(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
		return true
	}
	return strings.Contains(apiErr.Message, "maximum context length")
}
