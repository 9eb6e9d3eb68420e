package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// BashToolName is the tool SandboxHooks advertises to the model.
const BashToolName = "bash"

// bashToolSchema is the model-visible argument schema. The sandbox resource
// id is deliberately not part of it: the hooks inject the id from the
// owning rollout's state, so the model never sees or controls the handle.
var bashToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {
			"type": "string",
			"description": "Shell command to run in the sandbox."
		}
	},
	"required": ["command"]
}`)

// SandboxHooks is a stock RolloutHooks implementation for tool-driven
// rollouts backed by a per-rollout sandbox: it acquires the sandbox before
// the turn loop, answers the model's bash tool calls by executing commands
// in it, and releases it on every terminal path.
//
// A rollout is complete when the latest assistant message carries no tool
// calls (the model has produced its final answer).
type SandboxHooks struct {
	lifecycle *Lifecycle
}

var _ ports.RolloutHooks = (*SandboxHooks)(nil)

// NewSandboxHooks builds hooks over the given lifecycle.
func NewSandboxHooks(lifecycle *Lifecycle) (*SandboxHooks, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("%w: sandbox hooks need a lifecycle", domain.ErrInvalidConfiguration)
	}
	return &SandboxHooks{lifecycle: lifecycle}, nil
}

// Tools returns the tool set to configure the engine with.
func (h *SandboxHooks) Tools() []ports.Tool {
	return []ports.Tool{{
		Name:        BashToolName,
		Description: "Run a shell command in this rollout's sandbox and observe stdout/stderr.",
		Parameters:  bashToolSchema,
	}}
}

// SetupState acquires the rollout's sandbox.
func (h *SandboxHooks) SetupState(ctx context.Context, state *domain.RolloutState) error {
	return h.lifecycle.Acquire(ctx, state)
}

// IsCompleted reports completion once the model stops calling tools.
func (h *SandboxHooks) IsCompleted(_ context.Context, state *domain.RolloutState) (bool, error) {
	last := domain.LastAssistant(state.Completion)
	if last == nil {
		return false, nil
	}
	return len(last.ToolCalls) == 0, nil
}

// EnvResponse executes every tool call of the latest assistant message in
// the rollout's sandbox and returns the tool result messages.
func (h *SandboxHooks) EnvResponse(ctx context.Context, _ []domain.Message, state *domain.RolloutState) ([]domain.Message, error) {
	last := domain.LastAssistant(state.Completion)
	if last == nil || len(last.ToolCalls) == 0 {
		return nil, nil
	}

	results := make([]domain.Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		msg, err := h.runToolCall(ctx, state, call)
		if err != nil {
			return nil, err
		}
		results = append(results, msg)
	}
	return results, nil
}

// Teardown releases the sandbox; Release is idempotent and swallows
// destroy failures.
func (h *SandboxHooks) Teardown(ctx context.Context, state *domain.RolloutState) {
	h.lifecycle.Release(ctx, state)
}

// runToolCall resolves one tool call into a tool result message. Malformed
// calls produce an error message the model can react to; resource failures
// are fatal to the owning rollout.
func (h *SandboxHooks) runToolCall(ctx context.Context, state *domain.RolloutState, call domain.ToolCall) (domain.Message, error) {
	result := domain.Message{Role: domain.RoleTool, ToolCallID: call.ID}

	if call.Name != BashToolName {
		result.Content = fmt.Sprintf("error: unknown tool %q", call.Name)
		return result, nil
	}

	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args.Command == "" {
		result.Content = "error: bash tool requires a string \"command\" argument"
		return result, nil
	}

	execRes, err := h.lifecycle.Exec(ctx, state, args.Command)
	if err != nil {
		return domain.Message{}, err
	}

	result.Content = execRes.Stdout
	if execRes.Stderr != "" {
		result.Content += "\nstderr:\n" + execRes.Stderr
	}
	return result, nil
}
