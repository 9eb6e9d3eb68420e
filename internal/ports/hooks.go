package ports

import (
	"context"

	"github.com/ahrav/go-rollout/internal/domain"
)

// RolloutHooks parameterizes the engine's turn loop with task-specific
// behavior. One engine type composed with a hooks implementation serves
// every task variant; there is no environment subclass hierarchy.
//
// All hooks receive the rollout's own state and may mutate it; the state is
// never shared across rollouts, so no synchronization is required.
type RolloutHooks interface {
	// SetupState runs once before the turn loop, typically to acquire an
	// external resource. An error here aborts only this rollout.
	SetupState(ctx context.Context, state *domain.RolloutState) error

	// IsCompleted is the custom completion predicate, evaluated before each
	// model call and again after each assistant message is appended. The
	// engine combines it with the max-turn condition and the too-long flag.
	IsCompleted(ctx context.Context, state *domain.RolloutState) (bool, error)

	// EnvResponse turns the model's latest output into the next
	// user-visible messages. It is invoked once per turn that does not end
	// the rollout, and may update hook-owned state via state.Scratch.
	EnvResponse(ctx context.Context, messages []domain.Message, state *domain.RolloutState) ([]domain.Message, error)

	// Teardown runs when the rollout reaches its terminal state, on every
	// path (win, loss, max turns, or error). Implementations release any
	// resource acquired during SetupState; failures must be swallowed.
	Teardown(ctx context.Context, state *domain.RolloutState)
}

// HookFuncs adapts plain functions to RolloutHooks. Nil fields behave as
// no-ops (IsCompleted reports false), so callers only supply the hooks
// their task needs.
type HookFuncs struct {
	Setup     func(ctx context.Context, state *domain.RolloutState) error
	Completed func(ctx context.Context, state *domain.RolloutState) (bool, error)
	Respond   func(ctx context.Context, messages []domain.Message, state *domain.RolloutState) ([]domain.Message, error)
	Cleanup   func(ctx context.Context, state *domain.RolloutState)
}

var _ RolloutHooks = HookFuncs{}

// SetupState implements RolloutHooks.
func (h HookFuncs) SetupState(ctx context.Context, state *domain.RolloutState) error {
	if h.Setup == nil {
		return nil
	}
	return h.Setup(ctx, state)
}

// IsCompleted implements RolloutHooks.
func (h HookFuncs) IsCompleted(ctx context.Context, state *domain.RolloutState) (bool, error) {
	if h.Completed == nil {
		return false, nil
	}
	return h.Completed(ctx, state)
}

// EnvResponse implements RolloutHooks.
func (h HookFuncs) EnvResponse(ctx context.Context, messages []domain.Message, state *domain.RolloutState) ([]domain.Message, error) {
	if h.Respond == nil {
		return nil, nil
	}
	return h.Respond(ctx, messages, state)
}

// Teardown implements RolloutHooks.
func (h HookFuncs) Teardown(ctx context.Context, state *domain.RolloutState) {
	if h.Cleanup != nil {
		h.Cleanup(ctx, state)
	}
}
