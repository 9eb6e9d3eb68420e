// Package application orchestrates rollouts: the per-example turn loop, the
// concurrency-bounded batch scheduler, the weighted reward rubric, and the
// per-rollout resource lifecycle.
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// EngineConfig defines the turn-loop parameters shared by every rollout an
// Engine runs.
type EngineConfig struct {
	// Mode selects the conversation shape (chat or completion). Prompts of
	// the other shape are rejected as a fatal configuration error.
	Mode domain.MessageMode

	// MaxTurns ends the rollout once the turn counter reaches it. A value
	// of zero or less disables the turn-count condition entirely: callers
	// that also omit a custom completion predicate risk an unbounded loop,
	// and bounding such rollouts is their responsibility, not the engine's.
	MaxTurns int

	// Tools is the tool set advertised to the backend on every call.
	Tools []ports.Tool

	// Metrics receives rollout counters and latencies. Nil means none.
	Metrics ports.MetricsCollector
}

// Engine drives one example at a time through the turn loop:
// INIT -> SETUP -> TURN_LOOP -> COMPLETE. It owns no per-rollout state
// itself, so a single Engine is safe to share across concurrent rollouts.
type Engine struct {
	hooks   ports.RolloutHooks
	cfg     EngineConfig
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewEngine builds an Engine around the given hooks. Nil hooks get no-op
// behavior, which leaves max turns and the too-long sentinel as the only
// completion conditions.
func NewEngine(hooks ports.RolloutHooks, cfg EngineConfig) (*Engine, error) {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeChat
	}
	if cfg.Mode != domain.ModeChat && cfg.Mode != domain.ModeCompletion {
		return nil, fmt.Errorf("%w: unknown message mode %q", domain.ErrInvalidConfiguration, cfg.Mode)
	}
	if hooks == nil {
		hooks = ports.HookFuncs{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Engine{
		hooks:   hooks,
		cfg:     cfg,
		metrics: metrics,
		tracer:  otel.Tracer("rollout-engine"),
	}, nil
}

// Run executes one full rollout for the example and returns the final
// completion and state. Errors abort only this rollout; the returned state
// is always usable (its Err field carries the failure) so batch slots stay
// index-aligned.
//
// Teardown registered via the hooks runs on every path to completion,
// including setup failures and mid-loop errors.
func (e *Engine) Run(
	ctx context.Context,
	backend ports.ModelBackend,
	ex domain.Example,
	sampling ports.SamplingParams,
) ([]domain.Message, *domain.RolloutState, error) {
	state := domain.NewRolloutState(ex)
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(
			attribute.Int("rollout.example_id", ex.ID),
			attribute.String("rollout.task", ex.Task),
		),
	)
	defer span.End()

	defer func() {
		state.Timing.TotalMS = time.Since(start).Milliseconds()
		e.hooks.Teardown(ctx, state)
		span.SetAttributes(
			attribute.Int("rollout.turns", state.Turn),
			attribute.Bool("rollout.prompt_too_long", state.PromptTooLong),
		)
		e.metrics.RecordLatency("rollout", time.Since(start), map[string]string{"task": ex.Task})
		e.metrics.RecordHistogram("rollout_turns", float64(state.Turn), map[string]string{"task": ex.Task})
	}()

	if err := e.hooks.SetupState(ctx, state); err != nil {
		return e.fail(span, state, fmt.Errorf("rollout setup: %w", err))
	}

	if err := e.validateMode(state); err != nil {
		return e.fail(span, state, err)
	}

	for {
		done, err := e.completed(ctx, state)
		if err != nil {
			return e.fail(span, state, fmt.Errorf("completion predicate: %w", err))
		}
		if done {
			break
		}

		genStart := time.Now()
		resp, err := backend.Generate(ctx, state.Context(), e.cfg.Tools, sampling)
		state.Timing.GenerationMS += time.Since(genStart).Milliseconds()
		if err != nil {
			return e.fail(span, state, fmt.Errorf("model generation: %w", err))
		}
		state.RecordResponse(resp)

		if resp.PromptTooLong() {
			// Terminal but not an error. The aborted turn still counts as
			// used; the completion is left untouched.
			state.PromptTooLong = true
			state.AdvanceTurn()
			break
		}
		if resp.Message == nil {
			return e.fail(span, state, fmt.Errorf("model generation: %w", ports.ErrInvalidResponse))
		}

		state.AppendCompletion(*resp.Message)

		done, err = e.completed(ctx, state)
		if err != nil {
			return e.fail(span, state, fmt.Errorf("completion predicate: %w", err))
		}
		if done {
			break
		}

		injected, err := e.hooks.EnvResponse(ctx, state.Context(), state)
		if err != nil {
			return e.fail(span, state, fmt.Errorf("environment response: %w", err))
		}
		state.AppendCompletion(injected...)
		state.AdvanceTurn()
	}

	e.metrics.RecordCounter("rollouts_total", 1, map[string]string{"task": ex.Task, "status": "ok"})
	return state.Completion, state, nil
}

// completed evaluates the combined completion predicate: the too-long flag,
// the configured positive turn maximum, then the custom hook predicate.
func (e *Engine) completed(ctx context.Context, state *domain.RolloutState) (bool, error) {
	if state.PromptTooLong {
		return true, nil
	}
	if e.cfg.MaxTurns > 0 && state.Turn >= e.cfg.MaxTurns {
		return true, nil
	}
	return e.hooks.IsCompleted(ctx, state)
}

// validateMode verifies the prompt's shape matches the configured mode.
// Mismatches fail fast; they are configuration bugs, not recoverable input.
func (e *Engine) validateMode(state *domain.RolloutState) error {
	switch e.cfg.Mode {
	case domain.ModeChat:
		if !state.Prompt.IsChat() {
			return fmt.Errorf("%w: engine is in chat mode but prompt is raw text", domain.ErrModeMismatch)
		}
	case domain.ModeCompletion:
		if state.Prompt.IsChat() {
			return fmt.Errorf("%w: engine is in completion mode but prompt is a message sequence", domain.ErrModeMismatch)
		}
	}
	return nil
}

func (e *Engine) fail(
	span trace.Span,
	state *domain.RolloutState,
	err error,
) ([]domain.Message, *domain.RolloutState, error) {
	state.Err = err
	span.RecordError(err)
	e.metrics.RecordCounter("rollouts_total", 1, map[string]string{"task": state.Task, "status": "error"})
	return state.Completion, state, err
}
