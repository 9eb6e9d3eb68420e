package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// RewardSpec names one reward function for rubric construction. Order is
// significant: metrics keep registration order and weights pair by index.
type RewardSpec struct {
	Name string
	Func ports.RewardFunc
}

// RubricConfig tunes rubric behavior.
type RubricConfig struct {
	// Parser is the shared text-parser utility handed to every reward
	// function. Nil is allowed for rubrics whose functions ignore it.
	Parser ports.Parser

	// ParallelizeScoring runs the rubric's functions concurrently within a
	// single rollout's scoring. Aggregation is order-stable either way.
	ParallelizeScoring bool

	// Metrics receives scoring counters and latencies. Nil means none.
	Metrics ports.MetricsCollector
}

// Rubric scores a rollout with an ordered list of weighted reward
// functions. Failures are isolated per function: an error, panic, or
// non-finite return becomes a zero score and never aborts the rubric.
type Rubric struct {
	rewards []RewardSpec
	weights []float64
	names   []string
	cfg     RubricConfig
	metrics ports.MetricsCollector
}

// NewRubric builds a rubric from ordered reward functions and their
// weights. A weight list shorter than the function list is right-padded
// with 1.0; a longer one is a configuration error.
func NewRubric(rewards []RewardSpec, weights []float64, cfg RubricConfig) (*Rubric, error) {
	if len(rewards) == 0 {
		return nil, fmt.Errorf("%w: rubric needs at least one reward function", domain.ErrInvalidConfiguration)
	}
	if len(weights) > len(rewards) {
		return nil, fmt.Errorf("%w: %d weights for %d reward functions", domain.ErrInvalidConfiguration, len(weights), len(rewards))
	}

	names := make([]string, len(rewards))
	for i, r := range rewards {
		if r.Func == nil {
			return nil, fmt.Errorf("%w: reward function %q is nil", domain.ErrInvalidConfiguration, r.Name)
		}
		if r.Name == "" {
			return nil, fmt.Errorf("%w: reward function %d has no name", domain.ErrInvalidConfiguration, i)
		}
		names[i] = r.Name
	}

	padded := make([]float64, len(rewards))
	copy(padded, weights)
	for i := len(weights); i < len(rewards); i++ {
		padded[i] = 1.0
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &Rubric{
		rewards: rewards,
		weights: padded,
		names:   names,
		cfg:     cfg,
		metrics: metrics,
	}, nil
}

// MetricNames returns the rubric's metric keys in registration order.
func (r *Rubric) MetricNames() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Weights returns the effective (padded) weight list.
func (r *Rubric) Weights() []float64 {
	w := make([]float64, len(r.weights))
	copy(w, r.weights)
	return w
}

// ScoreRollout invokes every reward function with the uniform context and
// returns the weighted sum plus the raw per-function metrics. Scoring
// duration is added to the rollout's timing accumulator when a state is
// attached.
func (r *Rubric) ScoreRollout(ctx context.Context, rc ports.RewardContext) domain.RewardScore {
	start := time.Now()
	if rc.Parser == nil {
		rc.Parser = r.cfg.Parser
	}

	raw := make([]float64, len(r.rewards))
	if r.cfg.ParallelizeScoring {
		g, gctx := errgroup.WithContext(ctx)
		for i := range r.rewards {
			i := i
			g.Go(func() error {
				raw[i] = r.invoke(gctx, i, rc)
				return nil
			})
		}
		// Reward functions never propagate errors through the group.
		_ = g.Wait()
	} else {
		for i := range r.rewards {
			raw[i] = r.invoke(ctx, i, rc)
		}
	}

	score := domain.RewardScore{Metrics: make(map[string]float64, len(r.rewards))}
	for i, v := range raw {
		score.Metrics[r.names[i]] = v
		score.Reward += v * r.weights[i]
	}

	elapsed := time.Since(start)
	if rc.State != nil {
		rc.State.Timing.ScoringMS += elapsed.Milliseconds()
	}
	r.metrics.RecordLatency("scoring", elapsed, map[string]string{"task": rc.Task})
	r.metrics.RecordHistogram("rollout_reward", score.Reward, map[string]string{"task": rc.Task})
	return score
}

// ScoreState scores a finished rollout state, deriving the reward context
// from the state itself.
func (r *Rubric) ScoreState(ctx context.Context, state *domain.RolloutState) domain.RewardScore {
	return r.ScoreRollout(ctx, ports.RewardContext{
		Prompt:     state.Prompt,
		Completion: state.Completion,
		Answer:     state.Answer,
		State:      state,
		Task:       state.Task,
		Info:       state.Info,
		ExampleID:  state.ExampleID,
	})
}

// ScoreRollouts scores a batch of finished rollouts under the given
// concurrency limit (unbounded when limit <= 0). Results are index-aligned
// with the input; nil slots (rollouts that never produced a state) receive
// a zero score with the full metric key set.
func (r *Rubric) ScoreRollouts(ctx context.Context, states []*domain.RolloutState, concurrency int) []domain.RewardScore {
	scores := make([]domain.RewardScore, len(states))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(concurrency))
	for i, state := range states {
		i, state := i, state
		if state == nil {
			scores[i] = domain.ZeroScore(r.names)
			continue
		}
		g.Go(func() error {
			scores[i] = r.ScoreState(gctx, state)
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// invoke runs one reward function with full failure isolation: errors,
// panics, and non-finite values all coerce to a zero score.
func (r *Rubric) invoke(ctx context.Context, i int, rc ports.RewardContext) (score float64) {
	name := r.names[i]
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().
				Str("reward", name).
				Int("example_id", rc.ExampleID).
				Any("panic", rec).
				Msg("reward function panicked; scoring 0")
			r.metrics.RecordCounter("reward_failures_total", 1, map[string]string{"reward": name})
			score = 0
		}
	}()

	v, err := r.rewards[i].Func(ctx, rc)
	if err != nil {
		log.Warn().
			Err(err).
			Str("reward", name).
			Int("example_id", rc.ExampleID).
			Msg("reward function failed; scoring 0")
		r.metrics.RecordCounter("reward_failures_total", 1, map[string]string{"reward": name})
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		log.Warn().
			Str("reward", name).
			Int("example_id", rc.ExampleID).
			Float64("value", v).
			Msg("reward function returned non-finite value; scoring 0")
		r.metrics.RecordCounter("reward_failures_total", 1, map[string]string{"reward": name})
		return 0
	}
	return v
}

// concurrencyLimit maps the "<= 0 means unbounded" convention onto
// errgroup's SetLimit, where a negative limit disables the bound.
func concurrencyLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
