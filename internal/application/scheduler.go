package application

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// Dataset is the columnar batch input: index-aligned per-example columns.
// Prompts is required; the remaining columns are optional and default when
// nil, but a non-nil column whose length differs from Prompts fails the
// whole batch before any rollout starts.
type Dataset struct {
	Prompts []domain.Prompt
	Answers []string
	Tasks   []string
	Infos   []map[string]any
	IDs     []int
}

// Len returns the number of examples in the dataset.
func (d Dataset) Len() int { return len(d.Prompts) }

// Validate checks that every supplied column matches the prompt column's
// length. The returned error is a *domain.ValidationError.
func (d Dataset) Validate() error {
	verr := domain.NewValidationError("dataset")
	n := len(d.Prompts)
	if n == 0 {
		verr.AddError("prompts column is empty")
	}
	if d.Answers != nil && len(d.Answers) != n {
		verr.AddError(fmt.Sprintf("answers column has %d entries, want %d", len(d.Answers), n))
	}
	if d.Tasks != nil && len(d.Tasks) != n {
		verr.AddError(fmt.Sprintf("tasks column has %d entries, want %d", len(d.Tasks), n))
	}
	if d.Infos != nil && len(d.Infos) != n {
		verr.AddError(fmt.Sprintf("infos column has %d entries, want %d", len(d.Infos), n))
	}
	if d.IDs != nil && len(d.IDs) != n {
		verr.AddError(fmt.Sprintf("ids column has %d entries, want %d", len(d.IDs), n))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Example materializes the i'th example, filling defaults for absent
// columns (task "default", example id = row index).
func (d Dataset) Example(i int) domain.Example {
	ex := domain.Example{ID: i, Prompt: d.Prompts[i], Task: "default"}
	if d.Answers != nil {
		ex.Answer = d.Answers[i]
	}
	if d.Tasks != nil && d.Tasks[i] != "" {
		ex.Task = d.Tasks[i]
	}
	if d.Infos != nil {
		ex.Info = d.Infos[i]
	}
	if d.IDs != nil {
		ex.ID = d.IDs[i]
	}
	return ex
}

// BatchOptions controls one Generate call.
type BatchOptions struct {
	// ConcurrencyGeneration bounds concurrent rollouts; <= 0 is unbounded.
	ConcurrencyGeneration int

	// ConcurrencyScoring bounds concurrent scorings. It is independent of
	// generation concurrency because scoring cost profiles (a string
	// comparison vs. an LLM-judge call) can differ wildly.
	ConcurrencyScoring int

	// ScoreRollouts disables the scoring phase when false; rewards and
	// metrics come back zeroed with the full metric key set.
	ScoreRollouts bool

	// Sampling is forwarded to the backend on every generation call.
	Sampling ports.SamplingParams
}

// Scheduler fans a dataset out to engine rollouts and then to rubric
// scoring, each phase under its own concurrency limit. Outputs are written
// into index-aligned slots, so caller-visible ordering always matches the
// input regardless of completion order.
type Scheduler struct {
	engine *Engine
	rubric *Rubric
}

// NewScheduler builds a scheduler. The rubric may be nil for
// generation-only use.
func NewScheduler(engine *Engine, rubric *Rubric) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: scheduler needs an engine", domain.ErrInvalidConfiguration)
	}
	return &Scheduler{engine: engine, rubric: rubric}, nil
}

// Generate runs one rollout per dataset example and scores the results.
// Per-rollout failures are contained: the failed slot keeps its state (with
// state.Err set) and a zero reward. Only batch-level structural problems,
// such as a dataset column mismatch, fail the call itself.
func (s *Scheduler) Generate(
	ctx context.Context,
	backend ports.ModelBackend,
	ds Dataset,
	opts BatchOptions,
) (*BatchResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	n := ds.Len()
	start := time.Now()
	completions := make([][]domain.Message, n)
	states := make([]*domain.RolloutState, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(opts.ConcurrencyGeneration))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			// Rollout errors stay on the state; they never cancel siblings.
			completion, state, _ := s.engine.Run(gctx, backend, ds.Example(i), opts.Sampling)
			completions[i] = completion
			states[i] = state
			return nil
		})
	}
	_ = g.Wait()

	var scores []domain.RewardScore
	switch {
	case s.rubric != nil && opts.ScoreRollouts:
		scores = s.rubric.ScoreRollouts(ctx, states, opts.ConcurrencyScoring)
	case s.rubric != nil:
		scores = make([]domain.RewardScore, n)
		for i := range scores {
			scores[i] = domain.ZeroScore(s.rubric.MetricNames())
		}
	default:
		scores = make([]domain.RewardScore, n)
		for i := range scores {
			scores[i] = domain.RewardScore{Metrics: map[string]float64{}}
		}
	}

	return newBatchResult(backend.Model(), ds, completions, states, scores, opts, time.Since(start)), nil
}
