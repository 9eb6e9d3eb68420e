package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// echoBackend derives each response deterministically from the incoming
// context, so batch outputs are comparable across concurrency levels. It is
// stateless and safe for concurrent use.
type echoBackend struct {
	// failOn marks prompt contents whose rollouts should fail.
	failOn map[string]bool
}

var _ ports.ModelBackend = (*echoBackend)(nil)

func (b *echoBackend) Generate(
	_ context.Context,
	messages []domain.Message,
	_ []ports.Tool,
	_ ports.SamplingParams,
) (domain.ModelResponse, error) {
	first := messages[0].Content
	if b.failOn[first] {
		return domain.ModelResponse{}, fmt.Errorf("scripted failure for %q", first)
	}
	return domain.ModelResponse{
		ID:      "echo",
		Message: &domain.Message{Role: domain.RoleAssistant, Content: "echo: " + first},
	}, nil
}

func (b *echoBackend) Model() string { return "echo" }

func promptColumn(n int) []domain.Prompt {
	prompts := make([]domain.Prompt, n)
	for i := range prompts {
		prompts[i] = domain.ChatPrompt(domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("example-%d", i),
		})
	}
	return prompts
}

func newTestScheduler(t *testing.T, withRubric bool) *Scheduler {
	t.Helper()
	engine, err := NewEngine(nil, EngineConfig{Mode: domain.ModeChat, MaxTurns: 1})
	require.NoError(t, err)

	var rubric *Rubric
	if withRubric {
		rubric, err = NewRubric([]RewardSpec{{
			Name: "echo_check",
			Func: func(_ context.Context, rc ports.RewardContext) (float64, error) {
				if rc.State != nil && rc.State.Err != nil {
					return 0, nil
				}
				return 1, nil
			},
		}}, nil, RubricConfig{})
		require.NoError(t, err)
	}

	scheduler, err := NewScheduler(engine, rubric)
	require.NoError(t, err)
	return scheduler
}

func TestDatasetValidate(t *testing.T) {
	tests := []struct {
		name    string
		ds      Dataset
		wantErr bool
	}{
		{
			name: "aligned columns pass",
			ds: Dataset{
				Prompts: promptColumn(2),
				Answers: []string{"a", "b"},
				Tasks:   []string{"t", "t"},
			},
		},
		{
			name: "nil optional columns pass",
			ds:   Dataset{Prompts: promptColumn(3)},
		},
		{
			name:    "empty prompts fail",
			ds:      Dataset{},
			wantErr: true,
		},
		{
			name: "short answers column fails",
			ds: Dataset{
				Prompts: promptColumn(3),
				Answers: []string{"only one"},
			},
			wantErr: true,
		},
		{
			name: "long infos column fails",
			ds: Dataset{
				Prompts: promptColumn(1),
				Infos:   []map[string]any{{}, {}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.Validate()
			if tt.wantErr {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGenerateValidatesBeforeAnyRollout(t *testing.T) {
	scheduler := newTestScheduler(t, true)
	ds := Dataset{Prompts: promptColumn(2), Answers: []string{"too short"}}

	result, err := scheduler.Generate(context.Background(), &echoBackend{}, ds, BatchOptions{})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, result)
}

func TestGenerateIndexAlignment(t *testing.T) {
	// The same batch must produce identically-placed outputs regardless of
	// how much the concurrency limit scrambles completion order.
	const n = 16
	ds := Dataset{Prompts: promptColumn(n)}

	for _, concurrency := range []int{1, 4, 0} {
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			scheduler := newTestScheduler(t, true)
			result, err := scheduler.Generate(context.Background(), &echoBackend{}, ds, BatchOptions{
				ConcurrencyGeneration: concurrency,
				ConcurrencyScoring:    concurrency,
				ScoreRollouts:         true,
			})
			require.NoError(t, err)

			require.Len(t, result.Completions, n)
			for i := 0; i < n; i++ {
				require.NotEmpty(t, result.Completions[i], "slot %d", i)
				assert.Equal(t, fmt.Sprintf("echo: example-%d", i),
					result.Completions[i][0].Content,
					"slot %d must hold example %d's completion", i, i)
				assert.Equal(t, i, result.ExampleIDs[i])
				assert.Equal(t, 1.0, result.Rewards[i])
			}
		})
	}
}

func TestGenerateContainsRolloutFailures(t *testing.T) {
	ds := Dataset{Prompts: promptColumn(3)}
	backend := &echoBackend{failOn: map[string]bool{"example-1": true}}
	scheduler := newTestScheduler(t, true)

	result, err := scheduler.Generate(context.Background(), backend, ds, BatchOptions{
		ConcurrencyGeneration: 3,
		ScoreRollouts:         true,
	})

	require.NoError(t, err, "per-rollout failures never fail the batch")
	require.Len(t, result.States, 3)

	assert.NoError(t, result.States[0].Err)
	assert.Error(t, result.States[1].Err, "failed slot keeps its state with the error attached")
	assert.NoError(t, result.States[2].Err)

	assert.Equal(t, 1.0, result.Rewards[0])
	assert.Equal(t, 0.0, result.Rewards[1])
	assert.Equal(t, 1.0, result.Rewards[2])
}

func TestGenerateScoringDisabled(t *testing.T) {
	ds := Dataset{Prompts: promptColumn(2)}
	scheduler := newTestScheduler(t, true)

	result, err := scheduler.Generate(context.Background(), &echoBackend{}, ds, BatchOptions{
		ScoreRollouts: false,
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, result.Rewards)
	require.Contains(t, result.Metrics, "echo_check",
		"disabled scoring still reports the full metric key set")
	assert.Equal(t, []float64{0, 0}, result.Metrics["echo_check"])
}

func TestGenerateWithoutRubric(t *testing.T) {
	ds := Dataset{Prompts: promptColumn(2)}
	scheduler := newTestScheduler(t, false)

	result, err := scheduler.Generate(context.Background(), &echoBackend{}, ds, BatchOptions{
		ScoreRollouts: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, result.Rewards)
	assert.Empty(t, result.Metrics)
}

func TestGenerateMetadata(t *testing.T) {
	ds := Dataset{
		Prompts: promptColumn(4),
		Tasks:   []string{"a", "a", "b", "b"},
	}
	scheduler := newTestScheduler(t, true)

	result, err := scheduler.Generate(context.Background(), &echoBackend{}, ds, BatchOptions{
		ScoreRollouts: true,
	})
	require.NoError(t, err)

	md := result.Metadata
	assert.NotEmpty(t, md.RunID)
	assert.Equal(t, "echo", md.Model)
	assert.Equal(t, 4, md.NumExamples)
	assert.InDelta(t, 1.0, md.AvgReward, 1e-9)
	assert.InDelta(t, 1.0, md.AvgMetrics["echo_check"], 1e-9)
	assert.Equal(t, []string{"a", "a", "b", "b"}, result.Tasks)
}

// taskBackend picks its behavior from the prompt content: "endable" and
// "endless" examples get ordinary answers, "toolong" gets the sentinel.
type taskBackend struct{}

func (taskBackend) Generate(
	_ context.Context,
	messages []domain.Message,
	_ []ports.Tool,
	_ ports.SamplingParams,
) (domain.ModelResponse, error) {
	switch messages[0].Content {
	case "endable":
		return domain.ModelResponse{ID: "r", Message: &domain.Message{
			Role: domain.RoleAssistant, Content: "I believe it is Paris",
		}}, nil
	case "toolong":
		return domain.OverlongPromptResponse(), nil
	default:
		return domain.ModelResponse{ID: "r", Message: &domain.Message{
			Role: domain.RoleAssistant, Content: "no idea",
		}}, nil
	}
}

func (taskBackend) Model() string { return "task-backend" }

func TestGenerateMixedTerminalConditions(t *testing.T) {
	// Three rollouts ending three different ways: a custom predicate after
	// two turns, the turn bound, and the too-long sentinel on turn one.
	hooks := ports.HookFuncs{
		Completed: func(_ context.Context, state *domain.RolloutState) (bool, error) {
			return state.Task == "endable" && state.Turn >= 2, nil
		},
	}
	engine, err := NewEngine(hooks, EngineConfig{Mode: domain.ModeChat, MaxTurns: 5})
	require.NoError(t, err)

	rubric, err := NewRubric([]RewardSpec{{
		Name: "contains_answer",
		Func: func(_ context.Context, rc ports.RewardContext) (float64, error) {
			if strings.Contains(domain.MessagesText(rc.Completion), rc.Answer) {
				return 1.0, nil
			}
			return 0.0, nil
		},
	}}, nil, RubricConfig{})
	require.NoError(t, err)

	scheduler, err := NewScheduler(engine, rubric)
	require.NoError(t, err)

	ds := Dataset{
		Prompts: []domain.Prompt{
			domain.ChatPrompt(domain.Message{Role: domain.RoleUser, Content: "endable"}),
			domain.ChatPrompt(domain.Message{Role: domain.RoleUser, Content: "endless"}),
			domain.ChatPrompt(domain.Message{Role: domain.RoleUser, Content: "toolong"}),
		},
		Answers: []string{"Paris", "Paris", "Paris"},
		Tasks:   []string{"endable", "endless", "toolong"},
	}

	result, err := scheduler.Generate(context.Background(), taskBackend{}, ds, BatchOptions{
		ConcurrencyGeneration: 3,
		ScoreRollouts:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.Rewards[0])
	assert.Equal(t, 2, result.States[0].Turn)

	assert.Equal(t, 0.0, result.Rewards[1])
	assert.Equal(t, 5, result.States[1].Turn)

	assert.Equal(t, 0.0, result.Rewards[2])
	assert.Equal(t, 1, result.States[2].Turn)
	assert.True(t, result.States[2].PromptTooLong)
	assert.Empty(t, result.Completions[2])
	assert.NoError(t, result.States[2].Err, "the too-long sentinel is terminal, not an error")
}

func TestNewSchedulerRequiresEngine(t *testing.T) {
	_, err := NewScheduler(nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
