package application

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// RunMetadata summarizes one batch run for downstream consumers.
type RunMetadata struct {
	RunID       string               `json:"run_id"`
	Model       string               `json:"model"`
	NumExamples int                  `json:"num_examples"`
	NumRollouts int                  `json:"num_rollouts"`
	Sampling    ports.SamplingParams `json:"sampling"`
	WallClock   time.Duration        `json:"wall_clock"`
	AvgReward   float64              `json:"avg_reward"`
	AvgMetrics  map[string]float64   `json:"avg_metrics"`
	StartedAt   time.Time            `json:"started_at"`
}

// BatchResult is the handoff shape produced for downstream collaborators
// (results writers, browsers). Every column is index-aligned with the input
// dataset: slot i always corresponds to example i, including failed
// rollouts, which keep their state and a zero reward rather than vanishing.
type BatchResult struct {
	Prompts     []domain.Prompt        `json:"prompts"`
	Completions [][]domain.Message     `json:"completions"`
	States      []*domain.RolloutState `json:"states"`
	Answers     []string               `json:"answers"`
	Tasks       []string               `json:"tasks"`
	Infos       []map[string]any       `json:"infos"`
	ExampleIDs  []int                  `json:"example_ids"`
	Rewards     []float64              `json:"rewards"`
	Metrics     map[string][]float64   `json:"metrics"`
	Metadata    RunMetadata            `json:"metadata"`
}

func newBatchResult(
	model string,
	ds Dataset,
	completions [][]domain.Message,
	states []*domain.RolloutState,
	scores []domain.RewardScore,
	opts BatchOptions,
	elapsed time.Duration,
) *BatchResult {
	n := ds.Len()
	res := &BatchResult{
		Prompts:     ds.Prompts,
		Completions: completions,
		States:      states,
		Answers:     make([]string, n),
		Tasks:       make([]string, n),
		Infos:       make([]map[string]any, n),
		ExampleIDs:  make([]int, n),
		Rewards:     make([]float64, n),
		Metrics:     make(map[string][]float64),
	}

	for i := 0; i < n; i++ {
		ex := ds.Example(i)
		res.Answers[i] = ex.Answer
		res.Tasks[i] = ex.Task
		res.Infos[i] = ex.Info
		res.ExampleIDs[i] = ex.ID
		res.Rewards[i] = scores[i].Reward
		for name, v := range scores[i].Metrics {
			col, ok := res.Metrics[name]
			if !ok {
				col = make([]float64, n)
				res.Metrics[name] = col
			}
			col[i] = v
		}
	}

	avgMetrics := make(map[string]float64, len(res.Metrics))
	for name, col := range res.Metrics {
		avgMetrics[name] = stat.Mean(col, nil)
	}
	var avgReward float64
	if n > 0 {
		avgReward = stat.Mean(res.Rewards, nil)
	}

	res.Metadata = RunMetadata{
		RunID:       uuid.NewString(),
		Model:       model,
		NumExamples: n,
		NumRollouts: n,
		Sampling:    opts.Sampling,
		WallClock:   elapsed,
		AvgReward:   avgReward,
		AvgMetrics:  avgMetrics,
		StartedAt:   time.Now().Add(-elapsed),
	}
	return res
}
