package domain

// RewardScore is the outcome of scoring one rollout against a rubric.
type RewardScore struct {
	// Reward is the weighted sum over all reward functions.
	Reward float64 `json:"reward"`

	// Metrics maps each reward function's name to its raw, unweighted
	// score. The map always has one entry per configured function, with a
	// zero value when the function failed.
	Metrics map[string]float64 `json:"metrics"`
}

// ZeroScore returns a RewardScore with every named metric set to zero.
// Failed or skipped rollouts receive this so their batch slot keeps the
// full metric key set.
func ZeroScore(metricNames []string) RewardScore {
	metrics := make(map[string]float64, len(metricNames))
	for _, name := range metricNames {
		metrics[name] = 0
	}
	return RewardScore{Metrics: metrics}
}
