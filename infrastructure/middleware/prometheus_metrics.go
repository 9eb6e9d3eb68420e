// Package middleware provides cross-cutting concerns for the rollout engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-rollout/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of rollout throughput, turn
// counts, reward distributions, and scoring failures.
type PrometheusMetrics struct {
	rolloutsTotal    *prometheus.CounterVec
	rewardFailures   *prometheus.CounterVec
	operationCounter *prometheus.CounterVec
	rolloutTurns     *prometheus.HistogramVec
	rolloutReward    *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		rolloutsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollouts_total",
				Help: "Total number of rollouts by task and terminal status.",
			},
			[]string{"task", "status"},
		),
		rewardFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_failures_total",
				Help: "Total number of reward function failures (errors, panics, non-finite values).",
			},
			[]string{"reward"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_engine_operations_total",
				Help: "Total number of miscellaneous engine operations.",
			},
			[]string{"operation", "task"},
		),
		rolloutTurns: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollout_turns",
				Help:    "Turns used per rollout.",
				Buckets: prometheus.LinearBuckets(1, 1, 20),
			},
			[]string{"task"},
		),
		rolloutReward: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollout_reward",
				Help:    "Final weighted reward per rollout.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"task"},
		),
		executionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollout_engine_duration_seconds",
				Help:    "Execution time of engine operations (generation, scoring).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "task"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, taskLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "rollouts_total":
		pm.rolloutsTotal.WithLabelValues(taskLabel(labels), statusLabel(labels)).Add(value)
	case "reward_failures_total":
		pm.rewardFailures.WithLabelValues(labels["reward"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, taskLabel(labels)).Add(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in metric-specific Prometheus histograms.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "rollout_turns":
		pm.rolloutTurns.WithLabelValues(taskLabel(labels)).Observe(value)
	case "rollout_reward":
		pm.rolloutReward.WithLabelValues(taskLabel(labels)).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, taskLabel(labels)).Observe(value)
	}
}

func taskLabel(labels map[string]string) string {
	if task, ok := labels["task"]; ok {
		return task
	}
	return "unknown"
}

func statusLabel(labels map[string]string) string {
	if status, ok := labels["status"]; ok {
		return status
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
