// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rebalancer"

var (
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Vault evaluations by outcome and no-change reason.",
	}, []string{"outcome", "reason"})

	Rebalances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rebalances_total",
		Help:      "Rebalances committed.",
	})

	RebalanceGasCostUSD = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rebalance_gas_cost_usd",
		Help:      "Estimated gas cost of committed rebalances in USD.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Wall time of a single vault evaluation.",
		Buckets:   prometheus.DefBuckets,
	})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_fallbacks_total",
		Help:      "Strategy operations served by the deterministic fallback.",
	}, []string{"operation"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Failed calls to external data sources.",
	}, []string{"source"})

	WorkerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_runs_total",
		Help:      "Background worker iterations by result.",
	}, []string{"worker", "result"})
)

// ObserveEvaluation records one evaluation outcome. reason is empty for rebalances.
func ObserveEvaluation(outcome, reason string, seconds float64) {
	Evaluations.WithLabelValues(outcome, reason).Inc()
	EvaluationDuration.Observe(seconds)
}

// ObserveRebalance records a committed rebalance.
func ObserveRebalance(gasCostUSD float64) {
	Rebalances.Inc()
	RebalanceGasCostUSD.Observe(gasCostUSD)
}
