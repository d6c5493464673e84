// Package metrics exposes the scoring pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScoresTotal counts scoring outcomes per (slot, sport) pair.
	ScoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotline_scores_total",
		Help: "Scoring pipeline outcomes by result",
	}, []string{"outcome"}) // scored, failed, skipped

	// LLMAttemptsTotal counts individual model call attempts.
	LLMAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotline_llm_attempts_total",
		Help: "Model call attempts by result",
	}, []string{"result"}) // ok, error

	// LLMCallSeconds tracks end-to-end model call latency including retries.
	LLMCallSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spotline_llm_call_seconds",
		Help:    "Latency of successful scoring calls including retries",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ScoringRunSeconds tracks full orchestrator runs.
	ScoringRunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spotline_scoring_run_seconds",
		Help:    "Duration of a full orchestrator run for one scrape",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// QueueDepth is the number of scoring jobs waiting in the queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spotline_queue_depth",
		Help: "Scoring jobs currently queued",
	})
)
