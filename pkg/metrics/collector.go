// Package metrics provides token accounting and Prometheus collectors for the summarization pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcript_summarizer"

// Collector records pipeline phases and request outcomes.
type Collector struct {
	PhaseDuration   *prometheus.HistogramVec
	PhaseErrors     *prometheus.CounterVec
	PhasesActive    *prometheus.GaugeVec
	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	Tokens          *prometheus.CounterVec
}

// NewCollector creates and registers the collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of model runtime phases in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		PhaseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_errors_total",
			Help:      "Total number of failed model runtime phases",
		}, []string{"phase"}),
		PhasesActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phases_active",
			Help:      "Number of model runtime phases currently running",
		}, []string{"phase"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total summarization requests by outcome code",
		}, []string{"outcome", "device"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end summarization latency in seconds",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by summarization, split by kind",
		}, []string{"kind"}),
	}
}

// PhaseStarted marks a phase as running.
func (c *Collector) PhaseStarted(_ context.Context, phase string) {
	c.PhasesActive.WithLabelValues(phase).Inc()
}

// PhaseFinished records the phase latency and failure.
func (c *Collector) PhaseFinished(_ context.Context, phase string, elapsed time.Duration, err error) {
	c.PhasesActive.WithLabelValues(phase).Dec()
	c.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	if err != nil {
		c.PhaseErrors.WithLabelValues(phase).Inc()
	}
}

// Completed records one finished request. outcome is "ok" or an error code.
func (c *Collector) Completed(_ context.Context, outcome, device string, elapsed time.Duration, usage TokenUsage) {
	if device == "" {
		device = "none"
	}
	c.Requests.WithLabelValues(outcome, device).Inc()
	c.RequestDuration.Observe(elapsed.Seconds())
	if !usage.IsZero() {
		c.Tokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
		c.Tokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	}
}
