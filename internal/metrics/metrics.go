// Package metrics exposes Prometheus collectors for the boundary pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the pipeline's Prometheus metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	outcomes   *prometheus.CounterVec
	redactions *prometheus.CounterVec
	leaks      *prometheus.CounterVec
	generation *prometheus.HistogramVec
	inFlight   prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civicguard_pipeline_outcomes_total",
				Help: "Boundary pipeline requests by terminal outcome",
			},
			[]string{"outcome"},
		),
		redactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civicguard_redactions_total",
				Help: "Transcript redactions by rule",
			},
			[]string{"rule"},
		),
		leaks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civicguard_leak_findings_total",
				Help: "Forbidden-term findings in generated drafts by field",
			},
			[]string{"field"},
		),
		generation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "civicguard_generation_duration_seconds",
				Help:    "Latency of the generative call",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"status"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "civicguard_pipeline_in_flight",
				Help: "Pipeline requests currently executing",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(c.outcomes, c.redactions, c.leaks, c.generation, c.inFlight)
	}
	return c
}

// ObserveOutcome counts a finished request
func (c *Collector) ObserveOutcome(outcome string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveRedaction counts redactions made by one rule
func (c *Collector) ObserveRedaction(rule string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.redactions.WithLabelValues(rule).Add(float64(count))
}

// ObserveLeak counts one forbidden-term finding
func (c *Collector) ObserveLeak(field string) {
	if c == nil {
		return
	}
	c.leaks.WithLabelValues(field).Inc()
}

// ObserveGeneration records the latency of a generative call
func (c *Collector) ObserveGeneration(d time.Duration, ok bool) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	c.generation.WithLabelValues(status).Observe(d.Seconds())
}

// Begin marks a request as in flight and returns its completion func
func (c *Collector) Begin() func() {
	if c == nil {
		return func() {}
	}
	c.inFlight.Inc()
	return c.inFlight.Dec
}
