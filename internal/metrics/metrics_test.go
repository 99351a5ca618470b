package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveOutcome("ACCEPTED")
	c.ObserveOutcome("ACCEPTED")
	c.ObserveOutcome("REJECTED_LEAK")
	c.ObserveRedaction("ssn", 2)
	c.ObserveRedaction("ssn", 0)
	c.ObserveLeak("soap.assessment")
	c.ObserveGeneration(1500*time.Millisecond, true)

	if got := testutil.ToFloat64(c.outcomes.WithLabelValues("ACCEPTED")); got != 2 {
		t.Errorf("Expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(c.redactions.WithLabelValues("ssn")); got != 2 {
		t.Errorf("Expected 2 ssn redactions, got %v", got)
	}
	if got := testutil.ToFloat64(c.leaks.WithLabelValues("soap.assessment")); got != 1 {
		t.Errorf("Expected 1 leak, got %v", got)
	}

	done := c.Begin()
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveOutcome("ACCEPTED")
	c.ObserveRedaction("ssn", 1)
	c.ObserveLeak("narrativeSummary")
	c.ObserveGeneration(time.Second, false)
	c.Begin()()
}
