package cache

import (
	"context"
	"time"

	"github.com/raaihank/civicguard/internal/audit"
)

// Stats is the aggregate view served on the stats endpoint. It holds counts
// only.
type Stats struct {
	Outcomes       map[string]int64 `json:"outcomes"`
	Redactions     map[string]int64 `json:"redactions"`
	LeakTerms      map[string]int64 `json:"leak_terms"`
	TotalRequests  int64            `json:"total_requests"`
	RedactionTotal int64            `json:"redaction_total"`
	Since          time.Time        `json:"since"`
	Backend        string           `json:"backend"`
	MemoryUsage    int64            `json:"memory_usage_bytes,omitempty"`
	TotalKeys      int64            `json:"total_keys,omitempty"`
}

// Counter aggregates audit events. Both implementations also satisfy
// audit.Recorder so they can sit in an audit.Multi.
type Counter interface {
	audit.Recorder
	GetStats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
}

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	Retention      time.Duration `yaml:"retention" mapstructure:"retention"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

func newStats(backend string, since time.Time) *Stats {
	return &Stats{
		Outcomes:   make(map[string]int64),
		Redactions: make(map[string]int64),
		LeakTerms:  make(map[string]int64),
		Since:      since,
		Backend:    backend,
	}
}

func (s *Stats) total() {
	s.TotalRequests = 0
	for _, n := range s.Outcomes {
		s.TotalRequests += n
	}
	s.RedactionTotal = 0
	for _, n := range s.Redactions {
		s.RedactionTotal += n
	}
}
