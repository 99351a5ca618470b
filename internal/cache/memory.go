package cache

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/civicguard/internal/audit"
)

// MemoryCounter keeps counts in process. Used when no Redis is configured.
type MemoryCounter struct {
	mu    sync.Mutex
	stats *Stats
}

// NewMemoryCounter creates an empty in-process counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{stats: newStats("memory", time.Now())}
}

// Record adds one event to the counts
func (m *MemoryCounter) Record(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Outcomes[e.Outcome]++
	for _, f := range e.Findings {
		m.stats.Redactions[f.Rule] += int64(f.Count)
	}
	for _, term := range e.LeakTerms() {
		m.stats.LeakTerms[term]++
	}
	return nil
}

// GetStats returns a copy of the counts
func (m *MemoryCounter) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := newStats(m.stats.Backend, m.stats.Since)
	for k, v := range m.stats.Outcomes {
		out.Outcomes[k] = v
	}
	for k, v := range m.stats.Redactions {
		out.Redactions[k] = v
	}
	for k, v := range m.stats.LeakTerms {
		out.LeakTerms[k] = v
	}
	out.total()
	return out, nil
}

// Clear resets the counts
func (m *MemoryCounter) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = newStats("memory", time.Now())
	return nil
}
