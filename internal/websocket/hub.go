package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/raaihank/civicguard/internal/audit"
	"github.com/raaihank/civicguard/internal/logger"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// queueDepth bounds both the hub queue and each connection's outbox
const queueDepth = 256

// HubConfig selects which events reach dashboards and who may connect
type HubConfig struct {
	BroadcastPipeline    bool
	BroadcastRedactions  bool
	BroadcastSystem      bool
	BroadcastConnections bool
	Username             string
	Password             string
	AllowedOrigins       []string
}

func (c *HubConfig) allows(t EventType) bool {
	if c == nil {
		return false
	}
	switch t {
	case EventTypePipeline:
		return c.BroadcastPipeline
	case EventTypeRedaction:
		return c.BroadcastRedactions
	case EventTypeSystemStatus:
		return c.BroadcastSystem
	case EventTypeConnection:
		return c.BroadcastConnections
	}
	return false
}

// HubStats is a point-in-time view of dashboard traffic
type HubStats struct {
	ActiveConnections int64
	TotalConnections  int64
	TotalBroadcasts   int64
	Delivered         int64
	Evicted           int64
	LastBroadcast     time.Time
}

// Hub fans pipeline outcomes out to connected dashboards. Only Run touches
// membership changes; fan-out and stats share mu.
type Hub struct {
	config   *HubConfig
	logger   *logger.Logger
	upgrader websocket.Upgrader

	broadcast chan Event
	join      chan *subscriber
	leave     chan *subscriber
	stopped   chan struct{}

	mu    sync.RWMutex
	subs  map[*subscriber]struct{}
	stats HubStats
}

// NewHub creates a hub; call Run before accepting connections
func NewHub(config *HubConfig, log *logger.Logger) *Hub {
	h := &Hub{
		config:    config,
		logger:    log.WithComponent("websocket"),
		broadcast: make(chan Event, queueDepth),
		join:      make(chan *subscriber),
		leave:     make(chan *subscriber),
		stopped:   make(chan struct{}),
		subs:      make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// Run serves membership changes and queued events until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Dashboard hub running")
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			h.disconnectAll()
			h.logger.Info("Dashboard hub stopped")
			return
		case s := <-h.join:
			h.add(s)
		case s := <-h.leave:
			h.remove(s)
		case event := <-h.broadcast:
			h.fanOut(event, nil)
		}
	}
}

// Record turns an audit event into a count-only pipeline outcome so the
// hub can sit in the recorder chain
func (h *Hub) Record(_ context.Context, e audit.Event) error {
	h.BroadcastEvent(Event{
		Type:      EventTypePipeline,
		Timestamp: time.Now(),
		RequestID: e.RequestID,
		Data: PipelineEvent{
			RequestID:      e.RequestID,
			VisitID:        e.VisitID,
			Outcome:        e.Outcome,
			Stage:          e.Stage,
			RulesVersion:   e.RulesVersion,
			RedactionCount: e.RedactionCount,
			ErrorCount:     len(e.StructureErrors),
			LeakCount:      len(e.Leaks),
			ProcessingMS:   float64(e.Duration.Microseconds()) / 1000,
		},
	})
	return nil
}

// BroadcastEvent queues event unless its type is switched off. A full
// queue drops the event rather than block the request path.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.config.allows(event.Type) {
		return
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Dashboard queue full, event dropped",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// GetStats returns a copy of the traffic counters
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.stats
	out.ActiveConnections = int64(len(h.subs))
	return out
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.stats.TotalConnections++
	active := len(h.subs)
	h.mu.Unlock()

	h.logger.Info("Dashboard connected",
		zap.String("client_id", s.id),
		zap.String("client_ip", s.ip),
		zap.Int("active_connections", active),
	)
	h.announce(s, "connected", s)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, known := h.subs[s]
	if known {
		h.evict(s)
	}
	active := len(h.subs)
	h.mu.Unlock()
	if !known {
		return
	}

	h.logger.Info("Dashboard disconnected",
		zap.String("client_id", s.id),
		zap.Int("active_connections", active),
	)
	h.announce(s, "disconnected", nil)
}

func (h *Hub) announce(s *subscriber, action string, skip *subscriber) {
	if !h.config.allows(EventTypeConnection) {
		return
	}
	h.fanOut(Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:   action,
			ClientID: s.id,
			ClientIP: s.ip,
			Message:  "dashboard " + s.id + " " + action,
		},
	}, skip)
}

// fanOut delivers event to every interested subscriber except skip. A
// subscriber whose outbox is full is evicted.
func (h *Hub) fanOut(event Event, skip *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcast = time.Now()
	for s := range h.subs {
		if s == skip || !s.wants(event) {
			continue
		}
		if s.offer(event) {
			h.stats.Delivered++
			continue
		}
		h.logger.Warn("Dashboard too slow, disconnecting", zap.String("client_id", s.id))
		h.stats.Evicted++
		h.evict(s)
	}
}

// evict must be called with mu held
func (h *Hub) evict(s *subscriber) {
	delete(h.subs, s)
	close(s.outbox)
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.evict(s)
	}
}
