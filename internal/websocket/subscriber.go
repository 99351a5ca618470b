package websocket

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	idleTimeout    = 60 * time.Second
	pingEvery      = idleTimeout * 9 / 10
	maxInboundSize = 512
)

// subscriber is one dashboard connection. outbox is closed by the hub,
// never by the subscriber.
type subscriber struct {
	id     string
	ip     string
	conn   *websocket.Conn
	outbox chan Event

	// guarded by Hub.mu
	filter *SubscriptionRequest
}

func newSubscriber(id, ip string, conn *websocket.Conn) *subscriber {
	return &subscriber{id: id, ip: ip, conn: conn, outbox: make(chan Event, queueDepth)}
}

// offer queues without blocking and reports whether there was room
func (s *subscriber) offer(event Event) bool {
	select {
	case s.outbox <- event:
		return true
	default:
		return false
	}
}

// wants applies the subscription; no subscription means everything
func (s *subscriber) wants(event Event) bool {
	if s.filter == nil {
		return true
	}
	for _, t := range s.filter.Events {
		if t != event.Type {
			continue
		}
		if s.filter.Filter == nil {
			return true
		}
		return applyEventFilter(s.filter.Filter, event)
	}
	return false
}

// applyEventFilter narrows pipeline outcomes; other event types pass
func applyEventFilter(filter *EventFilter, event Event) bool {
	pe, ok := event.Data.(PipelineEvent)
	if !ok {
		return true
	}
	if filter.RejectedOnly && pe.Outcome == "ACCEPTED" {
		return false
	}
	if len(filter.Outcomes) == 0 {
		return true
	}
	for _, o := range filter.Outcomes {
		if strings.EqualFold(o, pe.Outcome) {
			return true
		}
	}
	return false
}

// writeLoop drains the outbox and keeps the connection alive with pings.
// It owns all writes to conn.
func (s *subscriber) writeLoop(h *Hub) {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case event, open := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode dashboard event", zap.Error(err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("Dashboard write failed",
					zap.String("client_id", s.id),
					zap.Error(err),
				)
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop handles control frames until the peer goes away, then asks the
// hub to drop the subscriber
func (s *subscriber) readLoop(h *Hub) {
	defer func() {
		select {
		case h.leave <- s:
		case <-h.stopped:
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Dashboard connection closed unexpectedly",
					zap.String("client_id", s.id),
					zap.Error(err),
				)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			h.logger.Debug("Ignoring malformed dashboard frame", zap.String("client_id", s.id))
			continue
		}
		s.control(h, msg)
	}
}

func (s *subscriber) control(h *Hub, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		body, err := json.Marshal(msg.Data)
		if err != nil {
			return
		}
		var req SubscriptionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		h.mu.Lock()
		s.filter = &req
		h.mu.Unlock()
		h.logger.Debug("Dashboard subscription changed",
			zap.String("client_id", s.id),
			zap.Int("event_types", len(req.Events)),
		)
	case "ping":
		h.mu.RLock()
		defer h.mu.RUnlock()
		if _, live := h.subs[s]; live {
			s.offer(Event{Type: "pong", Timestamp: time.Now()})
		}
	}
}
