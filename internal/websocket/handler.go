package websocket

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleWebSocket checks dashboard credentials, upgrades the connection
// and hands it to the hub
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Dashboard upgrade failed", zap.Error(err))
		return
	}

	s := newSubscriber("client_"+uuid.NewString(), ClientIP(r), conn)
	select {
	case h.join <- s:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go s.writeLoop(h)
	go s.readLoop(h)
}

// authorized is true when no username is configured or basic auth matches
func (h *Hub) authorized(r *http.Request) bool {
	if h.config == nil || h.config.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password))
	return userOK&passOK == 1
}

func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.config == nil || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("Dashboard origin rejected", zap.String("origin", origin))
	return false
}

// ClientIP returns the caller address, preferring the first proxy hop
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
