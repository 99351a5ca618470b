package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/raaihank/civicguard/internal/boundary"
	"github.com/raaihank/civicguard/internal/generator"
	"github.com/raaihank/civicguard/internal/websocket"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bytesPerSecond approximates compressed speech audio for the mock duration
const bytesPerSecond = 16000

// ProcessRequest is the body of POST /api/process
type ProcessRequest struct {
	VisitID    string `json:"visitId"`
	Transcript string `json:"transcript"`
}

// RedactRequest is the body of POST /api/redact
type RedactRequest struct {
	Transcript string `json:"transcript"`
}

// RedactResponse is returned by POST /api/redact
type RedactResponse struct {
	MaskedTranscript string `json:"maskedTranscript"`
	RedactionCount   int    `json:"redactionCount"`
	RulesVersion     string `json:"rulesVersion"`
}

// TranscribeResponse is returned by POST /api/transcribe
type TranscribeResponse struct {
	VisitID         string `json:"visitId"`
	Transcript      string `json:"transcript"`
	DurationSeconds int    `json:"durationSeconds"`
	IsMock          bool   `json:"isMock"`
}

// ErrorResponse is the only error shape an API caller sees
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
	Retryable bool   `json:"retryable"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo reports the build and the active rule set
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	registry := s.deps.Registry
	info := map[string]interface{}{
		"name":            "CivicGuard",
		"version":         Version,
		"rules_version":   registry.Version(),
		"pattern_rules":   len(registry.PatternRules()),
		"term_rules":      len(registry.TermRules()),
		"forbidden_terms": len(registry.ForbiddenTerms()),
		"generator":       s.config.Generator.Provider,
		"excerpts":        s.config.Boundary.IncludeExcerpts,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.BreakerState != nil {
		info["circuit"] = s.deps.BreakerState()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleStats returns aggregate outcome counts for the dashboard
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Stats.GetStats(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to load stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable", getRequestID(r.Context()))
		return
	}

	resp := map[string]interface{}{
		"stats":         stats,
		"rules_version": s.deps.Registry.Version(),
	}
	if s.deps.Hub != nil {
		hub := s.deps.Hub.GetStats()
		resp["websocket"] = map[string]interface{}{
			"active_connections": hub.ActiveConnections,
			"total_broadcasts":   hub.TotalBroadcasts,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTranscribe stands in for speech-to-text. It accepts an optional
// audio upload and always returns the demo transcript.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxAudioBytes)

	if err := r.ParseMultipartForm(s.config.Server.MaxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart form data", requestID)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	duration := 0
	if file, header, err := r.FormFile("audio"); err == nil {
		_ = file.Close()
		duration = int(header.Size / bytesPerSecond)
		if duration < 1 {
			duration = 1
		}
	}

	visitID := r.FormValue("visitId")
	if visitID == "" {
		visitID = "visit_" + uuid.NewString()
	}

	s.logger.WithRequestID(requestID).WithVisitID(visitID).Info("Mock transcription served",
		zap.Int("duration_seconds", duration),
	)

	writeJSON(w, http.StatusOK, TranscribeResponse{
		VisitID:         visitID,
		Transcript:      generator.DemoTranscript,
		DurationSeconds: duration,
		IsMock:          true,
	})
}

// handleRedact runs the masking stage alone
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)

	var req RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, decodeStatus(err), boundary.MessageInvalidInput, requestID)
		return
	}

	result := s.deps.Pipeline.Mask(req.Transcript)

	if s.deps.Hub != nil {
		byRule := make(map[string]int, len(result.Findings))
		for _, f := range result.Findings {
			byRule[f.Rule] += f.Count
		}
		s.deps.Hub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRedaction,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.RedactionEvent{
				RequestID:      requestID,
				RedactionCount: result.RedactionCount,
				ByRule:         byRule,
			},
		})
	}

	writeJSON(w, http.StatusOK, RedactResponse{
		MaskedTranscript: result.MaskedText,
		RedactionCount:   result.RedactionCount,
		RulesVersion:     s.deps.Registry.Version(),
	})
}

// handleProcess runs the full boundary pipeline and returns a draft case
// note. Rejections carry only the public message.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, decodeStatus(err), boundary.MessageInvalidInput, requestID)
		return
	}

	accepted, err := s.deps.Pipeline.Process(r.Context(), boundary.Request{
		RequestID:  requestID,
		VisitID:    req.VisitID,
		Transcript: req.Transcript,
	})
	if err != nil {
		writeJSON(w, statusFor(err), ErrorResponse{
			Error:     boundary.PublicMessage(err),
			RequestID: requestID,
			Retryable: boundary.Retryable(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, accepted.CaseNote())
}

// statusFor maps a pipeline rejection to an HTTP status
func statusFor(err error) int {
	switch boundary.OutcomeOf(err) {
	case boundary.OutcomeRejectedInput:
		return http.StatusBadRequest
	case boundary.OutcomeRejectedStructure, boundary.OutcomeRejectedLeak:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// decodeStatus separates oversized bodies from malformed ones
func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, status int, message, requestID string) {
	writeJSON(w, status, ErrorResponse{Error: message, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
