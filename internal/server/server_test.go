package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raaihank/civicguard/internal/boundary"
	"github.com/raaihank/civicguard/internal/cache"
	"github.com/raaihank/civicguard/internal/config"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/generator"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/metrics"
	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server  *Server
	counter *cache.MemoryCounter
}

func newTestServer(t *testing.T, gen generator.Generator, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	registry := rules.Default()
	log := logger.NewNop()
	if gen == nil {
		gen = generator.NewDemo(registry)
	}

	reg := prometheus.NewRegistry()
	counter := cache.NewMemoryCounter()
	pipeline := boundary.New(
		privacy.New(registry, log),
		gen,
		draft.NewLeakDetector(registry, draft.LeakOptions{}),
		counter,
		log,
		boundary.Options{Metrics: metrics.New(reg)},
	)

	s := New(cfg, Deps{
		Pipeline: pipeline,
		Registry: registry,
		Stats:    counter,
		Gatherer: reg,
	}, log)
	return &testServer{server: s, counter: counter}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

// leaking returns a structurally valid draft that names a legal status
func leaking() generator.Generator {
	return generator.Func(func(_ context.Context, req generator.Request) (draft.CandidateDraft, error) {
		raw := structuredRaw(req.VisitID)
		raw["soap"].(map[string]any)["assessment"] = "Client reports prior felony conviction."
		return draft.NewCandidate(raw), nil
	})
}

func structuredRaw(visitID string) map[string]any {
	psych := map[string]any{}
	for _, key := range draft.PsychosocialKeys {
		psych[key] = map[string]any{"value": "Not discussed.", "confidence": "insufficient_data"}
	}
	return map[string]any{
		"narrativeSummary": "Caregiver described stress at home visit " + visitID + ".",
		"soap": map[string]any{
			"subjective": "Caregiver reports feeling overwhelmed.",
			"objective":  "Body language and tone not available via post-visit audio reflection.",
			"assessment": "Moderate stress.",
			"plan":       "Follow up within a week.",
		},
		"psychosocial": psych,
		"stressFlags":  []any{},
		"boundaries": map[string]any{
			"legalStatusOmitted":        false,
			"overdocumentationWarnings": []any{},
			"insurancePhrasing":         []any{},
		},
	}
}

func TestHealthAndInfo(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = ts.do(http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, rules.Default().Version(), info["rules_version"])
	assert.Equal(t, "demo", info["generator"])
	assert.Equal(t, false, info["excerpts"])
}

func TestProcessAccepted(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	body := `{"visitId":"visit_42","transcript":"` + strings.ReplaceAll(generator.DemoTranscript, "\n", " ") + `"}`
	rec := ts.do(http.MethodPost, "/api/process", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var note draft.CaseNote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "visit_42", note.VisitID)
	assert.True(t, note.IsDraft)
	assert.Equal(t, draft.DraftLabel, note.DraftLabel)
	assert.NotEmpty(t, note.NarrativeSummary)

	stats, err := ts.counter.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Outcomes[string(boundary.OutcomeAccepted)])
}

func TestProcessLeakReturnsGenericMessage(t *testing.T) {
	ts := newTestServer(t, leaking(), nil)

	rec := ts.do(http.MethodPost, "/api/process", `{"visitId":"visit_1","transcript":"We talked about rent."}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, boundary.MessageSafetyRejection, resp.Error)
	assert.True(t, resp.Retryable)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "felony")
	assert.NotContains(t, rec.Body.String(), "assessment")
}

func TestProcessInvalidInput(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"visitId":`},
		{name: "missing transcript", body: `{"visitId":"visit_1"}`},
		{name: "blank transcript", body: `{"visitId":"visit_1","transcript":"   "}`},
		{name: "missing visit", body: `{"transcript":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/process", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), boundary.MessageInvalidInput)
			assert.Contains(t, rec.Body.String(), `"retryable":false`)
		})
	}
}

func TestProcessGenerationFailure(t *testing.T) {
	gen := generator.Func(func(context.Context, generator.Request) (draft.CandidateDraft, error) {
		return draft.CandidateDraft{}, &generator.TransientError{StatusCode: 503, Err: assert.AnError}
	})
	ts := newTestServer(t, gen, nil)

	rec := ts.do(http.MethodPost, "/api/process", `{"visitId":"visit_1","transcript":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, boundary.MessageGenerationFailed, resp.Error)
	assert.True(t, resp.Retryable)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestProcessBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, nil, func(c *config.Config) { c.Server.MaxBodyBytes = 32 })

	rec := ts.do(http.MethodPost, "/api/process", `{"visitId":"visit_1","transcript":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRedact(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodPost, "/api/redact", `{"transcript":"Email me at jane@example.com, she is undocumented."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RedactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.RedactionCount)
	assert.NotContains(t, resp.MaskedTranscript, "jane@example.com")
	assert.NotContains(t, resp.MaskedTranscript, "undocumented")
	assert.Contains(t, resp.MaskedTranscript, rules.LegalStatusLabel)
}

func TestTranscribe(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	t.Run("WithAudio", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("audio", "visit.webm")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte{1}, 48000))
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("visitId", "visit_7"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TranscribeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "visit_7", resp.VisitID)
		assert.Equal(t, 3, resp.DurationSeconds)
		assert.True(t, resp.IsMock)
		assert.Equal(t, generator.DemoTranscript, resp.Transcript)
	})

	t.Run("NoAudio", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TranscribeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp.VisitID, "visit_"))
		assert.Equal(t, 0, resp.DurationSeconds)
	})

	t.Run("NotMultipart", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/api/transcribe", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Expected multipart form data")
	})
}

func TestStatsAndMetrics(t *testing.T) {
	ts := newTestServer(t, leaking(), nil)
	ts.do(http.MethodPost, "/api/process", `{"visitId":"visit_1","transcript":"hello"}`)

	rec := ts.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(boundary.OutcomeRejectedLeak))

	rec = ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "civicguard_pipeline_outcomes_total")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, nil, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerMin = 60
		c.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/stats", "").Code)
	}
	rec := ts.do(http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// health is outside the limited subrouter
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	send := func(id string) string {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		if id != "" {
			req.Header.Set(RequestIDHeader, id)
		}
		rec := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Header().Get(RequestIDHeader)
	}

	const upstream = "6f1c2f0e-6f3a-4d2b-9a8e-0f4b5f1e2c3d"
	assert.Equal(t, upstream, send(upstream))

	generated := send("not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", generated)
	assert.Len(t, generated, 36)
}
