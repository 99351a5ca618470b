package boundary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/civicguard/internal/audit"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/generator"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRecorder keeps audit events in memory
type memoryRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memoryRecorder) Record(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRecorder) all() []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Event(nil), m.events...)
}

func candidate(mutate func(map[string]any)) map[string]any {
	psych := map[string]any{}
	for _, key := range draft.PsychosocialKeys {
		psych[key] = map[string]any{"value": "Not discussed.", "confidence": "insufficient_data"}
	}
	raw := map[string]any{
		"narrativeSummary": "Caregiver described rent stress after a job change.",
		"soap": map[string]any{
			"subjective": "Caregiver reports feeling exhausted.",
			"objective":  "Body language and tone not available via post-visit audio reflection.",
			"assessment": "Elevated financial stress.",
			"plan":       "Connect with rental assistance.",
		},
		"psychosocial": psych,
		"stressFlags":  []any{map[string]any{"keyword": "exhausted", "severity": "medium", "context": "work"}},
		"boundaries": map[string]any{
			"legalStatusOmitted":        true,
			"overdocumentationWarnings": []any{},
			"insurancePhrasing":         []any{},
		},
	}
	if mutate != nil {
		mutate(raw)
	}
	return raw
}

type fixture struct {
	pipeline *Pipeline
	recorder *memoryRecorder
	seen     []generator.Request
}

func newFixture(t *testing.T, gen func(generator.Request) (draft.CandidateDraft, error)) *fixture {
	t.Helper()
	registry := rules.Default()
	log := logger.NewNop()
	f := &fixture{recorder: &memoryRecorder{}}
	g := generator.Func(func(_ context.Context, req generator.Request) (draft.CandidateDraft, error) {
		f.seen = append(f.seen, req)
		return gen(req)
	})
	clock := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	f.pipeline = New(
		privacy.New(registry, log),
		g,
		draft.NewLeakDetector(registry, draft.LeakOptions{}),
		f.recorder,
		log,
		Options{Clock: func() time.Time { return clock }},
	)
	return f
}

func fixed(raw map[string]any) func(generator.Request) (draft.CandidateDraft, error) {
	return func(generator.Request) (draft.CandidateDraft, error) {
		return draft.NewCandidate(raw), nil
	}
}

func TestProcessAccepted(t *testing.T) {
	f := newFixture(t, fixed(candidate(nil)))

	accepted, err := f.pipeline.Process(context.Background(), Request{
		VisitID:    "visit_42",
		Transcript: "She mentioned she's undocumented and her SSN is 123-45-6789.",
	})
	require.NoError(t, err)
	require.NotNil(t, accepted)

	assert.Equal(t, "She mentioned she's [LEGAL STATUS OMITTED] and her SSN is [SSN REDACTED].", accepted.MaskedTranscript)
	assert.Equal(t, 2, accepted.RedactionCount)
	assert.True(t, accepted.Draft.IsVetted())
	assert.NotEmpty(t, accepted.RequestID)

	require.Len(t, f.seen, 1)
	assert.Equal(t, accepted.MaskedTranscript, f.seen[0].Transcript, "generator must only see masked text")
	assert.Equal(t, "visit_42", f.seen[0].VisitID)

	note := accepted.CaseNote()
	assert.True(t, note.IsDraft)
	assert.Equal(t, draft.DraftLabel, note.DraftLabel)
	assert.Equal(t, "2026-05-04T09:30:00Z", note.GeneratedAtISO)
	assert.Equal(t, accepted.MaskedTranscript, note.Transcript)

	events := f.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(OutcomeAccepted), events[0].Outcome)
	assert.Equal(t, string(StageAccepted), events[0].Stage)
	assert.Equal(t, 2, events[0].RedactionCount)
}

func TestProcessRejectsLeak(t *testing.T) {
	raw := candidate(func(r map[string]any) {
		r["soap"].(map[string]any)["assessment"] = "Client reports prior felony conviction."
	})
	f := newFixture(t, fixed(raw))

	accepted, err := f.pipeline.Process(context.Background(), Request{VisitID: "v1", Transcript: "Visit went fine."})
	require.Error(t, err)
	assert.Nil(t, accepted)

	var leakErr *LeakError
	require.True(t, errors.As(err, &leakErr))
	require.Len(t, leakErr.Findings, 1)
	assert.Equal(t, "felony", leakErr.Findings[0].Term)
	assert.Equal(t, "soap.assessment", leakErr.Findings[0].Field)

	assert.Equal(t, OutcomeRejectedLeak, OutcomeOf(err))
	assert.Equal(t, MessageSafetyRejection, PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "felony")

	events := f.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(OutcomeRejectedLeak), events[0].Outcome)
	assert.Equal(t, string(StageStructurallyValid), events[0].Stage)
	assert.Equal(t, []string{"felony"}, events[0].LeakTerms())
}

func TestProcessRejectsStructure(t *testing.T) {
	raw := candidate(func(r map[string]any) {
		delete(r["psychosocial"].(map[string]any), "housingStability")
		r["stressFlags"] = []any{map[string]any{"keyword": "x", "severity": "extreme"}}
	})
	f := newFixture(t, fixed(raw))

	_, err := f.pipeline.Process(context.Background(), Request{VisitID: "v1", Transcript: "hello"})
	var structErr *StructureError
	require.True(t, errors.As(err, &structErr))
	assert.Len(t, structErr.Errors, 2)
	assert.Equal(t, OutcomeRejectedStructure, OutcomeOf(err))
	assert.Equal(t, MessageSafetyRejection, PublicMessage(err))
	assert.True(t, Retryable(err))

	events := f.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"psychosocial.housingStability", "stressFlags[0].severity"}, events[0].ErrorFields())
}

func TestProcessGenerationFailure(t *testing.T) {
	cause := errors.New("upstream returned 503 with body mentioning parole")
	f := newFixture(t, func(generator.Request) (draft.CandidateDraft, error) {
		return draft.CandidateDraft{}, cause
	})

	_, err := f.pipeline.Process(context.Background(), Request{VisitID: "v1", Transcript: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, OutcomeGenerationFailed, OutcomeOf(err))
	assert.Equal(t, MessageGenerationFailed, PublicMessage(err))

	events := f.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(StageMasked), events[0].Stage)
	assert.Equal(t, cause.Error(), events[0].Cause)
}

func TestProcessRejectsInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty transcript", req: Request{VisitID: "v1"}},
		{name: "whitespace transcript", req: Request{VisitID: "v1", Transcript: " \n\t "}},
		{name: "blank visit id", req: Request{VisitID: "  ", Transcript: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixed(candidate(nil)))

			_, err := f.pipeline.Process(context.Background(), tt.req)
			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, MessageInvalidInput, PublicMessage(err))
			assert.False(t, Retryable(err))
			assert.Empty(t, f.seen, "generator must not run")

			events := f.recorder.all()
			require.Len(t, events, 1)
			assert.Equal(t, string(OutcomeRejectedInput), events[0].Outcome)
			assert.Equal(t, string(StageReceived), events[0].Stage)
		})
	}
}

func TestProcessKeepsRequestID(t *testing.T) {
	f := newFixture(t, fixed(candidate(nil)))
	accepted, err := f.pipeline.Process(context.Background(), Request{RequestID: "req-1", VisitID: "v", Transcript: "t"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", accepted.RequestID)
	assert.Equal(t, "req-1", f.recorder.all()[0].RequestID)
}

func TestMask(t *testing.T) {
	f := newFixture(t, fixed(candidate(nil)))
	result := f.pipeline.Mask("Email me at a.b@example.org about the deportation hearing.")
	assert.Equal(t, 2, result.RedactionCount)
	assert.False(t, strings.Contains(result.MaskedText, "example.org"))
	assert.Contains(t, result.MaskedText, "[LEGAL STATUS OMITTED]")
}

func TestPublicMessageForUnknownError(t *testing.T) {
	assert.Equal(t, MessageGenerationFailed, PublicMessage(errors.New("boom")))
	assert.Equal(t, OutcomeAccepted, OutcomeOf(nil))
}
