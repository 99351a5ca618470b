// Package boundary orchestrates one drafting request: mask the transcript,
// generate a candidate, validate its structure, vet it for legal-status
// content and hand back a draft pending clinician review.
package boundary

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/civicguard/internal/audit"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/generator"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/metrics"
	"github.com/raaihank/civicguard/internal/privacy"
	"go.uber.org/zap"
)

// Stage is a state in the request state machine
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageMasked            Stage = "MASKED"
	StageGenerated         Stage = "GENERATED"
	StageStructurallyValid Stage = "STRUCTURALLY_VALID"
	StageVetted            Stage = "VETTED"
	StageAccepted          Stage = "ACCEPTED"
)

// Outcome is the terminal state of a request
type Outcome string

const (
	OutcomeAccepted          Outcome = "ACCEPTED"
	OutcomeRejectedInput     Outcome = "REJECTED_INPUT"
	OutcomeGenerationFailed  Outcome = "GENERATION_FAILED"
	OutcomeRejectedStructure Outcome = "REJECTED_STRUCTURE"
	OutcomeRejectedLeak      Outcome = "REJECTED_LEAK"
)

// Outcomes lists every terminal outcome
var Outcomes = []Outcome{
	OutcomeAccepted,
	OutcomeRejectedInput,
	OutcomeGenerationFailed,
	OutcomeRejectedStructure,
	OutcomeRejectedLeak,
}

// Request is one drafting request
type Request struct {
	RequestID  string
	VisitID    string
	Transcript string
}

// Accepted is a vetted draft ready for clinician review
type Accepted struct {
	RequestID        string
	VisitID          string
	MaskedTranscript string
	RedactionCount   int
	RulesVersion     string
	GeneratedAt      time.Time
	Draft            draft.VettedDraft
}

// CaseNote returns the presentation view, always stamped as a draft
func (a *Accepted) CaseNote() draft.CaseNote {
	return a.Draft.CaseNote(draft.Stamp{
		VisitID:      a.VisitID,
		Transcript:   a.MaskedTranscript,
		GeneratedAt:  a.GeneratedAt,
		RulesVersion: a.RulesVersion,
	})
}

// Options holds optional pipeline collaborators
type Options struct {
	Metrics *metrics.Collector
	// Clock overrides time.Now in tests
	Clock func() time.Time
}

// Pipeline is stateless across requests and safe for concurrent use
type Pipeline struct {
	redactor  *privacy.Redactor
	generator generator.Generator
	leaks     *draft.LeakDetector
	recorder  audit.Recorder
	metrics   *metrics.Collector
	logger    *logger.Logger
	now       func() time.Time
}

// New creates a pipeline. A nil recorder falls back to the structured log.
func New(redactor *privacy.Redactor, gen generator.Generator, leaks *draft.LeakDetector, recorder audit.Recorder, log *logger.Logger, opts Options) *Pipeline {
	log = log.WithComponent("boundary")
	if recorder == nil {
		recorder = audit.NewLogRecorder(log)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		redactor:  redactor,
		generator: gen,
		leaks:     leaks,
		recorder:  recorder,
		metrics:   opts.Metrics,
		logger:    log,
		now:       now,
	}
}

// Mask runs the masking stage alone
func (p *Pipeline) Mask(text string) privacy.RedactionResult {
	result := p.redactor.Redact(text)
	for _, f := range result.Findings {
		p.metrics.ObserveRedaction(f.Rule, f.Count)
	}
	return result
}

// Process runs one request through every stage. A non-nil error is always a
// Rejection; use PublicMessage for anything shown to the caller.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Accepted, error) {
	defer p.metrics.Begin()()

	start := p.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	event := audit.Event{
		ID:           uuid.NewString(),
		RequestID:    req.RequestID,
		VisitID:      req.VisitID,
		Stage:        string(StageReceived),
		RulesVersion: p.redactor.Registry().Version(),
		CreatedAt:    start,
	}
	log := p.logger.WithRequestID(req.RequestID).WithVisitID(req.VisitID)

	accepted, err := p.run(ctx, req, &event, log)

	event.Outcome = string(OutcomeOf(err))
	event.Duration = p.now().Sub(start)
	p.finish(ctx, event, err, log)
	return accepted, err
}

func (p *Pipeline) run(ctx context.Context, req Request, event *audit.Event, log *logger.Logger) (*Accepted, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, &InputError{Reason: "transcript is empty"}
	}
	if strings.TrimSpace(req.VisitID) == "" {
		return nil, &InputError{Reason: "visit id is empty"}
	}

	masked := p.Mask(req.Transcript)
	event.Stage = string(StageMasked)
	event.RedactionCount = masked.RedactionCount
	event.Findings = masked.Findings
	log.Debug("Transcript masked", zap.Int("redaction_count", masked.RedactionCount))

	genStart := p.now()
	candidate, err := p.generator.Generate(ctx, generator.Request{
		VisitID:    req.VisitID,
		Transcript: masked.MaskedText,
	})
	p.metrics.ObserveGeneration(p.now().Sub(genStart), err == nil)
	if err != nil {
		event.Cause = err.Error()
		return nil, &GenerationError{Cause: err}
	}
	event.Stage = string(StageGenerated)

	validated, verrs := draft.Validate(candidate)
	if len(verrs) > 0 {
		event.StructureErrors = verrs
		return nil, &StructureError{Errors: verrs}
	}
	event.Stage = string(StageStructurallyValid)

	vetted, findings, err := p.leaks.Vet(validated)
	if err != nil {
		// Validate only ever hands out valid drafts
		event.Cause = err.Error()
		return nil, &StructureError{Errors: []draft.ValidationError{{Field: "draft", Message: err.Error()}}}
	}
	if len(findings) > 0 {
		event.Leaks = findings
		return nil, &LeakError{Findings: findings}
	}
	// VETTED and ACCEPTED coincide: a vetted draft is always accepted
	event.Stage = string(StageAccepted)
	return &Accepted{
		RequestID:        req.RequestID,
		VisitID:          req.VisitID,
		MaskedTranscript: masked.MaskedText,
		RedactionCount:   masked.RedactionCount,
		RulesVersion:     event.RulesVersion,
		GeneratedAt:      p.now(),
		Draft:            vetted,
	}, nil
}

// finish records exactly one audit event per request
func (p *Pipeline) finish(ctx context.Context, event audit.Event, err error, log *logger.Logger) {
	p.metrics.ObserveOutcome(event.Outcome)
	for _, l := range event.Leaks {
		p.metrics.ObserveLeak(l.Field)
	}

	switch Outcome(event.Outcome) {
	case OutcomeAccepted:
		log.Info("Draft accepted", zap.Int("redaction_count", event.RedactionCount), zap.Duration("duration", event.Duration))
	case OutcomeRejectedLeak:
		log.Error("Draft rejected: legal-status content in output",
			zap.Strings("leak_terms", event.LeakTerms()),
			zap.Strings("leak_fields", event.LeakFields()),
		)
	case OutcomeRejectedStructure:
		log.Warn("Draft rejected: structural validation failed", zap.Strings("error_fields", event.ErrorFields()))
	case OutcomeGenerationFailed:
		log.Warn("Draft generation failed", zap.Error(err))
	case OutcomeRejectedInput:
		log.Warn("Request rejected", zap.Error(err))
	}

	// Audit even when the caller has gone away
	if recErr := p.recorder.Record(context.WithoutCancel(ctx), event); recErr != nil {
		log.Error("Failed to record audit event", zap.Error(recErr))
	}
}
