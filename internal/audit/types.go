// Package audit records one event per pipeline request. Events carry counts,
// rule names, outcomes and field paths; raw transcript text never enters them.
package audit

import (
	"context"
	"time"

	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/privacy"
)

// Event is the audit record of a single pipeline run
type Event struct {
	ID              string                  `json:"id" db:"id"`
	RequestID       string                  `json:"request_id" db:"request_id"`
	VisitID         string                  `json:"visit_id" db:"visit_id"`
	Outcome         string                  `json:"outcome" db:"outcome"`
	Stage           string                  `json:"stage" db:"stage"`
	RulesVersion    string                  `json:"rules_version" db:"rules_version"`
	RedactionCount  int                     `json:"redaction_count" db:"redaction_count"`
	Findings        []privacy.Finding       `json:"findings,omitempty"`
	StructureErrors []draft.ValidationError `json:"structure_errors,omitempty"`
	Leaks           []draft.LeakFinding     `json:"leaks,omitempty"`
	Cause           string                  `json:"cause,omitempty" db:"cause"`
	Duration        time.Duration           `json:"duration" db:"duration_ms"`
	CreatedAt       time.Time               `json:"created_at" db:"created_at"`
}

// LeakTerms returns the distinct forbidden terms in the event
func (e Event) LeakTerms() []string {
	seen := make(map[string]bool, len(e.Leaks))
	terms := make([]string, 0, len(e.Leaks))
	for _, l := range e.Leaks {
		if !seen[l.Term] {
			seen[l.Term] = true
			terms = append(terms, l.Term)
		}
	}
	return terms
}

// LeakFields returns the field path of every leak finding
func (e Event) LeakFields() []string {
	fields := make([]string, 0, len(e.Leaks))
	for _, l := range e.Leaks {
		fields = append(fields, l.Field)
	}
	return fields
}

// ErrorFields returns the field path of every structural defect
func (e Event) ErrorFields() []string {
	fields := make([]string, 0, len(e.StructureErrors))
	for _, ve := range e.StructureErrors {
		fields = append(fields, ve.Field)
	}
	return fields
}

// Recorder persists or forwards audit events
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(ctx context.Context, event Event) error

// Record calls f
func (f RecorderFunc) Record(ctx context.Context, event Event) error {
	return f(ctx, event)
}
