package draft

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/civicguard/internal/rules"
)

// ErrNotValidated is returned when Vet is handed a draft that never went
// through Validate
var ErrNotValidated = errors.New("draft has not passed structural validation")

// LeakFinding records one forbidden term found in one field
type LeakFinding struct {
	Term    string `json:"term"`
	Field   string `json:"field"`
	Excerpt string `json:"excerpt,omitempty"`
}

// ValidationError converts the finding to the common defect form. The
// message names the term; callers decide whether it may leave the process.
func (f LeakFinding) ValidationError() ValidationError {
	return ValidationError{
		Field:   f.Field,
		Message: fmt.Sprintf("contains forbidden term %q", f.Term),
	}
}

// LeakOptions controls what a finding carries
type LeakOptions struct {
	// IncludeExcerpts attaches surrounding text to each finding. Off by
	// default: an audit log holding the excerpt is itself a record of the
	// forbidden content.
	IncludeExcerpts bool
	ExcerptRadius   int
}

// LeakDetector scans validated drafts for forbidden legal-status terms
type LeakDetector struct {
	registry *rules.Registry
	terms    []rules.ForbiddenTerm
	opts     LeakOptions
}

// NewLeakDetector binds a detector to the registry's forbidden-term list
func NewLeakDetector(registry *rules.Registry, opts LeakOptions) *LeakDetector {
	if opts.ExcerptRadius <= 0 {
		opts.ExcerptRadius = 40
	}
	return &LeakDetector{
		registry: registry,
		terms:    registry.ForbiddenTerms(),
		opts:     opts,
	}
}

// DetectLeaks scans the narrative, the structured note and the assessment
// values. Each term is reported at most once per field.
func (d *LeakDetector) DetectLeaks(v ValidatedDraft) []LeakFinding {
	var findings []LeakFinding
	for _, f := range v.note.TextFields() {
		findings = append(findings, d.ScanText(f.Path, f.Text)...)
	}
	return findings
}

// ScanText scans one free-text value. Replacement labels are blanked first
// so a masked transcript echoed back by the model is not a leak.
func (d *LeakDetector) ScanText(field, text string) []LeakFinding {
	if text == "" {
		return nil
	}
	corpus := d.registry.StripLabels(text)

	var findings []LeakFinding
	for _, term := range d.terms {
		loc := term.Matcher.FindStringIndex(corpus)
		if loc == nil {
			continue
		}
		finding := LeakFinding{Term: term.Term, Field: field}
		if d.opts.IncludeExcerpts {
			finding.Excerpt = excerpt(corpus, loc[0], loc[1], d.opts.ExcerptRadius)
		}
		findings = append(findings, finding)
	}
	return findings
}

// Vet promotes a validated draft when no forbidden term is present. Any
// finding rejects the whole draft.
func (d *LeakDetector) Vet(v ValidatedDraft) (VettedDraft, []LeakFinding, error) {
	if !v.valid {
		return VettedDraft{}, nil, ErrNotValidated
	}
	if findings := d.DetectLeaks(v); len(findings) > 0 {
		return VettedDraft{}, findings, nil
	}
	return VettedDraft{note: v.note.clone(), vetted: true}, nil, nil
}

// excerpt returns text around [start, end) cut on rune boundaries
func excerpt(text string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}
