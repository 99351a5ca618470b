// Package draft defines the stages a generated case note moves through,
// CandidateDraft -> ValidatedDraft -> VettedDraft, and the checks that
// promote it from one stage to the next. ValidatedDraft and VettedDraft have
// no exported constructors: Validate and LeakDetector.Vet are the only ways
// to obtain them.
package draft

import (
	"fmt"
	"time"
)

// Confidence is the certainty attached to a psychosocial assessment field
type Confidence string

const (
	ConfidenceHigh         Confidence = "high"
	ConfidenceMedium       Confidence = "medium"
	ConfidenceLow          Confidence = "low"
	ConfidenceInsufficient Confidence = "insufficient_data"
)

// Severity grades a stress flag
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DraftLabel is stamped on every accepted note
const DraftLabel = "DRAFT - pending clinician review"

var validConfidence = map[Confidence]bool{
	ConfidenceHigh:         true,
	ConfidenceMedium:       true,
	ConfidenceLow:          true,
	ConfidenceInsufficient: true,
}

var validSeverity = map[Severity]bool{
	SeverityLow:    true,
	SeverityMedium: true,
	SeverityHigh:   true,
}

// SoapFields are the four structured-note keys, in document order
var SoapFields = []string{"subjective", "objective", "assessment", "plan"}

// PsychosocialKeys are the six fixed assessment keys, in document order
var PsychosocialKeys = []string{
	"crisisReason",
	"substanceUse",
	"longevityOfIssues",
	"aggressionHistory",
	"supportSystems",
	"pastInterventions",
}

// SoapNote is the four-part structured note
type SoapNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Field returns a structured-note field by wire name
func (s SoapNote) Field(name string) string {
	switch name {
	case "subjective":
		return s.Subjective
	case "objective":
		return s.Objective
	case "assessment":
		return s.Assessment
	case "plan":
		return s.Plan
	}
	return ""
}

func (s *SoapNote) set(name, value string) {
	switch name {
	case "subjective":
		s.Subjective = value
	case "objective":
		s.Objective = value
	case "assessment":
		s.Assessment = value
	case "plan":
		s.Plan = value
	}
}

// AssessmentField is one psychosocial entry
type AssessmentField struct {
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
}

// Psychosocial is the fixed six-key assessment
type Psychosocial struct {
	CrisisReason      AssessmentField `json:"crisisReason"`
	SubstanceUse      AssessmentField `json:"substanceUse"`
	LongevityOfIssues AssessmentField `json:"longevityOfIssues"`
	AggressionHistory AssessmentField `json:"aggressionHistory"`
	SupportSystems    AssessmentField `json:"supportSystems"`
	PastInterventions AssessmentField `json:"pastInterventions"`
}

// Field returns an assessment entry by wire name
func (p Psychosocial) Field(key string) AssessmentField {
	switch key {
	case "crisisReason":
		return p.CrisisReason
	case "substanceUse":
		return p.SubstanceUse
	case "longevityOfIssues":
		return p.LongevityOfIssues
	case "aggressionHistory":
		return p.AggressionHistory
	case "supportSystems":
		return p.SupportSystems
	case "pastInterventions":
		return p.PastInterventions
	}
	return AssessmentField{}
}

func (p *Psychosocial) set(key string, f AssessmentField) {
	switch key {
	case "crisisReason":
		p.CrisisReason = f
	case "substanceUse":
		p.SubstanceUse = f
	case "longevityOfIssues":
		p.LongevityOfIssues = f
	case "aggressionHistory":
		p.AggressionHistory = f
	case "supportSystems":
		p.SupportSystems = f
	case "pastInterventions":
		p.PastInterventions = f
	}
}

// StressFlag marks a phrase indicating crisis or elevated clinical concern
type StressFlag struct {
	Keyword  string   `json:"keyword"`
	Severity Severity `json:"severity"`
	Context  string   `json:"context"`
}

// BoundaryReport is the model's account of what it left out
type BoundaryReport struct {
	LegalStatusOmitted        bool     `json:"legalStatusOmitted"`
	OverdocumentationWarnings []string `json:"overdocumentationWarnings"`
	InsurancePhrasing         []string `json:"insurancePhrasing"`
}

// Note is the typed body of a structurally valid draft
type Note struct {
	NarrativeSummary string         `json:"narrativeSummary"`
	Soap             SoapNote       `json:"soap"`
	Psychosocial     Psychosocial   `json:"psychosocial"`
	StressFlags      []StressFlag   `json:"stressFlags"`
	Boundaries       BoundaryReport `json:"boundaries"`
}

func (n Note) clone() Note {
	out := n
	out.StressFlags = append([]StressFlag{}, n.StressFlags...)
	out.Boundaries.OverdocumentationWarnings = append([]string{}, n.Boundaries.OverdocumentationWarnings...)
	out.Boundaries.InsurancePhrasing = append([]string{}, n.Boundaries.InsurancePhrasing...)
	return out
}

// TextFields returns the free-text fields scanned for leaks, keyed by path
func (n Note) TextFields() []TextField {
	fields := make([]TextField, 0, 1+len(SoapFields)+len(PsychosocialKeys))
	fields = append(fields, TextField{Path: "narrativeSummary", Text: n.NarrativeSummary})
	for _, name := range SoapFields {
		fields = append(fields, TextField{Path: "soap." + name, Text: n.Soap.Field(name)})
	}
	for _, key := range PsychosocialKeys {
		fields = append(fields, TextField{Path: "psychosocial." + key + ".value", Text: n.Psychosocial.Field(key).Value})
	}
	return fields
}

// TextField is a free-text value and its field path
type TextField struct {
	Path string
	Text string
}

// CandidateDraft is the untrusted, loosely typed output of the generator
type CandidateDraft struct {
	raw map[string]any
}

// NewCandidate wraps an already-decoded JSON object
func NewCandidate(raw map[string]any) CandidateDraft {
	return CandidateDraft{raw: raw}
}

// ValidationError is a single defect found in a draft
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ValidatedDraft passed structural validation. It says nothing about content safety.
type ValidatedDraft struct {
	note  Note
	valid bool
}

// IsValid reports whether the draft came out of Validate
func (v ValidatedDraft) IsValid() bool {
	return v.valid
}

// Note returns a copy of the typed draft body
func (v ValidatedDraft) Note() Note {
	return v.note.clone()
}

// VettedDraft passed both structural validation and leak detection. It is
// the only draft form that may reach a clinician.
type VettedDraft struct {
	note   Note
	vetted bool
}

// IsVetted reports whether the draft came out of LeakDetector.Vet
func (v VettedDraft) IsVetted() bool {
	return v.vetted
}

// Note returns a copy of the typed draft body
func (v VettedDraft) Note() Note {
	return v.note.clone()
}

// Stamp is the review metadata attached when a vetted draft is handed out
type Stamp struct {
	VisitID      string
	Transcript   string
	GeneratedAt  time.Time
	RulesVersion string
}

// CaseNote is the presentation view of a vetted draft
type CaseNote struct {
	VisitID        string `json:"visitId"`
	IsDraft        bool   `json:"isDraft"`
	DraftLabel     string `json:"draftLabel"`
	GeneratedAtISO string `json:"generatedAtIso"`
	Transcript     string `json:"transcript"`
	RulesVersion   string `json:"rulesVersion,omitempty"`
	Note
}

// CaseNote stamps the draft for clinician review. The result is always a draft.
func (v VettedDraft) CaseNote(stamp Stamp) CaseNote {
	return CaseNote{
		VisitID:        stamp.VisitID,
		IsDraft:        true,
		DraftLabel:     DraftLabel,
		GeneratedAtISO: stamp.GeneratedAt.UTC().Format(time.RFC3339),
		Transcript:     stamp.Transcript,
		RulesVersion:   stamp.RulesVersion,
		Note:           v.Note(),
	}
}
