package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/rules"
)

// DemoTranscript is the canned reflection returned by the mock transcription route
const DemoTranscript = "I just finished meeting with the family. The caregiver was feeling overwhelmed and " +
	"stressed about the bills piling up and mentioned the kids have been missing school. " +
	"There's no immediate safety concern but she said she panicked last week when the " +
	"utilities were shut off. She has some support from her sister but feels isolated " +
	"from other services. No history of substance use disclosed. Issues have been ongoing " +
	"for about six months since the job loss. I provided her with the emergency rental " +
	"assistance hotline and we are going to check in again within 72 hours."

var highSeverityKeywords = map[string]bool{
	"unsafe":    true,
	"suicidal":  true,
	"homicidal": true,
}

// Demo builds a fixed draft without calling a model. Stress flags come from
// the registry's keyword list so the output still reflects the transcript.
type Demo struct {
	keywords []string
}

// NewDemo creates a demo generator
func NewDemo(registry *rules.Registry) *Demo {
	return &Demo{keywords: registry.StressKeywords()}
}

// Generate returns a candidate draft. The draft is rendered to JSON and parsed
// back so it takes the same decode path as model output.
func (d *Demo) Generate(ctx context.Context, req Request) (draft.CandidateDraft, error) {
	if err := ctx.Err(); err != nil {
		return draft.CandidateDraft{}, err
	}

	body, err := json.MarshalToString(d.build(req))
	if err != nil {
		return draft.CandidateDraft{}, fmt.Errorf("failed to encode demo draft: %w", err)
	}
	return draft.ParseCandidate(body)
}

// StressFlags returns one flag per keyword present in text
func (d *Demo) StressFlags(visitID, text string) []draft.StressFlag {
	lower := strings.ToLower(text)
	flags := make([]draft.StressFlag, 0)
	for _, keyword := range d.keywords {
		if !strings.Contains(lower, keyword) {
			continue
		}
		severity := draft.SeverityMedium
		if highSeverityKeywords[keyword] {
			severity = draft.SeverityHigh
		}
		flags = append(flags, draft.StressFlag{
			Keyword:  keyword,
			Severity: severity,
			Context:  fmt.Sprintf("Detected in transcript for %s", visitID),
		})
	}
	return flags
}

func (d *Demo) build(req Request) map[string]any {
	flags := d.StressFlags(req.VisitID, req.Transcript)
	assessment := "Low psychosocial stress; continue routine monitoring."
	if len(flags) > 0 {
		assessment = "High psychosocial stress with moderate risk of escalation without support."
	}

	psych := map[string]any{}
	for _, key := range draft.PsychosocialKeys {
		psych[key] = map[string]any{
			"value":      "Insufficient information in transcript",
			"confidence": string(draft.ConfidenceInsufficient),
		}
	}
	psych["substanceUse"] = map[string]any{"value": "No substance use disclosed", "confidence": string(draft.ConfidenceLow)}
	psych["aggressionHistory"] = map[string]any{"value": "No aggression history disclosed", "confidence": string(draft.ConfidenceLow)}

	return map[string]any{
		"narrativeSummary": "Family presented for a home visit. Clinician reports elevated stress tied to household finances and school attendance. No immediate safety concerns were identified. Resource referrals were provided and a follow-up was scheduled.",
		"soap": map[string]any{
			"subjective": "Caregiver reports feeling overwhelmed and worried about household stability.",
			"objective":  "Body language and tone not available via post-visit audio reflection.",
			"assessment": assessment,
			"plan":       "Provide resource referrals, schedule check-in within 72 hours, monitor school attendance barriers.",
		},
		"psychosocial": psych,
		"stressFlags":  flags,
		"boundaries": map[string]any{
			"legalStatusOmitted":        strings.Contains(req.Transcript, rules.LegalStatusLabel),
			"overdocumentationWarnings": []string{},
			"insurancePhrasing":         []string{"Client meets medical necessity criteria for continued case management services."},
		},
	}
}
