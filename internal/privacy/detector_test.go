package privacy

import (
	"strings"
	"testing"

	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/rules"
)

func newTestRedactor() *Redactor {
	return New(rules.Default(), logger.NewNop())
}

func TestRedact(t *testing.T) {
	r := newTestRedactor()

	tests := []struct {
		name      string
		input     string
		want      string
		wantCount int
	}{
		{
			name:      "empty input",
			input:     "",
			want:      "",
			wantCount: 0,
		},
		{
			name:      "nothing sensitive",
			input:     "Caregiver reports feeling overwhelmed about bills.",
			want:      "Caregiver reports feeling overwhelmed about bills.",
			wantCount: 0,
		},
		{
			name:      "legal status and ssn",
			input:     "She mentioned she's undocumented and her SSN is 123-45-6789.",
			want:      "She mentioned she's [LEGAL STATUS OMITTED] and her SSN is [SSN REDACTED].",
			wantCount: 2,
		},
		{
			name:      "ssn with spaces",
			input:     "number 123 45 6789 on file",
			want:      "number [SSN REDACTED] on file",
			wantCount: 1,
		},
		{
			name:      "phone formats",
			input:     "Call 555-867-5309 or 1 555.867.5309.",
			want:      "Call [PHONE REDACTED] or [PHONE REDACTED].",
			wantCount: 2,
		},
		{
			name:      "email",
			input:     "Reach her at jane.doe+case@example.org today.",
			want:      "Reach her at [EMAIL REDACTED] today.",
			wantCount: 1,
		},
		{
			name:      "date of birth",
			input:     "DOB 04/12/1988.",
			want:      "DOB [DATE REDACTED].",
			wantCount: 1,
		},
		{
			name:      "street address",
			input:     "She lives at 42 Maple Grove Lane with her sister.",
			want:      "She lives at [ADDRESS REDACTED] with her sister.",
			wantCount: 1,
		},
		{
			name:      "mixed case terms",
			input:     "He is on PROBATION and Parole.",
			want:      "He is on [LEGAL STATUS OMITTED] and [LEGAL STATUS OMITTED].",
			wantCount: 2,
		},
		{
			name:      "whole word only",
			input:     "The chargesheet and warrantless claims.",
			want:      "The chargesheet and warrantless claims.",
			wantCount: 0,
		},
		{
			name:      "longer phrase before its prefix",
			input:     "He is a registered sex offender.",
			want:      "He is a [LEGAL STATUS OMITTED].",
			wantCount: 1,
		},
		{
			name:      "plural phrase",
			input:     "Two prior convictions were mentioned.",
			want:      "Two [LEGAL STATUS OMITTED] were mentioned.",
			wantCount: 1,
		},
		{
			name:      "label text in input is left alone",
			input:     "Already masked: [LEGAL STATUS OMITTED].",
			want:      "Already masked: [LEGAL STATUS OMITTED].",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Redact(tt.input)
			if result.MaskedText != tt.want {
				t.Errorf("MaskedText = %q, want %q", result.MaskedText, tt.want)
			}
			if result.RedactionCount != tt.wantCount {
				t.Errorf("RedactionCount = %d, want %d", result.RedactionCount, tt.wantCount)
			}
		})
	}
}

func TestRedactFindings(t *testing.T) {
	r := newTestRedactor()

	result := r.Redact("SSN 123-45-6789, alt 987-65-4321, she was detained.")
	if len(result.Findings) != 2 {
		t.Fatalf("Expected 2 findings, got %d", len(result.Findings))
	}
	if result.Findings[0].Rule != "ssn" || result.Findings[0].Count != 2 {
		t.Errorf("Unexpected first finding: %+v", result.Findings[0])
	}
	if result.Findings[1].Rule != "term:detained" || result.Findings[1].Count != 1 {
		t.Errorf("Unexpected second finding: %+v", result.Findings[1])
	}
	for _, f := range result.Findings {
		if strings.Contains(f.Label, "6789") {
			t.Error("Finding leaked matched value")
		}
	}
}

func TestRedactIdempotent(t *testing.T) {
	r := newTestRedactor()

	inputs := []string{
		"",
		"She mentioned she's undocumented and her SSN is 123-45-6789.",
		"Immigration status unclear; legal status pending; call 555-867-5309.",
		"Lives at 10 Downing Street, email a@b.io, DOB 1/2/2001, on parole.",
		"[SSN REDACTED][LEGAL STATUS OMITTED] arrested",
		"DACA recipient, sin papeles, without documentation.",
	}

	for _, input := range inputs {
		first := r.Redact(input)
		second := r.Redact(first.MaskedText)
		if second.RedactionCount != 0 {
			t.Errorf("Second pass over %q redacted %d more items", input, second.RedactionCount)
		}
		if second.MaskedText != first.MaskedText {
			t.Errorf("Second pass changed text: %q -> %q", first.MaskedText, second.MaskedText)
		}
	}
}

func TestRedactSSNCompleteness(t *testing.T) {
	r := newTestRedactor()

	for _, ssn := range []string{"123-45-6789", "000-12-3456", "999 99 9999"} {
		result := r.Redact("id " + ssn + " end")
		if !strings.Contains(result.MaskedText, "[SSN REDACTED]") {
			t.Errorf("SSN %s not labelled: %q", ssn, result.MaskedText)
		}
		if strings.Contains(result.MaskedText, ssn) {
			t.Errorf("SSN %s survived masking", ssn)
		}
	}
}

func TestRedactTermCoverage(t *testing.T) {
	registry := rules.Default()
	r := New(registry, logger.NewNop())

	for _, rule := range registry.TermRules() {
		term := strings.TrimPrefix(rule.Name, "term:")
		for _, variant := range []string{term, strings.ToUpper(term), capitalize(term)} {
			result := r.Redact("client said " + variant + " twice")
			if !strings.Contains(result.MaskedText, rules.LegalStatusLabel) {
				t.Errorf("Term %q not masked: %q", variant, result.MaskedText)
			}
			if strings.Contains(strings.ToLower(registry.StripLabels(result.MaskedText)), strings.ToLower(term)) {
				t.Errorf("Term %q survived masking: %q", variant, result.MaskedText)
			}
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
