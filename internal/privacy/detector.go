// Package privacy masks identifying and legal-status content in raw
// transcripts before they reach the generative model or any log.
package privacy

import (
	"strings"

	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/rules"
	"go.uber.org/zap"
)

// Redactor applies a rule registry to untrusted text
type Redactor struct {
	registry *rules.Registry
	rules    []rules.Rule
	logger   *logger.Logger
}

// New creates a redactor bound to an immutable registry
func New(registry *rules.Registry, log *logger.Logger) *Redactor {
	r := &Redactor{
		registry: registry,
		rules:    registry.Rules(),
		logger:   log,
	}

	log.Info("Redaction engine initialized",
		zap.Int("pattern_rules", len(registry.PatternRules())),
		zap.Int("term_rules", len(registry.TermRules())),
		zap.String("rules_version", registry.Version()),
	)

	return r
}

// Registry returns the rule set this redactor applies
func (r *Redactor) Registry() *rules.Registry {
	return r.registry
}

// Redact masks text. Rules run in registry order, each over the output of
// the previous one. Labels already in the text are never rescanned, which
// makes Redact idempotent.
func (r *Redactor) Redact(text string) RedactionResult {
	masked := text
	total := 0
	findings := make([]Finding, 0)

	for _, rule := range r.rules {
		var count int
		masked, count = r.apply(masked, rule)
		if count == 0 {
			continue
		}

		total += count
		findings = append(findings, Finding{
			Rule:  rule.Name,
			Label: rule.Label,
			Count: count,
		})

		r.logger.Debug("Sensitive content masked",
			zap.String("rule", rule.Name),
			zap.Int("count", count),
		)
	}

	return RedactionResult{
		MaskedText:     masked,
		RedactionCount: total,
		Findings:       findings,
	}
}

// apply replaces every non-overlapping match of rule outside protected
// label spans and returns the rewritten text with the match count
func (r *Redactor) apply(text string, rule rules.Rule) (string, int) {
	spans := r.registry.ProtectedSpans(text)

	var b strings.Builder
	count := 0
	prev := 0
	for _, span := range spans {
		n := replaceAll(&b, text[prev:span[0]], rule)
		count += n
		b.WriteString(text[span[0]:span[1]])
		prev = span[1]
	}
	count += replaceAll(&b, text[prev:], rule)

	if count == 0 {
		return text, 0
	}
	return b.String(), count
}

// replaceAll writes segment to b with every match replaced by the label
func replaceAll(b *strings.Builder, segment string, rule rules.Rule) int {
	matches := rule.Matcher.FindAllStringIndex(segment, -1)
	prev := 0
	for _, m := range matches {
		b.WriteString(segment[prev:m[0]])
		b.WriteString(rule.Label)
		prev = m[1]
	}
	b.WriteString(segment[prev:])
	return len(matches)
}
