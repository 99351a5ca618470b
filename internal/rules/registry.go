// Package rules holds the ordered, versioned redaction rule set and the
// forbidden-term list used for leak detection. A Registry is built once at
// startup and is read-only afterwards, so it can be shared across goroutines.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind distinguishes pattern rules from term rules
type Kind string

const (
	KindPattern Kind = "pattern"
	KindTerm    Kind = "term"
)

// PatternSpec describes a pattern rule before compilation
type PatternSpec struct {
	Name            string `yaml:"name"`
	Expr            string `yaml:"pattern"`
	Label           string `yaml:"label"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// Spec is the uncompiled form of a Registry
type Spec struct {
	Patterns       []PatternSpec
	Terms          []string
	TermLabel      string
	Forbidden      []string
	StressKeywords []string
}

// Rule is a compiled {matcher, label} pair. Pattern and term rules share
// this shape so a single routine can apply either.
type Rule struct {
	Name    string
	Kind    Kind
	Matcher *regexp.Regexp
	Label   string
}

// ForbiddenTerm is a legal-status term that must never appear in output
type ForbiddenTerm struct {
	Term    string
	Matcher *regexp.Regexp
}

// Registry is the immutable, ordered rule set
type Registry struct {
	patterns       []Rule
	terms          []Rule
	forbidden      []ForbiddenTerm
	labels         []string
	protected      *regexp.Regexp
	stressKeywords []string
	version        string
}

// New compiles a Spec into a Registry. Pattern rules keep their declaration
// order and always precede term rules.
func New(spec Spec) (*Registry, error) {
	if strings.TrimSpace(spec.TermLabel) == "" {
		spec.TermLabel = LegalStatusLabel
	}

	r := &Registry{
		stressKeywords: append([]string(nil), spec.StressKeywords...),
	}

	seen := make(map[string]bool)
	for _, p := range spec.Patterns {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern rule with empty name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate pattern rule: %s", p.Name)
		}
		seen[p.Name] = true

		expr := p.Expr
		if p.CaseInsensitive {
			expr = "(?i)" + expr
		}
		matcher, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern rule %s: %w", p.Name, err)
		}
		if err := checkLabel(p.Label); err != nil {
			return nil, fmt.Errorf("pattern rule %s: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, Rule{
			Name:    p.Name,
			Kind:    KindPattern,
			Matcher: matcher,
			Label:   p.Label,
		})
	}

	if err := checkLabel(spec.TermLabel); err != nil {
		return nil, fmt.Errorf("term label: %w", err)
	}
	for _, term := range dedupe(spec.Terms) {
		r.terms = append(r.terms, Rule{
			Name:    "term:" + strings.ToLower(term),
			Kind:    KindTerm,
			Matcher: wholeWord(term),
			Label:   spec.TermLabel,
		})
	}

	for _, term := range dedupe(spec.Forbidden) {
		r.forbidden = append(r.forbidden, ForbiddenTerm{
			Term:    strings.ToLower(term),
			Matcher: wordPrefix(term),
		})
	}

	labelSet := map[string]bool{spec.TermLabel: true}
	for _, p := range r.patterns {
		labelSet[p.Label] = true
	}
	for label := range labelSet {
		r.labels = append(r.labels, label)
	}
	// Longest first so a label that prefixes another never wins the alternation.
	sort.Slice(r.labels, func(i, j int) bool {
		if len(r.labels[i]) != len(r.labels[j]) {
			return len(r.labels[i]) > len(r.labels[j])
		}
		return r.labels[i] < r.labels[j]
	})

	quoted := make([]string, len(r.labels))
	for i, label := range r.labels {
		quoted[i] = regexp.QuoteMeta(label)
	}
	r.protected = regexp.MustCompile(strings.Join(quoted, "|"))

	// A label that a pattern rule would rewrite is a broken rule pack.
	for _, label := range r.labels {
		for _, p := range r.patterns {
			if p.Matcher.MatchString(label) {
				return nil, fmt.Errorf("label %q is matched by pattern rule %s", label, p.Name)
			}
		}
	}

	r.version = r.computeVersion(spec.TermLabel)
	return r, nil
}

// checkLabel requires bracketed, non-empty labels so they stay visible to reviewers
func checkLabel(label string) error {
	if len(label) < 3 || !strings.HasPrefix(label, "[") || !strings.HasSuffix(label, "]") {
		return fmt.Errorf("invalid replacement label %q (must be bracketed)", label)
	}
	return nil
}

// wholeWord compiles a case-insensitive whole-word literal matcher
func wholeWord(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(term)) + `\b`)
}

// wordPrefix matches term at the start of a word, so inflections such as
// "paroled" or "warrants" are caught while "surcharges" is not
func wordPrefix(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(term)))
}

// dedupe drops blank and repeated terms, keeping first occurrence order
func dedupe(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(t))
	}
	return out
}

func (r *Registry) computeVersion(termLabel string) string {
	h := sha256.New()
	for _, p := range r.patterns {
		fmt.Fprintf(h, "p\x00%s\x00%s\x00%s\n", p.Name, p.Matcher.String(), p.Label)
	}
	for _, t := range r.terms {
		fmt.Fprintf(h, "t\x00%s\n", t.Matcher.String())
	}
	fmt.Fprintf(h, "l\x00%s\n", termLabel)
	for _, f := range r.forbidden {
		fmt.Fprintf(h, "f\x00%s\n", f.Term)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:6])
}

// Rules returns every rule in evaluation order: pattern rules, then term rules
func (r *Registry) Rules() []Rule {
	all := make([]Rule, 0, len(r.patterns)+len(r.terms))
	all = append(all, r.patterns...)
	return append(all, r.terms...)
}

// PatternRules returns the pattern rules in declaration order
func (r *Registry) PatternRules() []Rule {
	return append([]Rule(nil), r.patterns...)
}

// TermRules returns the term rules in declaration order
func (r *Registry) TermRules() []Rule {
	return append([]Rule(nil), r.terms...)
}

// ForbiddenTerms returns the leak detector's term list
func (r *Registry) ForbiddenTerms() []ForbiddenTerm {
	return append([]ForbiddenTerm(nil), r.forbidden...)
}

// Labels returns every replacement label, longest first
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}

// StressKeywords returns the high-stress keyword list
func (r *Registry) StressKeywords() []string {
	return append([]string(nil), r.stressKeywords...)
}

// Version is a short content hash of the ordered rule set
func (r *Registry) Version() string {
	return r.version
}

// ProtectedSpans returns the [start, end) offsets of replacement labels
// already present in text. No rule and no leak scan looks inside them.
func (r *Registry) ProtectedSpans(text string) [][]int {
	return r.protected.FindAllStringIndex(text, -1)
}

// StripLabels blanks out replacement labels so a scan cannot see their words
func (r *Registry) StripLabels(text string) string {
	return r.protected.ReplaceAllString(text, " ")
}
