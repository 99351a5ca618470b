package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is an operator-supplied extension to the built-in rules. Its rules
// are appended after the defaults, so they can never pre-empt them.
type Pack struct {
	Name           string        `yaml:"name"`
	Patterns       []PatternSpec `yaml:"patterns"`
	Terms          []string      `yaml:"terms"`
	ForbiddenTerms []string      `yaml:"forbidden_terms"`
}

// LoadPack reads a YAML rule pack from disk
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}
	return ParsePack(data)
}

// ParsePack decodes a YAML rule pack
func ParsePack(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse rule pack: %w", err)
	}
	for i, p := range pack.Patterns {
		if p.Name == "" || p.Expr == "" || p.Label == "" {
			return nil, fmt.Errorf("rule pack pattern %d: name, pattern and label are required", i)
		}
	}
	return &pack, nil
}

// Extend returns a copy of the spec with the pack appended
func (s Spec) Extend(pack *Pack) Spec {
	if pack == nil {
		return s
	}
	out := Spec{
		TermLabel:      s.TermLabel,
		StressKeywords: append([]string(nil), s.StressKeywords...),
	}
	out.Patterns = append(append([]PatternSpec(nil), s.Patterns...), pack.Patterns...)
	out.Terms = append(append([]string(nil), s.Terms...), pack.Terms...)
	// Forbidden output terms are always masked on input too.
	out.Terms = append(out.Terms, pack.ForbiddenTerms...)
	out.Forbidden = append(append([]string(nil), s.Forbidden...), pack.ForbiddenTerms...)
	return out
}

// Build compiles the default rules plus an optional pack file
func Build(packPath string) (*Registry, error) {
	spec := DefaultSpec()
	if packPath != "" {
		pack, err := LoadPack(packPath)
		if err != nil {
			return nil, err
		}
		spec = spec.Extend(pack)
	}
	return New(spec)
}
