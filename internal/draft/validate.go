package draft

import (
	"fmt"
	"strings"
)

// ValidateStructure returns every structural defect in the candidate. An
// empty result is the only signal that the candidate may be promoted.
func ValidateStructure(c CandidateDraft) []ValidationError {
	_, errs := validate(c)
	return errs
}

// Validate promotes a candidate to a ValidatedDraft, or returns the full
// defect list. Nothing is repaired or defaulted.
func Validate(c CandidateDraft) (ValidatedDraft, []ValidationError) {
	note, errs := validate(c)
	if len(errs) > 0 {
		return ValidatedDraft{}, errs
	}
	return ValidatedDraft{note: note, valid: true}, nil
}

// checker accumulates defects while walking the candidate
type checker struct {
	errs []ValidationError
}

func (c *checker) add(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// text requires a non-blank string
func (c *checker) text(path string, obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		c.add(path, "is missing")
		return ""
	}
	s, isString := v.(string)
	if !isString {
		c.add(path, "must be a string")
		return ""
	}
	if strings.TrimSpace(s) == "" {
		c.add(path, "is empty")
		return ""
	}
	return s
}

// optionalText accepts an absent value but rejects a non-string one
func (c *checker) optionalText(path string, obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		c.add(path, "must be a string")
		return ""
	}
	return s
}

// object returns obj[key] as an object, reporting a wrong type. A missing
// object yields nil so that each required child is reported individually.
func (c *checker) object(path string, obj map[string]any, key string) map[string]any {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	m, isObject := v.(map[string]any)
	if !isObject {
		c.add(path, "must be an object")
		return nil
	}
	return m
}

// stringList requires a sequence of strings, possibly empty
func (c *checker) stringList(path string, obj map[string]any, key string) []string {
	items, ok := obj[key].([]any)
	if !ok {
		c.add(path, "must be an array")
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, isString := item.(string)
		if !isString {
			c.add(fmt.Sprintf("%s[%d]", path, i), "must be a string")
			continue
		}
		out = append(out, s)
	}
	return out
}

func validate(cand CandidateDraft) (Note, []ValidationError) {
	c := &checker{}
	raw := cand.raw
	var note Note

	note.NarrativeSummary = c.text("narrativeSummary", raw, "narrativeSummary")

	soap := c.object("soap", raw, "soap")
	for _, name := range SoapFields {
		note.Soap.set(name, c.text("soap."+name, soap, name))
	}

	psych := c.object("psychosocial", raw, "psychosocial")
	for _, key := range PsychosocialKeys {
		path := "psychosocial." + key
		v, ok := psych[key]
		if !ok || v == nil {
			c.add(path, "is missing")
			continue
		}
		entry, isObject := v.(map[string]any)
		if !isObject {
			c.add(path, "must be an object")
			continue
		}
		field := AssessmentField{
			Value:      c.text(path+".value", entry, "value"),
			Confidence: c.confidence(path+".confidence", entry),
		}
		note.Psychosocial.set(key, field)
	}

	note.StressFlags = c.stressFlags(raw)

	boundaries := c.object("boundaries", raw, "boundaries")
	if omitted, isBool := boundaries["legalStatusOmitted"].(bool); isBool {
		note.Boundaries.LegalStatusOmitted = omitted
	} else {
		c.add("boundaries.legalStatusOmitted", "must be boolean")
	}
	note.Boundaries.OverdocumentationWarnings = c.stringList("boundaries.overdocumentationWarnings", boundaries, "overdocumentationWarnings")
	note.Boundaries.InsurancePhrasing = c.stringList("boundaries.insurancePhrasing", boundaries, "insurancePhrasing")

	return note, c.errs
}

// confidence requires one of the four closed values. A missing level is an
// error, never assumed.
func (c *checker) confidence(path string, entry map[string]any) Confidence {
	v, ok := entry["confidence"]
	if !ok || v == nil {
		c.add(path, "is missing")
		return ""
	}
	s, isString := v.(string)
	if !isString || !validConfidence[Confidence(s)] {
		c.add(path, "is invalid: %s", describe(v))
		return ""
	}
	return Confidence(s)
}

func (c *checker) stressFlags(raw map[string]any) []StressFlag {
	items, ok := raw["stressFlags"].([]any)
	if !ok {
		c.add("stressFlags", "must be an array")
		return nil
	}

	flags := make([]StressFlag, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("stressFlags[%d]", i)
		entry, isObject := item.(map[string]any)
		if !isObject {
			c.add(path, "must be an object")
			continue
		}

		flag := StressFlag{
			Keyword: c.optionalText(path+".keyword", entry, "keyword"),
			Context: c.optionalText(path+".context", entry, "context"),
		}
		sev, isString := entry["severity"].(string)
		if !isString || !validSeverity[Severity(sev)] {
			c.add(path+".severity", "is invalid: %s", describe(entry["severity"]))
		} else {
			flag.Severity = Severity(sev)
		}
		flags = append(flags, flag)
	}
	return flags
}

// describe renders an offending value for an error message
func describe(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
