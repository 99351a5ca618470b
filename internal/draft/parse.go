package draft

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// jsonBlockPattern matches an object inside a markdown code fence
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// jsonObjectPattern is the greedy fallback for unfenced output
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ErrNoObject is returned when model output holds no JSON object
var ErrNoObject = errors.New("model output contains no JSON object")

// ExtractObject pulls the JSON object text out of model output, tolerating
// code fences and leading prose. The object text itself is not altered.
func ExtractObject(content string) string {
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return m[1]
	}
	return jsonObjectPattern.FindString(content)
}

// ParseCandidate decodes model text into a CandidateDraft. The object is
// decoded as-is first; trailing commas are stripped only when that fails,
// so string values are never rewritten in well-formed output. Anything that
// is not a JSON object is an error; the structure itself is not checked here.
func ParseCandidate(content string) (CandidateDraft, error) {
	raw := ExtractObject(strings.TrimSpace(content))
	if raw == "" {
		return CandidateDraft{}, ErrNoObject
	}

	var obj map[string]any
	if err := json.UnmarshalFromString(raw, &obj); err != nil {
		repaired := stripTrailingCommas(raw)
		obj = nil
		if repairErr := json.UnmarshalFromString(repaired, &obj); repairErr != nil {
			return CandidateDraft{}, fmt.Errorf("failed to decode model output: %w", err)
		}
	}
	if obj == nil {
		return CandidateDraft{}, ErrNoObject
	}
	return CandidateDraft{raw: obj}, nil
}

// stripTrailingCommas drops commas that directly precede a closing } or ],
// ignoring everything inside string literals
func stripTrailingCommas(raw string) string {
	var out strings.Builder
	out.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == ',':
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}
