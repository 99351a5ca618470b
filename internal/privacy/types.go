package privacy

// Finding records how many times one rule fired. It never carries the
// matched value.
type Finding struct {
	Rule  string `json:"rule"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// RedactionResult is the output of a single Redact call
type RedactionResult struct {
	MaskedText     string    `json:"maskedText"`
	RedactionCount int       `json:"redactionCount"`
	Findings       []Finding `json:"findings"`
}
