package rules

// LegalStatusLabel replaces every term-rule match.
const LegalStatusLabel = "[LEGAL STATUS OMITTED]"

// legalStatusSignals must never appear in generated documentation. They are
// masked in transcripts and double as the leak detector's forbidden list.
var legalStatusSignals = []string{
	"undocumented", "immigration status", "legal status",
	"arrested", "incarcerated", "charges", "warrant", "felony", "misdemeanor",
	"probation", "parole", "detained", "deportation",
}

// transcriptPhrases are verbal phrasings a client might use that imply
// immigration or criminal history. Masked in transcripts only.
var transcriptPhrases = []string{
	// immigration
	"illegal alien",
	"illegal immigrant",
	"without papers",
	"without documentation",
	"sin papeles",
	"no papers",
	"asylum seeker",
	"seeking asylum",
	"DACA",
	"refugee status",
	// criminal history
	"criminal record",
	"arrest record",
	"registered sex offender",
	"sex offender",
	"prior conviction",
	"prior convictions",
}

var highStressKeywords = []string{
	"stressful", "worried", "overwhelmed", "panic", "unsafe",
	"crisis", "suicidal", "homicidal", "harm", "danger",
	"abuse", "threatening", "hopeless", "helpless", "escalating",
}

// Specific patterns run before broad ones: an SSN must be claimed before the
// phone or date rules get a chance at its digits.
var defaultPatterns = []PatternSpec{
	{
		Name:  "ssn",
		Expr:  `\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`,
		Label: "[SSN REDACTED]",
	},
	{
		Name:  "phone",
		Expr:  `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`,
		Label: "[PHONE REDACTED]",
	},
	{
		Name:  "email",
		Expr:  `\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`,
		Label: "[EMAIL REDACTED]",
	},
	{
		Name:  "date",
		Expr:  `\b(?:0?[1-9]|1[0-2])[/\-](?:0?[1-9]|[12]\d|3[01])[/\-](?:19|20)\d{2}\b`,
		Label: "[DATE REDACTED]",
	},
	{
		Name:            "address",
		Expr:            `\b\d+\s+[A-Za-z]+(?:\s+[A-Za-z]+){0,3}\s+(?:Street|Avenue|Boulevard|Drive|Road|Lane|Court|Way|Place|Circle|St|Ave|Blvd|Dr|Rd|Ln|Ct|Pl|Cir)\.?\b`,
		Label:           "[ADDRESS REDACTED]",
		CaseInsensitive: true,
	},
}

// DefaultSpec returns the built-in rule set.
func DefaultSpec() Spec {
	terms := make([]string, 0, len(legalStatusSignals)+len(transcriptPhrases))
	terms = append(terms, legalStatusSignals...)
	terms = append(terms, transcriptPhrases...)

	return Spec{
		Patterns:       append([]PatternSpec(nil), defaultPatterns...),
		Terms:          terms,
		TermLabel:      LegalStatusLabel,
		Forbidden:      append([]string(nil), legalStatusSignals...),
		StressKeywords: append([]string(nil), highStressKeywords...),
	}
}

// Default builds the registry from DefaultSpec. The built-in rules are
// known-good, so a construction failure is a programming error.
func Default() *Registry {
	r, err := New(DefaultSpec())
	if err != nil {
		panic("rules: invalid default rule set: " + err.Error())
	}
	return r
}
