package boundary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raaihank/civicguard/internal/draft"
)

// Caller-facing messages. Diagnostic detail stays in the audit trail.
const (
	MessageInvalidInput     = "invalid input"
	MessageGenerationFailed = "generation failed, retry"
	MessageSafetyRejection  = "draft failed safety validation, retry"
)

// Rejection is implemented by every error Process returns
type Rejection interface {
	error
	Outcome() Outcome
	PublicMessage() string
}

// InputError rejects a request before masking
type InputError struct {
	Reason string
}

func (e *InputError) Error() string         { return "invalid input: " + e.Reason }
func (e *InputError) Outcome() Outcome      { return OutcomeRejectedInput }
func (e *InputError) PublicMessage() string { return MessageInvalidInput }

// GenerationError wraps a failed or unparseable generative call
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string         { return fmt.Sprintf("generation failed: %v", e.Cause) }
func (e *GenerationError) Unwrap() error         { return e.Cause }
func (e *GenerationError) Outcome() Outcome      { return OutcomeGenerationFailed }
func (e *GenerationError) PublicMessage() string { return MessageGenerationFailed }

// StructureError carries every structural defect of a candidate
type StructureError struct {
	Errors []draft.ValidationError
}

func (e *StructureError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		parts = append(parts, ve.Error())
	}
	return fmt.Sprintf("draft failed structural validation (%d errors): %s", len(e.Errors), strings.Join(parts, "; "))
}
func (e *StructureError) Outcome() Outcome      { return OutcomeRejectedStructure }
func (e *StructureError) PublicMessage() string { return MessageSafetyRejection }

// LeakError carries the forbidden terms found in a draft. Its Error text
// names terms and fields and is meant for internal logs only.
type LeakError struct {
	Findings []draft.LeakFinding
}

func (e *LeakError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		parts = append(parts, fmt.Sprintf("%s in %s", f.Term, f.Field))
	}
	return "draft contains legal-status content: " + strings.Join(parts, ", ")
}
func (e *LeakError) Outcome() Outcome      { return OutcomeRejectedLeak }
func (e *LeakError) PublicMessage() string { return MessageSafetyRejection }

// PublicMessage returns the text safe to show a caller for err
func PublicMessage(err error) string {
	var r Rejection
	if errors.As(err, &r) {
		return r.PublicMessage()
	}
	return MessageGenerationFailed
}

// OutcomeOf maps err to the pipeline's terminal outcome
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeAccepted
	}
	var r Rejection
	if errors.As(err, &r) {
		return r.Outcome()
	}
	return OutcomeGenerationFailed
}

// Retryable reports whether re-invoking generation may succeed. Input
// rejections are final.
func Retryable(err error) bool {
	switch OutcomeOf(err) {
	case OutcomeGenerationFailed, OutcomeRejectedStructure, OutcomeRejectedLeak:
		return true
	default:
		return false
	}
}
