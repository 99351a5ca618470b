// Package generator produces candidate drafts from masked transcripts
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/civicguard/internal/draft"
)

// Request is the input to one generative call. Transcript is already masked.
type Request struct {
	VisitID    string
	Transcript string
}

// Generator turns a masked transcript into an unchecked candidate draft
type Generator interface {
	Generate(ctx context.Context, req Request) (draft.CandidateDraft, error)
}

// Func adapts a function to the Generator interface
type Func func(ctx context.Context, req Request) (draft.CandidateDraft, error)

// Generate calls f
func (f Func) Generate(ctx context.Context, req Request) (draft.CandidateDraft, error) {
	return f(ctx, req)
}

// TransientError marks a failure worth retrying: network errors, rate
// limits and upstream 5xx responses
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient upstream error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
