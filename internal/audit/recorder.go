package audit

import (
	"context"
	"errors"

	"github.com/raaihank/civicguard/internal/logger"
	"go.uber.org/zap"
)

// LogRecorder writes events to the structured log. Leak events are written
// at error level so they stand out in an audit review.
type LogRecorder struct {
	logger *logger.Logger
}

// NewLogRecorder creates a log-backed recorder
func NewLogRecorder(log *logger.Logger) *LogRecorder {
	return &LogRecorder{logger: log}
}

// Record logs the event
func (r *LogRecorder) Record(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("audit_id", e.ID),
		zap.String("request_id", e.RequestID),
		zap.String("visit_id", e.VisitID),
		zap.String("outcome", e.Outcome),
		zap.String("stage", e.Stage),
		zap.String("rules_version", e.RulesVersion),
		zap.Int("redaction_count", e.RedactionCount),
		zap.Duration("duration", e.Duration),
	}
	if len(e.Findings) > 0 {
		fields = append(fields, zap.Any("findings", e.Findings))
	}
	if len(e.StructureErrors) > 0 {
		fields = append(fields, zap.Strings("error_fields", e.ErrorFields()))
	}
	if e.Cause != "" {
		fields = append(fields, zap.String("cause", e.Cause))
	}

	if len(e.Leaks) > 0 {
		fields = append(fields,
			zap.Strings("leak_terms", e.LeakTerms()),
			zap.Strings("leak_fields", e.LeakFields()),
		)
		excerpts := make([]string, 0)
		for _, l := range e.Leaks {
			if l.Excerpt != "" {
				excerpts = append(excerpts, l.Excerpt)
			}
		}
		if len(excerpts) > 0 {
			fields = append(fields, zap.Strings("leak_excerpts", excerpts))
		}
		r.logger.Error("Audit: draft rejected for legal-status leak", fields...)
		return nil
	}

	r.logger.Info("Audit: pipeline request completed", fields...)
	return nil
}

// Multi fans an event out to several recorders. Every recorder is tried;
// failures are joined.
type Multi []Recorder

// Record forwards the event to each recorder
func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
