package corpus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/privacy"
	"go.uber.org/zap"
)

// Pipeline audits transcript datasets against the redaction rules
type Pipeline struct {
	redactor *privacy.Redactor
	leaks    *draft.LeakDetector
	config   *Config
	logger   *logger.Logger
}

// outcome is the per-record result produced by a worker
type outcome struct {
	masked  MaskedRecord
	skipped bool
	issues  []Issue
}

// NewPipeline creates a new corpus pipeline
func NewPipeline(redactor *privacy.Redactor, leaks *draft.LeakDetector, config *Config, log *logger.Logger) *Pipeline {
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = 1 << 20
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = 10000
	}
	if cfg.MaxIssues <= 0 {
		cfg.MaxIssues = 1000
	}
	return &Pipeline{
		redactor: redactor,
		leaks:    leaks,
		config:   &cfg,
		logger:   log.WithComponent("corpus"),
	}
}

// ProcessFile audits a dataset file (CSV, Parquet, or JSONL). Every record
// is masked, masked again to confirm the second pass changes nothing, and
// scanned for forbidden terms outside replacement labels.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*ProcessingResult, error) {
	format := DetectFileFormat(filePath)
	p.logger.Info("Starting corpus audit",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount),
	)

	src, err := openSource(filePath, format)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out sink
	if p.config.OutputPath != "" {
		out, err = openSink(p.config.OutputPath)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result := &ProcessingResult{RulesVersion: p.redactor.Registry().Version()}

	err = p.processBatches(ctx, src, out, result)
	if out != nil {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	p.logger.Info("Corpus audit completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("redactions", result.Redactions),
		zap.Int64("count_mismatches", result.CountMismatches),
		zap.Int64("idempotence_failures", result.IdempotenceFailures),
		zap.Int64("leak_violations", result.LeakViolations),
		zap.Duration("total_duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) processBatches(ctx context.Context, src source, out sink, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := src.next(p.config.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		outcomes := p.processBatch(ctx, batch)
		if err := ctx.Err(); err != nil {
			return err
		}

		masked := make([]MaskedRecord, 0, len(outcomes))
		for _, o := range outcomes {
			p.tally(result, o)
			if !o.skipped {
				masked = append(masked, o.masked)
			}
		}
		if out != nil && len(masked) > 0 {
			if err := out.write(masked); err != nil {
				return err
			}
			result.Written += int64(len(masked))
		}

		before := result.TotalRecords - int64(len(batch))
		if result.TotalRecords/int64(p.config.ProgressReport) > before/int64(p.config.ProgressReport) {
			p.reportProgress(result)
		}
	}
}

// processBatch fans a batch out to the worker pool. Outcomes keep input order.
func (p *Pipeline) processBatch(ctx context.Context, batch []Record) []outcome {
	outcomes := make([]outcome, len(batch))
	jobs := make(chan int)

	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = p.check(batch[i])
			}
		}()
	}

	for i := range batch {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return outcomes
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// check runs every per-record check
func (p *Pipeline) check(record Record) outcome {
	if strings.TrimSpace(record.Text) == "" {
		return outcome{skipped: true, issues: []Issue{{ID: record.ID, Kind: IssueInvalidRecord, Detail: "empty text"}}}
	}
	if len(record.Text) > p.config.MaxTextBytes {
		return outcome{skipped: true, issues: []Issue{{
			ID:     record.ID,
			Kind:   IssueInvalidRecord,
			Detail: fmt.Sprintf("text is %d bytes, limit %d", len(record.Text), p.config.MaxTextBytes),
		}}}
	}

	first := p.redactor.Redact(record.Text)
	o := outcome{masked: MaskedRecord{
		ID:             record.ID,
		MaskedText:     first.MaskedText,
		RedactionCount: int64(first.RedactionCount),
		RulesVersion:   p.redactor.Registry().Version(),
	}}

	if record.ExpectedRedactions != nil && *record.ExpectedRedactions != int64(first.RedactionCount) {
		o.issues = append(o.issues, Issue{
			ID:     record.ID,
			Kind:   IssueCountMismatch,
			Detail: fmt.Sprintf("expected %d redactions, got %d", *record.ExpectedRedactions, first.RedactionCount),
		})
	}

	if second := p.redactor.Redact(first.MaskedText); second.RedactionCount != 0 {
		o.issues = append(o.issues, Issue{
			ID:     record.ID,
			Kind:   IssueNotIdempotent,
			Detail: fmt.Sprintf("second pass made %d redactions (%s)", second.RedactionCount, ruleNames(second.Findings)),
		})
	}

	for _, finding := range p.leaks.ScanText("text", first.MaskedText) {
		o.issues = append(o.issues, Issue{
			ID:     record.ID,
			Kind:   IssueLeakAfterMask,
			Detail: fmt.Sprintf("forbidden term %q survived masking", finding.Term),
		})
	}
	return o
}

func (p *Pipeline) tally(result *ProcessingResult, o outcome) {
	result.TotalRecords++
	if o.skipped {
		result.Skipped++
	} else {
		result.ProcessedOK++
		result.Redactions += o.masked.RedactionCount
	}

	for _, issue := range o.issues {
		switch issue.Kind {
		case IssueCountMismatch:
			result.CountMismatches++
		case IssueNotIdempotent:
			result.IdempotenceFailures++
		case IssueLeakAfterMask:
			result.LeakViolations++
		}
		if len(result.Issues) < p.config.MaxIssues {
			result.Issues = append(result.Issues, issue)
		}
	}
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_skipped", result.Skipped),
		zap.Int64("issues", int64(len(result.Issues))),
	)
}

func ruleNames(findings []privacy.Finding) string {
	names := make([]string, len(findings))
	for i, f := range findings {
		names[i] = f.Rule
	}
	return strings.Join(names, ",")
}
