package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raaihank/civicguard/internal/corpus"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func corpusCmd(opts *options) *cobra.Command {
	var (
		output    string
		workers   int
		batchSize int
		maxIssues int
	)

	cmd := &cobra.Command{
		Use:   "corpus <input>",
		Short: "Audit a transcript dataset (CSV, Parquet, or JSONL)",
		Long: `corpus masks every record of a dataset and checks that a second pass
changes nothing, that no forbidden term survives masking, and that the
redaction count matches expected_redactions where the dataset provides it.

Records need a text column and may carry id and expected_redactions.
Masked output is written when --output names a .parquet or .jsonl file.`,
		Example: `  guardctl corpus visits.csv
  guardctl corpus visits.parquet --workers 8 --output masked.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if workers <= 0 {
				workers = e.cfg.Corpus.Workers
			}
			if batchSize <= 0 {
				batchSize = e.cfg.Corpus.BatchSize
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pipeline := corpus.NewPipeline(
				privacy.New(e.registry, e.log),
				draft.NewLeakDetector(e.registry, draft.LeakOptions{}),
				&corpus.Config{
					BatchSize:   batchSize,
					WorkerCount: workers,
					MaxIssues:   maxIssues,
					OutputPath:  output,
				},
				e.log,
			)

			result, err := pipeline.ProcessFile(ctx, args[0])
			if err != nil {
				if ctx.Err() == context.Canceled {
					e.log.Warn("Corpus audit interrupted")
				}
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Passed() {
				e.log.Error("Corpus audit found violations",
					zap.Int64("count_mismatches", result.CountMismatches),
					zap.Int64("idempotence_failures", result.IdempotenceFailures),
					zap.Int64("leak_violations", result.LeakViolations),
				)
				return fmt.Errorf("corpus audit failed: %d issues", len(result.Issues))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write masked records to this .parquet or .jsonl file")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker goroutines (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per batch (default from config)")
	cmd.Flags().IntVar(&maxIssues, "max-issues", 1000, "Maximum issues kept in the report")
	return cmd
}
