package main

import (
	"fmt"
	"time"

	"github.com/raaihank/civicguard/internal/draft"
	"github.com/spf13/cobra"
)

// vetReport is printed for every vet run
type vetReport struct {
	Accepted        bool                    `json:"accepted"`
	RulesVersion    string                  `json:"rulesVersion"`
	StructureErrors []draft.ValidationError `json:"structureErrors,omitempty"`
	Leaks           []draft.LeakFinding     `json:"leaks,omitempty"`
	CaseNote        *draft.CaseNote         `json:"caseNote,omitempty"`
}

func vetCmd(opts *options) *cobra.Command {
	var (
		visitID  string
		caseNote bool
	)

	cmd := &cobra.Command{
		Use:   "vet [file|-]",
		Short: "Validate a model response and scan it for legal-status terms",
		Long: `vet reads raw model output (JSON, optionally fenced or with leading
prose), checks it against the draft schema and scans every free-text field
for forbidden legal-status terms. It exits non-zero when the draft would be
rejected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			candidate, err := draft.ParseCandidate(text)
			if err != nil {
				return fmt.Errorf("failed to parse draft: %w", err)
			}

			report := vetReport{RulesVersion: e.registry.Version()}
			validated, errs := draft.Validate(candidate)
			if len(errs) > 0 {
				report.StructureErrors = errs
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				return fmt.Errorf("draft rejected: %d structural errors", len(errs))
			}

			detector := draft.NewLeakDetector(e.registry, draft.LeakOptions{
				IncludeExcerpts: e.cfg.Boundary.IncludeExcerpts,
				ExcerptRadius:   e.cfg.Boundary.ExcerptRadius,
			})
			vetted, findings, err := detector.Vet(validated)
			if err != nil {
				return err
			}
			if len(findings) > 0 {
				report.Leaks = findings
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				return fmt.Errorf("draft rejected: %d forbidden terms", len(findings))
			}

			report.Accepted = true
			if caseNote {
				note := vetted.CaseNote(draft.Stamp{
					VisitID:      visitID,
					GeneratedAt:  time.Now(),
					RulesVersion: e.registry.Version(),
				})
				report.CaseNote = &note
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&visitID, "visit-id", "", "Visit ID stamped on the case note")
	cmd.Flags().BoolVar(&caseNote, "case-note", false, "Include the stamped case note when the draft is accepted")
	return cmd
}
