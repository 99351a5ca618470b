package main

import (
	"fmt"

	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/spf13/cobra"
)

func redactCmd(opts *options) *cobra.Command {
	var textOnly bool

	cmd := &cobra.Command{
		Use:   "redact [file|-]",
		Short: "Mask identifiers and legal-status terms in a transcript",
		Args:  cobra.MaximumNArgs(1),
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

			result := privacy.New(e.registry, e.log).Redact(trimmed(text))
			if textOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), result.MaskedText)
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				privacy.RedactionResult
				RulesVersion string `json:"rulesVersion"`
			}{result, e.registry.Version()})
		},
	}

	cmd.Flags().BoolVar(&textOnly, "text", false, "Print only the masked text")
	return cmd
}
