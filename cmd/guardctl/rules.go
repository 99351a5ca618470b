package main

import (
	"github.com/spf13/cobra"
)

func rulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active rule set and its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			type ruleView struct {
				Name    string `json:"name"`
				Kind    string `json:"kind"`
				Label   string `json:"label"`
				Pattern string `json:"pattern"`
			}

			var views []ruleView
			for _, r := range e.registry.Rules() {
				views = append(views, ruleView{
					Name:    r.Name,
					Kind:    string(r.Kind),
					Label:   r.Label,
					Pattern: r.Matcher.String(),
				})
			}
			forbidden := make([]string, 0, len(e.registry.ForbiddenTerms()))
			for _, t := range e.registry.ForbiddenTerms() {
				forbidden = append(forbidden, t.Term)
			}

			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"version":         e.registry.Version(),
				"rules":           views,
				"forbidden_terms": forbidden,
				"stress_keywords": e.registry.StressKeywords(),
			})
		},
	}
}
