package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/raaihank/civicguard/internal/audit"
	"github.com/spf13/cobra"
)

func auditCmd(opts *options) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the PostgreSQL audit trail",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default from config)")

	openStore := func(cmd *cobra.Command) (*audit.Store, *env, error) {
		e, err := opts.load()
		if err != nil {
			return nil, nil, err
		}
		url := databaseURL
		if url == "" {
			url = e.cfg.Audit.Postgres.DatabaseURL
		}
		if url == "" {
			return nil, nil, fmt.Errorf("no database URL: set audit.postgres.database_url or --database-url")
		}
		store, err := audit.NewStore(cmd.Context(), &audit.StoreConfig{
			DatabaseURL:  url,
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		}, e.log)
		if err != nil {
			return nil, nil, err
		}
		return store, e, nil
	}

	var (
		outcome string
		limit   int
		asJSON  bool
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the newest audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, e, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			defer e.log.Sync()

			rows, err := store.Recent(cmd.Context(), strings.ToUpper(outcome), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rows)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Append([]string{"CREATED", "VISIT", "OUTCOME", "STAGE", "REDACTIONS", "LEAK FIELDS", "ERROR FIELDS", "MS"})
			for _, r := range rows {
				table.Append([]string{
					r.CreatedAt.Format(time.RFC3339),
					r.VisitID,
					r.Outcome,
					r.Stage,
					strconv.Itoa(r.RedactionCount),
					strings.Join(r.LeakFields, ","),
					strings.Join(r.ErrorFields, ","),
					strconv.FormatInt(r.DurationMs, 10),
				})
			}
			table.Render()
			return nil
		},
	}
	recent.Flags().StringVar(&outcome, "outcome", "", "Only this outcome (e.g. REJECTED_LEAK)")
	recent.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	recent.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	var since time.Duration
	counts := &cobra.Command{
		Use:   "counts",
		Short: "Count audit events per outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, e, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			defer e.log.Sync()

			totals, err := store.OutcomeCounts(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}

			outcomes := make([]string, 0, len(totals))
			for o := range totals {
				outcomes = append(outcomes, o)
			}
			sort.Strings(outcomes)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Append([]string{"OUTCOME", "COUNT"})
			for _, o := range outcomes {
				table.Append([]string{o, strconv.FormatInt(totals[o], 10)})
			}
			table.Render()
			return nil
		},
	}
	counts.Flags().DurationVar(&since, "since", 24*time.Hour, "Look-back window")

	cmd.AddCommand(recent, counts)
	return cmd
}
