// Command guardctl is the operator CLI: mask text, vet model output, audit
// transcript corpora and inspect the audit trail.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/raaihank/civicguard/internal/config"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const appName = "guardctl"

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand
type options struct {
	configPath string
	logLevel   string
}

// env is the loaded configuration, logger and rule registry
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *rules.Registry
}

func (o *options) load() (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	// stdout carries the command output
	log, err := logger.New(logger.Config{Level: level, Format: "console", Stderr: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry, err := rules.Build(cfg.Rules.PackFile)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}
	return &env{cfg: cfg, log: log, registry: registry}, nil
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "CivicGuard operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `guardctl runs the CivicGuard redaction and leak checks outside the
HTTP service.

Use it to mask a transcript, vet a model response before it is trusted,
audit a whole transcript corpus, or list recent pipeline outcomes from the
PostgreSQL audit trail.`,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(
		redactCmd(opts),
		vetCmd(opts),
		corpusCmd(opts),
		auditCmd(opts),
		rulesCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (commit: %s)\n", appName, version, commit)
			},
		},
	)
	return cmd
}

// readInput reads the named file, or stdin when the name is empty or "-"
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func trimmed(s string) string {
	return strings.TrimRight(s, "\r\n")
}
