package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/config"
	"github.com/lyzr/claims/common/logger"
)

const (
	programName = "claimctl"
)

var globalFlags = struct {
	debug  bool
	output string
}{}

// setup bootstraps only what a command needs. Redis and telemetry are never
// started from the CLI.
func setup(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.Components, error) {
	cfg, err := config.Load(programName)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if globalFlags.debug {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, cfg.Service.LogFormat)

	opts = append([]bootstrap.Option{
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithCustomLogger(log),
		bootstrap.WithoutRedis(),
		bootstrap.WithoutTelemetry(),
	}, opts...)
	return bootstrap.Setup(ctx, programName, opts...)
}

// printResult writes v as indented JSON, or through text when --output=text
func printResult(w io.Writer, v interface{}, text func(io.Writer)) error {
	if globalFlags.output == "text" && text != nil {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operator tooling for the claims ledger mirror",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch globalFlags.output {
			case "json", "text":
				return nil
			default:
				return fmt.Errorf("unknown output format %q", globalFlags.output)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.output, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(
		syncCommand(),
		verifyCommand(),
		balanceCommand(),
		reviewerCommand(),
		deleteCommand(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
