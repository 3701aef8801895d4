package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ubcal",
		Short: "ubcal - uncertainty evaluation for universal impedance bridge readings",
		Long: `ubcal evaluates readings of a universal impedance bridge with full GUM
uncertainty propagation.

It converts dial settings into impedance or admittance using the bridge
calibration, applies zero corrections and temperature coefficients, and
compares the expanded uncertainty of every result with the declared CMC.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValueCommand())
	cmd.AddCommand(newRangesCommand())
	cmd.AddCommand(newCMCCommand())
	cmd.AddCommand(newStandardsCommand())
	cmd.AddCommand(newSelfcalCommand())
	cmd.AddCommand(newSelfcalCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newCacheCommand())

	return cmd
}

func execute(ctx context.Context) error {
	rootCmd := newRootCommand()
	return rootCmd.ExecuteContext(ctx)
}
