package main

import (
	"cmp"
	"fmt"
	"path/filepath"

	"github.com/impedance-lab/ubcal/internal/cache"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the run cache",
		Long: `Manage the run cache.

The cache stores run records so that a job whose calibration file, input
workbook, job file and project defaults are unchanged is not evaluated again.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the run cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			absDir, err := filepath.Abs(cmp.Or(cacheDir, cfg.Path(cfg.Cache.Dir)))
			if err != nil {
				return fmt.Errorf("resolving cache directory: %w", err)
			}

			c := cache.New(absDir)
			if err := c.Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default: cache.dir)")

	return cmd
}
