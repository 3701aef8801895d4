package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/impedance-lab/ubcal/internal/validation"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [job.yaml...]",
		Short: "Check job files and .ubcal.yaml against their schemas",
		Long: `Check job files against the job schema and for consistency, and the
project configuration against its schema.

Without arguments every *.yaml file in the jobs directory is checked.`,
		RunE: validateCommandE,
	}
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	checked, invalid := 0, 0

	if cfg.Dir != "" {
		p := filepath.Join(cfg.Dir, projectconfig.FileName)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		checked++
		if !printValidation(w, p, validation.ValidateProjectBytes(data)) {
			invalid++
		}
	}

	paths, err := jobPaths(cfg, args)
	if err != nil {
		return err
	}
	for _, p := range paths {
		msgs, err := validation.ValidateJobFile(p)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			if _, err := models.LoadJob(p); err != nil {
				msgs = []string{err.Error()}
			}
		}
		checked++
		if !printValidation(w, p, msgs) {
			invalid++
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d file(s) invalid", invalid, checked)
	}
	return nil
}

// printValidation reports one file and whether it is valid.
func printValidation(w io.Writer, path string, msgs []string) bool {
	if len(msgs) == 0 {
		fmt.Fprintf(w, "✓ %s\n", path)
		return true
	}
	fmt.Fprintf(w, "✗ %s\n", path)
	for _, m := range msgs {
		fmt.Fprintf(w, "    %s\n", m)
	}
	return false
}
