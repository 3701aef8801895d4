package main

import (
	"fmt"

	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/spf13/cobra"
)

func newStandardsCommand() *cobra.Command {
	var (
		cal    string
		budget int
	)

	cmd := &cobra.Command{
		Use:   "standards",
		Short: "Show the internal standards derived from the calibration",
		Long: `Show the value of every internal standard of the bridge at the project
ambient temperature, after the static, frequency, temperature and stability
corrections of the calibration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			model, settings, err := openBridge(cfg, cal)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Ambient %g ± %g °C\n\n", settings.Ambient.Value, settings.Ambient.Uncertainty)

			standards := model.Standards()
			rows := make([][]string, 0, len(standards))
			for _, s := range standards {
				q := s.Quantity
				rel := 0.0
				if q.Value() != 0 {
					rel = q.Uncertainty() / q.Value() * 1e6
				}
				rows = append(rows, []string{
					s.Name,
					fmt.Sprintf("%g", s.Nominal),
					fmt.Sprintf("%.10g", q.Value()),
					fmt.Sprintf("%.3g", q.Uncertainty()),
					fmt.Sprintf("%.2f", rel),
					fmt.Sprintf("%.3g", q.DOF()),
				})
			}
			writeTable(w, []string{"Standard", "Nominal", "Value", "u", "u (ppm)", "dof"}, rows)

			if budget > 0 {
				for _, s := range standards {
					printBudget(w, s.Name, s.Quantity, budget)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cal, "cal", "", "Bridge calibration file (default: paths.calibration)")
	cmd.Flags().IntVar(&budget, "budget", 0, "Print the N largest uncertainty components of each standard")

	return cmd
}
