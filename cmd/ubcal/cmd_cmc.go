package main

import (
	"fmt"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/impedance-lab/ubcal/internal/wizard"
	"github.com/spf13/cobra"
)

func newCMCCommand() *cobra.Command {
	var (
		cal          string
		rng          string
		frequency    string
		noResolution bool
	)

	cmd := &cobra.Command{
		Use:   "cmc",
		Short: "Compare the declared CMC with the propagated uncertainty over a dial grid",
		Long: `Evaluate the declared CMC and the expanded uncertainty of the bridge model
for a grid of dial settings on one range, and print their ratio. A ratio
below 1 means the model uncertainty exceeds the declared capability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := bridge.ParseRange(rng)
			if err != nil {
				return err
			}
			f, err := wizard.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			model, settings, err := openBridge(cfg, cal)
			if err != nil {
				return err
			}

			grid, err := model.CMCGrid(r, f, settings.Resolution && !noResolution, settings.Coverage)
			if err != nil {
				return err
			}

			xName, rName := partNames(r)
			xUnit, rUnit := bridge.Units(r)
			rows := make([][]string, 0, len(grid))
			for _, gp := range grid {
				ux, _ := gp.Reactive.Expanded(settings.Coverage)
				ur, _ := gp.Real.Expanded(settings.Coverage)
				rows = append(rows, []string{
					formatCount(gp.Reading.Resistance),
					formatCount(gp.Reading.Reactance),
					fmt.Sprintf("%.3g", gp.CMC.Reactive()),
					fmt.Sprintf("%.3g", ux),
					fmt.Sprintf("%.2f", gp.RatioX),
					fmt.Sprintf("%.3g", gp.CMC.Real()),
					fmt.Sprintf("%.3g", ur),
					fmt.Sprintf("%.2f", gp.RatioReal),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "CMC grid for %s at %g Hz (%s in %s, %s in %s)\n\n", r, f, xName, xUnit, rName, rUnit)
			writeTable(w, []string{
				"R dial", "X dial",
				"CMC " + xName, "U " + xName, "ratio " + xName,
				"CMC " + rName, "U " + rName, "ratio " + rName,
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&cal, "cal", "", "Bridge calibration file (default: paths.calibration)")
	cmd.Flags().StringVarP(&rng, "range", "r", "", "Range, e.g. 4Z or 6Y")
	cmd.Flags().StringVarP(&frequency, "freq", "f", "1000", "Frequency in Hz")
	cmd.Flags().BoolVar(&noResolution, "no-resolution", false, "Leave out the dial resolution term")
	_ = cmd.MarkFlagRequired("range")

	return cmd
}
