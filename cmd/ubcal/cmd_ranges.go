package main

import (
	"fmt"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/spf13/cobra"
)

func newRangesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "List the bridge ranges with dial scales and full-scale values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rows [][]string
			for _, r := range bridge.AvailableRanges() {
				xStep, rStep, err := bridge.UnitScale(r)
				if err != nil {
					return err
				}
				xFull, rFull, err := bridge.FullScale(r)
				if err != nil {
					return err
				}
				xUnit, rUnit := bridge.Units(r)
				rows = append(rows, []string{
					r.String(),
					fmt.Sprintf("%g %s", xStep, xUnit),
					fmt.Sprintf("%g %s", rStep, rUnit),
					fmt.Sprintf("%g %s", xFull, xUnit),
					fmt.Sprintf("%g %s", rFull, rUnit),
				})
			}
			writeTable(cmd.OutOrStdout(),
				[]string{"Range", "X per count", "R per count", "X full scale", "R full scale"}, rows)
			return nil
		},
	}
}
