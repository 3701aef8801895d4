package main

import (
	"fmt"
	"io"
	"math"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/impedance-lab/ubcal/internal/wizard"
	"github.com/spf13/cobra"
)

type valueOptions struct {
	cal          string
	rng          string
	frequency    string
	resistance   string
	reactance    string
	interactive  bool
	noResolution bool
	budget       int
}

func newValueCommand() *cobra.Command {
	var opts valueOptions

	cmd := &cobra.Command{
		Use:   "value",
		Short: "Evaluate a single bridge reading",
		Long: `Evaluate one balance of the bridge and print the reactive and real parts
with their expanded uncertainties and the ratio to the declared CMC.

Dials are given either as counts or in compact notation, one character per
dial with -1 and X for the extra positions, e.g. --reactance -1X3x-16.
Use -i to enter the reading interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return valueCommandE(cmd, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.cal, "cal", "", "Bridge calibration file (default: paths.calibration)")
	cmd.Flags().StringVarP(&opts.rng, "range", "r", "", "Range, e.g. 4Z or 6Y")
	cmd.Flags().StringVarP(&opts.frequency, "freq", "f", "", "Frequency in Hz")
	cmd.Flags().StringVar(&opts.resistance, "resistance", "0", "Resistance (A) dial setting")
	cmd.Flags().StringVar(&opts.reactance, "reactance", "0", "Reactance (B) dial setting")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Enter the reading in an interactive form")
	cmd.Flags().BoolVar(&opts.noResolution, "no-resolution", false, "Leave out the dial resolution term")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "Print the N largest uncertainty components of each part")

	return cmd
}

func valueCommandE(cmd *cobra.Command, opts *valueOptions) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	model, settings, err := openBridge(cfg, opts.cal)
	if err != nil {
		return err
	}

	entry := &wizard.ReadingEntry{
		Range:      opts.rng,
		Frequency:  opts.frequency,
		Resistance: opts.resistance,
		Reactance:  opts.reactance,
	}
	if opts.interactive {
		entry, err = wizard.RunReadingWizard(cmd.InOrStdin(), cmd.OutOrStdout(), opts.rng)
		if err != nil {
			return err
		}
	}
	rd, err := entry.Reading(settings.Resolution && !opts.noResolution)
	if err != nil {
		return err
	}

	z, err := model.Value(rd)
	if err != nil {
		return err
	}
	cmc, err := model.CMCUncert(rd)
	if err != nil {
		return err
	}

	x := z.Imag().Scale(1 / (2 * math.Pi * rd.Frequency))
	re := z.Real()
	ux, kx := x.Expanded(settings.Coverage)
	ur, kr := re.Expanded(settings.Coverage)
	ratioX, ratioR := cmc.Ratios(ux, ur)

	xName, rName := partNames(rd.Range)
	xUnit, rUnit := bridge.Units(rd.Range)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Range %s at %g Hz, resistance dial %s, reactance dial %s\n\n",
		rd.Range, rd.Frequency, formatCount(rd.Resistance), formatCount(rd.Reactance))
	fmt.Fprintf(w, "%s %s\n", padRight(xName+":", 4), formatExpanded(x.Value(), ux, kx, xUnit))
	fmt.Fprintf(w, "%s %s\n", padRight(rName+":", 4), formatExpanded(re.Value(), ur, kr, rUnit))
	fmt.Fprintf(w, "\nCMC %s: %.3g %s, ratio %.3f\n", xName, cmc.Reactive(), xUnit, ratioX)
	fmt.Fprintf(w, "CMC %s: %.3g %s, ratio %.3f\n", rName, cmc.Real(), rUnit, ratioR)

	if opts.budget > 0 {
		printBudget(w, xName, x, opts.budget)
		printBudget(w, rName, re, opts.budget)
	}
	return nil
}

// partNames names the reactive and real parts read on r.
func partNames(r bridge.Range) (reactive, resistive string) {
	if r.IsImpedance() {
		return "L", "R"
	}
	return "C", "G"
}

func printBudget(w io.Writer, name string, q gum.Quantity, limit int) {
	var rows [][]string
	for label, u := range q.Budget() {
		if len(rows) == limit {
			break
		}
		rows = append(rows, []string{label, fmt.Sprintf("%.3g", u)})
	}
	fmt.Fprintf(w, "\nUncertainty budget of %s, u = %.3g, dof = %.3g\n", name, q.Uncertainty(), q.DOF())
	writeTable(w, []string{"Source", "Component"}, rows)
}
