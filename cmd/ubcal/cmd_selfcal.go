package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/impedance-lab/ubcal/internal/selfcal"
	"github.com/spf13/cobra"
)

func newSelfcalCommand() *cobra.Command {
	var constants string

	cmd := &cobra.Command{
		Use:   "selfcal <plan.yaml>",
		Short: "Calibrate the bridge's internal standards",
		Long: `Run a self-calibration of the bridge from a plan file.

The DC values of R4A, R4B, R4C, G1 and G2 are built up from the SR104 with a
Hamon box. The phase defect of each range is found with Thompson standards,
and the ratio error with resistors read in both modes. The new offsets are
applied to the calibration file named in the plan, and the recalibrated bridge
is checked against the external resistors, inductors and capacitors.

The report goes to report.workbook. With --constants, or constants in the
plan, the updated calibration table is written as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			plan, err := selfcal.LoadPlan(args[0])
			if err != nil {
				return err
			}

			calPath := plan.Path(plan.Calibration)
			calRows, err := dataset.NewWorkbook(calPath).ReadAll("")
			if err != nil {
				return fmt.Errorf("loading calibration %s: %w", calPath, err)
			}
			ambient := runnerSettings(cfg).Ambient
			if plan.Ambient != nil {
				ambient = *plan.Ambient
			}

			slog.Debug("Running self-calibration", "plan", plan.Name, "workbook", plan.Workbook, "ambient", ambient.Value)
			res, err := selfcal.Run(plan, dataset.NewWorkbook(plan.Path(plan.Workbook)), calRows, ambient)
			if err != nil {
				return fmt.Errorf("self-calibration %s: %w", plan.Name, err)
			}

			w := cmd.OutOrStdout()
			printSelfcal(w, res)

			report := plan.Path(plan.Report.Workbook)
			if err := dataset.NewWorkbook(report).WriteBlock(plan.ReportSheet(), plan.Report.FirstRow(), res.ReportRows()); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(w, "\nReport written to: %s\n", report)

			if constants == "" {
				constants = plan.Path(plan.Constants)
			}
			if constants != "" {
				if err := dataset.NewWorkbook(constants).WriteBlock("", 1, res.Calibration); err != nil {
					return fmt.Errorf("writing calibration: %w", err)
				}
				fmt.Fprintf(w, "Calibration written to: %s\n", constants)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&constants, "constants", "", "Write the updated calibration table to this file (default: constants in the plan)")

	return cmd
}

func printSelfcal(w io.Writer, res *selfcal.Result) {
	rows := make([][]string, 0, len(res.Constants))
	for _, c := range res.Constants {
		dc := res.DC.Standards[c.Key]
		rows = append(rows, []string{
			c.Key,
			fmt.Sprintf("%.10g", dc.Value()),
			fmt.Sprintf("%.3f", c.Offset.Value()*1e6),
			fmt.Sprintf("%.3f", c.Offset.Uncertainty()*1e6),
		})
	}
	writeTable(w, []string{"Standard", "DC (ohm)", "Offset (ppm)", "u (ppm)"}, rows)

	if len(res.Phases) > 0 {
		fmt.Fprintln(w)
		rows = rows[:0]
		for _, p := range res.Phases {
			rows = append(rows, []string{
				p.Label,
				fmt.Sprintf("%d", p.Decade),
				fmt.Sprintf("%g", p.Frequency),
				fmt.Sprintf("%.3f", p.CapacitancePPM),
				fmt.Sprintf("%.3f", p.InductancePPM),
			})
		}
		writeTable(w, []string{"Thompson", "Decade", "Freq (Hz)", "C (ppm)", "L (ppm)"}, rows)
	}

	if len(res.Gains) > 0 {
		fmt.Fprintln(w)
		rows = rows[:0]
		for _, g := range res.Gains {
			rows = append(rows, []string{
				g.Label,
				fmt.Sprintf("%d", g.Decade),
				fmt.Sprintf("%g", g.Frequency),
				fmt.Sprintf("%.3f", g.ProductPPM),
				fmt.Sprintf("%.3f", g.FactorPPM),
			})
		}
		writeTable(w, []string{"Resistor", "Decade", "Freq (Hz)", "Product (ppm)", "Gain (ppm)"}, rows)
	}
}
