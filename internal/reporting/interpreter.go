package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/impedance-lab/ubcal/internal/models"
)

// InterpretRatio returns a plain-language label for a CMC ratio, the declared
// CMC divided by the expanded uncertainty achieved.
func InterpretRatio(ratio float64) string {
	switch {
	case ratio == 0:
		return "Not rated (no uncertainty)"
	case ratio >= 2:
		return "Comfortable (CMC at least twice U)"
	case ratio >= 1.2:
		return "Within CMC"
	case ratio >= 1:
		return "Marginal (U within 20% of CMC)"
	default:
		return fmt.Sprintf("Exceeds CMC (U is %.0f%% above)", (1/ratio-1)*100)
	}
}

// FormatSummaryReport produces a plain-language report of one job run.
func FormatSummaryReport(o *models.RunOutcome) string {
	var b strings.Builder

	d := o.Digest
	duration := time.Duration(d.DurationMs) * time.Millisecond

	fmt.Fprintf(&b, "=== %s ===\n\n", o.JobName)
	if o.Error != "" {
		fmt.Fprintf(&b, "Error:         %s\n", o.Error)
		return b.String()
	}

	fmt.Fprintf(&b, "Status:        %s\n", d.Status)
	fmt.Fprintf(&b, "Rows:          %d passed, %d failed, %d not rated out of %d\n",
		d.Passed, d.Failed, d.NotRated, d.TotalRows)
	if d.MinRatio > 0 {
		fmt.Fprintf(&b, "Lowest ratio:  %.3f: %s\n", d.MinRatio, InterpretRatio(d.MinRatio))
	}
	fmt.Fprintf(&b, "Duration:      %v\n", duration)

	var failed []models.RowOutcome
	for _, r := range o.Rows {
		if r.Status == models.StatusFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nRows outside the CMC:\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "  ✗ row %d %s (%s Hz, %s)\n", r.Row, r.Label, r.NominalFrequency, r.Range)
			fmt.Fprintf(&b, "    x: %s\n", InterpretRatio(r.RatioReactive))
			fmt.Fprintf(&b, "    r: %s\n", InterpretRatio(r.RatioReal))
		}
	}

	return b.String()
}
