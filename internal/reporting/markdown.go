package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FormatMarkdown renders run records as a Markdown document with one results
// table per job.
func FormatMarkdown(outcomes []*models.RunOutcome) string {
	var b strings.Builder
	b.WriteString("# Calibration results\n")

	for _, o := range outcomes {
		fmt.Fprintf(&b, "\n## %s\n\n", o.JobName)
		if o.Error != "" {
			fmt.Fprintf(&b, "**Error:** %s\n", escapeCell(o.Error))
			continue
		}
		fmt.Fprintf(&b, "Run `%s`, %s, zero mode %s, coverage %g.\n\n",
			o.RunID, o.Timestamp.Format("2006-01-02 15:04"), o.Setup.ZeroMode, o.Setup.Coverage)

		b.WriteString("| Row | Item | Nominal (Hz) | Range | x | U(x) | r | U(r) | tan δ | Ratio x | Ratio r | Status |\n")
		b.WriteString("|---:|---|---:|---|---:|---:|---:|---:|---:|---:|---:|---|\n")
		for _, r := range o.Rows {
			td := ""
			if r.TanDelta != nil {
				td = fmt.Sprintf("%.4g", r.TanDelta.Value)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %.9g | %.2g | %.9g | %.2g | %s | %.2f | %.2f | %s |\n",
				r.Row, escapeCell(r.Label), r.NominalFrequency, r.Range,
				r.Reactive.Value, r.Reactive.U, r.Real.Value, r.Real.U,
				td, r.RatioReactive, r.RatioReal, r.Status)
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderHTML converts a Markdown report to an HTML fragment.
func RenderHTML(markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}
