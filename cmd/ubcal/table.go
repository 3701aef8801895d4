package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// printer groups digits in dial counts and similar integers.
var printer = message.NewPrinter(language.English)

func formatCount(n int) string {
	return printer.Sprintf("%v", number.Decimal(n))
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// writeTable prints rows under header with columns sized to the widest cell.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(c))
			}
		}
	}

	line := func(cells []string) {
		padded := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				padded[i] = c
				continue
			}
			padded[i] = padRight(c, widths[i])
		}
		fmt.Fprintln(w, strings.Join(padded, "  "))
	}

	line(header)
	total := 0
	for _, n := range widths {
		total += n
	}
	fmt.Fprintln(w, strings.Repeat("─", total+2*(len(widths)-1)))
	for _, row := range rows {
		line(row)
	}
}

// formatExpanded writes a value with its expanded uncertainty and coverage factor.
func formatExpanded(value, u, k float64, unit string) string {
	return fmt.Sprintf("%.9g %s  U = %.3g %s (k = %.2f)", value, unit, u, unit, k)
}
