package uut

import (
	"fmt"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
)

// Result is one reported row: value, expanded uncertainty and coverage factor
// of each part, and the CMC ratios. Reactive values are L (H) or C (F).
type Result struct {
	Item models.Item

	Reactive, ReactiveU, ReactiveK float64
	Real, RealU, RealK             float64

	TanDelta, TanDeltaU, TanDeltaK float64
	HasTanDelta                    bool

	CMC bridge.CMC
	// Ratios of declared CMC to the expanded uncertainty, 0 where the
	// result has no uncertainty.
	RatioReactive, RatioReal float64
}

// ResultColumns returns the column headings of the appended result cells.
func ResultColumns(tanDelta bool) []string {
	cols := []string{"x", "xU", "kx", "r", "rU", "kr"}
	if tanDelta {
		cols = append(cols, "tand", "tandU", "ktand")
	}
	return append(cols, "cmc_ratio_x", "cmc_ratio_r")
}

// Tabulate expands the corrected values at coverage probability p and
// compares them with the CMCs. items, corrected and cmcs run in parallel.
func Tabulate(items []models.Item, corrected []Corrected, cmcs []bridge.CMC, p float64) ([]Result, error) {
	if len(corrected) != len(items) || len(cmcs) != len(items) {
		return nil, fmt.Errorf("tabulate: %d items, %d corrected values, %d CMCs", len(items), len(corrected), len(cmcs))
	}
	out := make([]Result, len(items))
	for i, c := range corrected {
		r := Result{Item: items[i], CMC: cmcs[i]}
		r.Reactive, r.ReactiveU, r.ReactiveK = expand(c.Reactive, p)
		r.Real, r.RealU, r.RealK = expand(c.Real, p)
		if c.HasTanDelta {
			r.HasTanDelta = true
			if c.TanDelta.IsConstant() {
				r.TanDelta = c.TanDelta.Value()
			} else {
				r.TanDelta, r.TanDeltaU, r.TanDeltaK = expand(c.TanDelta, p)
			}
		}
		r.RatioReactive, r.RatioReal = r.CMC.Ratios(r.ReactiveU, r.RealU)
		out[i] = r
	}
	return out, nil
}

func expand(q gum.Quantity, p float64) (x, U, k float64) {
	U, k = q.Expanded(p)
	return q.Value(), U, k
}

// Cells returns the input row followed by the result columns. With tanDelta
// the three tan δ columns are always present, zero where none applies.
func (r Result) Cells(tanDelta bool) []any {
	out := make([]any, 0, len(r.Item.Cells)+11)
	for _, c := range r.Item.Cells {
		out = append(out, c)
	}
	out = append(out, r.Reactive, r.ReactiveU, r.ReactiveK, r.Real, r.RealU, r.RealK)
	if tanDelta {
		out = append(out, r.TanDelta, r.TanDeltaU, r.TanDeltaK)
	}
	return append(out, r.RatioReactive, r.RatioReal)
}
