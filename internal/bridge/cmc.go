package bridge

import (
	"math"

	"github.com/impedance-lab/ubcal/internal/gum"
)

// CMC holds the declared calibration and measurement capability of the bridge
// for one reading, in base units. Z ranges fill ResistorOnly, Resistance and
// Inductance; Y ranges fill Conductance and Capacitance.
type CMC struct {
	Range Range

	// ResistorOnly applies to a pure resistor; Resistance to the series
	// resistance of an inductor.
	ResistorOnly float64
	Resistance   float64
	Inductance   float64

	Conductance float64
	Capacitance float64
}

// Reactive returns the declared uncertainty of the reactive part (L or C).
func (c CMC) Reactive() float64 {
	if c.Range.IsImpedance() {
		return c.Inductance
	}
	return c.Capacitance
}

// Real returns the declared uncertainty of the resistive part (R of an inductor, or G).
func (c CMC) Real() float64 {
	if c.Range.IsImpedance() {
		return c.Resistance
	}
	return c.Conductance
}

// Ratios compares the declared capability with the uncertainties actually
// achieved for the reactive and real parts. A ratio of at least 1 means the
// result is within the CMC. A zero achieved uncertainty gives ratio 0.
func (c CMC) Ratios(reactiveU, realU float64) (reactive, real float64) {
	return ratio(c.Reactive(), reactiveU), ratio(c.Real(), realU)
}

func ratio(declared, achieved float64) float64 {
	if achieved == 0 {
		return 0
	}
	return declared / achieved
}

// CMCUncert evaluates the published CMC formulas at the bridge value of r.
// Only the value is used, so the result does not depend on r.Resolution.
func (m *Model) CMCUncert(r Reading) (CMC, error) {
	r.Resolution = false
	z, err := m.Value(r)
	if err != nil {
		return CMC{}, err
	}
	f := r.Frequency
	omega := 2 * math.Pi * f
	reactive := z.Imag().Value() / omega
	c := CMC{Range: r.Range}

	if !r.Range.IsImpedance() {
		capF := reactive
		c.Capacitance = (0.2/f + 22*capF*1e6) * 1e-12
		capPF := capF * 1e12
		if capPF == 0 {
			capPF = 1e-6
		}
		tanDelta := 0.000027 + 0.00027/capPF
		c.Conductance = omega * capF * tanDelta
		return c, nil
	}

	microH := reactive * 1e6
	res := z.Real().Value()
	scale := math.Pow10(r.Range.Decade - 1)
	c.ResistorOnly = (2000/f + 19*res) * 1e-6
	c.Inductance = math.Sqrt(sq(0.000014*microH)+sq(0.001*res)+sq(0.2*scale/f)) * 1e-6
	c.Resistance = math.Sqrt(sq(0.000014*res) + sq(1e-7*microH) + sq(0.002*scale/f))
	return c, nil
}

func sq(x float64) float64 { return x * x }

// Grid dial settings used to explore the CMC of a range.
var (
	GridResistance = []int{0, 1_000, 10_000, ResistanceDialMax}
	GridReactance  = []int{0, 100, 1_000, ReactanceDialMax}
)

// GridPoint is one setting of a CMC grid with the declared capability and the
// uncertainty the model propagates at that setting.
type GridPoint struct {
	Reading   Reading
	CMC       CMC
	Reactive  gum.Quantity
	Real      gum.Quantity
	RatioX    float64
	RatioReal float64
}

// CMCGrid evaluates CMCUncert and the propagated expanded uncertainty over
// GridResistance × GridReactance for range rg at frequency f. Reactive parts
// are reported as L or C.
func (m *Model) CMCGrid(rg Range, f float64, resolution bool, p float64) ([]GridPoint, error) {
	var out []GridPoint
	for _, ra := range GridResistance {
		for _, xb := range GridReactance {
			rd := Reading{Range: rg, Resistance: ra, Reactance: xb, Frequency: f, Resolution: resolution}
			cmc, err := m.CMCUncert(rd)
			if err != nil {
				return nil, err
			}
			z, err := m.Value(rd)
			if err != nil {
				return nil, err
			}
			x := z.Imag().Scale(1 / (2 * math.Pi * f))
			re := z.Real()
			ux, _ := x.Expanded(p)
			ur, _ := re.Expanded(p)
			gp := GridPoint{Reading: rd, CMC: cmc, Reactive: x, Real: re}
			gp.RatioX, gp.RatioReal = cmc.Ratios(ux, ur)
			out = append(out, gp)
		}
	}
	return out, nil
}
