package selfcal

import (
	"fmt"
	"math"

	"github.com/impedance-lab/ubcal/internal/bridge"
)

// Dials is a pair of bridge readings as decimal fractions of full scale:
// A is the reactance dial and B the resistance dial.
type Dials struct {
	A, B float64
}

// Sub returns the zero corrected reading d − zero.
func (d Dials) Sub(zero Dials) Dials {
	return Dials{A: d.A - zero.A, B: d.B - zero.B}
}

// Counts converts the reading to integer dial counts for the bridge model.
func (d Dials) Counts() (reactance, resistance int) {
	return int(math.Round(d.A * bridge.ReactanceDialMax)), int(math.Round(d.B * bridge.ResistanceDialMax))
}

// ThompsonReading is a Thompson standard read in one mode with its known
// parallel capacitance in pF.
type ThompsonReading struct {
	Dials
	CapacitancePF float64
}

// Phase is the phase defect of one range found with a Thompson standard.
type Phase struct {
	Label     string
	Decade    int
	Frequency float64
	// Corrections to the capacitance (F) and inductance (H) readings, and the
	// same relative to full scale in ppm.
	Capacitance, Inductance       float64
	CapacitancePPM, InductancePPM float64
}

// PhaseError compares the readings of a Thompson standard in Z and Y mode
// with its known time constant. The expected inductance of a resistance R
// with parallel capacitance C is L = −C·R²/(1 + (ωCR)²); the expected
// capacitance in Y mode is C itself.
func PhaseError(label string, z, y ThompsonReading, zZero, yZero Dials, f float64, decade int) (Phase, error) {
	zRange := bridge.Range{Decade: decade, Mode: bridge.Impedance}
	yRange := bridge.Range{Decade: decade, Mode: bridge.Admittance}
	fsl, fsr, err := bridge.FullScale(zRange)
	if err != nil {
		return Phase{}, fmt.Errorf("thompson %s: %w", label, err)
	}
	fsc, _, err := bridge.FullScale(yRange)
	if err != nil {
		return Phase{}, fmt.Errorf("thompson %s: %w", label, err)
	}

	imp := z.Sub(zZero)
	adm := y.Sub(yZero)
	c := z.CapacitancePF * 1e-12
	r := imp.B * fsr
	wcr := 2 * math.Pi * f * c * r
	l := -c * r * r / (1 + wcr*wcr)

	p := Phase{
		Label:       label,
		Decade:      decade,
		Frequency:   f,
		Capacitance: c - adm.A*fsc,
		Inductance:  l - imp.A*fsl,
	}
	p.CapacitancePPM = p.Capacitance / fsc * 1e6
	p.InductancePPM = p.Inductance / fsl * 1e6
	return p, nil
}

// Gain is the ratio error of one range found with a resistor read in both
// Z and Y mode: the product of the two resistance dial readings is one for a
// perfect bridge, apart from the ratio of G1 to G2.
type Gain struct {
	Label      string
	Decade     int
	Frequency  float64
	ProductPPM float64
	FactorPPM  float64
}

// GainFactor returns the gain error for a resistor read as y and z, both zero
// corrected; g1g2PPM is G1/G2 − 1 in ppm.
func GainFactor(label string, y, z Dials, decade int, f, g1g2PPM float64) (Gain, error) {
	prod := y.B * z.B
	if prod <= 0 {
		return Gain{}, fmt.Errorf("resistor %s: %w: resistance dial product %g is not positive", label, ErrMalformedRow, prod)
	}
	ppm := (math.Sqrt(prod) - 1) * 1e6
	return Gain{Label: label, Decade: decade, Frequency: f, ProductPPM: ppm, FactorPPM: ppm - g1g2PPM}, nil
}
