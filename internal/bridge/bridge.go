// Package bridge models the universal impedance bridge: the complex impedance
// or admittance synthesised from its calibrated internal standards for a given
// range, dial setting and frequency, with every uncertainty contribution
// carried through as a gum quantity.
package bridge

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/impedance-lab/ubcal/internal/calstore"
	"github.com/impedance-lab/ubcal/internal/gum"
)

// ErrInvalidFrequency is returned for a frequency that is not a positive finite number.
var ErrInvalidFrequency = errors.New("invalid frequency")

const (
	// ResistanceDialMax is the full-scale count of the seven resistance (A) dials.
	ResistanceDialMax = 10_000_000
	// ReactanceDialMax is the full-scale count of the six reactance (B) dials.
	ReactanceDialMax = 1_000_000

	// auxBalanceResolution is the 10 ppm scatter of the drifting auxiliary
	// balance on ranges 1Z to 3Z.
	auxBalanceResolution = 1e-5

	// resolutionDOF is the degrees of freedom given to dial reading resolution.
	resolutionDOF = 10

	// phaseRefFrequency is the frequency (Hz) at which Amp_phase was measured.
	phaseRefFrequency = 1600
)

// Internal standards and their nominal values.
const (
	C1  = "C1"
	R4A = "R4A"
	R4B = "R4B"
	R4C = "R4C"
	G1  = "G1"
	G2  = "G2"
)

var nominal = map[string]float64{
	C1:  1e-9,
	R4A: 1e4,
	R4B: 1e5,
	R4C: 1e6,
	G1:  1e-5,
	G2:  1e-5,
}

// NominalValue returns the nominal value of an internal standard: F for C1,
// ohm for the R4 resistors and S for the G conductances.
func NominalValue(name string) (float64, bool) {
	v, ok := nominal[name]
	return v, ok
}

// StandardNames lists the internal standards in reporting order.
var StandardNames = []string{C1, R4A, R4B, R4C, G1, G2}

// Calibration keys that are not standards.
const (
	keyAmp      = "Amp"
	keyAmpPhase = "Amp_phase"
	keyCalTemp  = "cal_temp"
	keyALin     = "Adial_lin"
	keyBLin     = "Bdial_lin"
)

// Model is a calibrated bridge at one ambient temperature. It is immutable
// after New; each call to Value mints fresh dial leaves in the Context.
type Model struct {
	ctx         *gum.Context
	temperature gum.Quantity

	standards map[string]gum.Quantity
	amp       gum.Quantity
	ampPhase  gum.Quantity

	// linearity bounds of the two dividers in dial counts
	aLin, bLin gum.Quantity
}

// Standard is a derived internal standard value.
type Standard struct {
	Name     string
	Nominal  float64
	Quantity gum.Quantity
}

// Open loads the calibration file at path and builds a Model.
func Open(ctx *gum.Context, path string, temperature gum.Quantity) (*Model, error) {
	cal, err := calstore.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(ctx, cal, temperature)
}

// New derives the internal standards from the calibration records at the given
// ambient temperature. Every standard is nominal × (1+offset) × (1+acdc) ×
// (1+tempco·ΔT) × (1+stability), ΔT = temperature − cal_temp, with the tempco
// product kept to second order. C1 has no acdc factor.
func New(ctx *gum.Context, cal *calstore.RecordSet, temperature gum.Quantity) (*Model, error) {
	static, err := cal.Lookup(calstore.Static, slices.Concat(StandardNames, []string{keyAmp, keyAmpPhase, keyCalTemp})...)
	if err != nil {
		return nil, err
	}
	acdc, err := cal.Lookup(calstore.ACDC, R4A, R4B, R4C, G1, G2)
	if err != nil {
		return nil, err
	}
	tempco, err := cal.Lookup(calstore.TempCoefficient, StandardNames...)
	if err != nil {
		return nil, err
	}
	stab, err := cal.Lookup(calstore.Stability, StandardNames...)
	if err != nil {
		return nil, err
	}
	ivd, err := cal.Lookup(calstore.DividerLinearity, keyALin, keyBLin)
	if err != nil {
		return nil, err
	}

	dt := temperature.Sub(static[keyCalTemp])
	m := &Model{
		ctx:         ctx,
		temperature: temperature,
		standards:   make(map[string]gum.Quantity, len(StandardNames)),
		amp:         static[keyAmp].Shift(1),
		ampPhase:    static[keyAmpPhase],
		aLin:        ivd[keyALin].Scale(ResistanceDialMax),
		bLin:        ivd[keyBLin].Scale(ReactanceDialMax),
	}
	for _, name := range StandardNames {
		q := gum.Constant(nominal[name]).
			Mul(static[name].Shift(1)).
			Mul(tempco[name].Mul2(dt).Shift(1)).
			Mul(stab[name].Shift(1))
		if name != C1 {
			q = q.Mul(acdc[name].Shift(1))
		}
		m.standards[name] = q
	}
	return m, nil
}

// Temperature returns the ambient temperature the model was built for.
func (m *Model) Temperature() gum.Quantity { return m.temperature }

// Context returns the correlation context the model mints leaves in.
func (m *Model) Context() *gum.Context { return m.ctx }

// Standards returns the derived internal standards and the amplifier gain.
func (m *Model) Standards() []Standard {
	out := make([]Standard, 0, len(StandardNames)+1)
	for _, name := range StandardNames {
		out = append(out, Standard{Name: name, Nominal: nominal[name], Quantity: m.standards[name]})
	}
	return append(out, Standard{Name: keyAmp, Nominal: 1, Quantity: m.amp})
}

// Reading is one balance of the bridge.
type Reading struct {
	Range Range
	// Resistance is the A dial count, nominally 0 to ResistanceDialMax.
	Resistance int
	// Reactance is the B dial count, nominally 0 to ReactanceDialMax.
	Reactance int
	Frequency float64
	// Resolution adds a dial reading resolution term. Turn it off when the
	// scatter of repeated readings is evaluated separately.
	Resolution bool
}

type valueOptions struct {
	label string
}

// ValueOption configures a call to Value.
type ValueOption func(*valueOptions)

// WithLabel names the result so that it appears in intermediate budgets of
// anything derived from it. A label already used in the context gets a #n
// suffix, so repeated readings of one item may share it.
func WithLabel(label string) ValueOption {
	return func(o *valueOptions) { o.label = label }
}

// Value returns the impedance (Z ranges, ohm) or admittance (Y ranges, S) for
// the reading. The dial linearity and resolution terms are new leaves on every
// call, so they survive a later zero subtraction.
func (m *Model) Value(r Reading, opts ...ValueOption) (gum.Complex, error) {
	var o valueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !r.Range.valid() {
		return gum.Complex{}, fmt.Errorf("%w %v", ErrInvalidRange, r.Range)
	}
	f := r.Frequency
	if !(f > 0) || math.IsInf(f, 0) {
		return gum.Complex{}, fmt.Errorf("%w: %g Hz", ErrInvalidFrequency, f)
	}

	aDial := strconv.Itoa(r.Resistance)
	bDial := strconv.Itoa(r.Reactance)
	a := gum.Constant(float64(r.Resistance)).Add(m.fresh(m.aLin, keyALin+aDial))
	b := gum.Constant(float64(r.Reactance)).Add(m.fresh(m.bLin, keyBLin+bDial))

	if r.Resolution {
		res := ResolutionFraction(f)
		a = a.Add(m.ctx.Fresh(0, ResistanceDialMax*res, resolutionDOF, "Adialres"+aDial))
		b = b.Add(m.ctx.Fresh(0, ReactanceDialMax*res, resolutionDOF, "Bdialres"+bDial))
	}
	if r.Range.IsImpedance() && r.Range.Decade <= 3 {
		a = a.Add(m.ctx.Fresh(0, ResistanceDialMax*auxBalanceResolution, resolutionDOF, "Adialauxbal"+aDial))
	}

	a = a.Scale(1.0 / ResistanceDialMax)
	b = b.Scale(1.0 / ReactanceDialMax)

	r4 := m.standards[R4A]
	switch r.Range.Decade {
	case 7:
		r4 = m.standards[R4C]
	case 6:
		r4 = m.standards[R4B]
	}

	omega := 2 * math.Pi * f
	arms := gum.NewComplex(a.Mul(m.standards[G1]), b.Mul(m.standards[C1]).Scale(omega))
	phase := gum.NewComplex(gum.Constant(1), m.ampPhase.Scale(f/phaseRefFrequency))

	var k gum.Quantity
	var err error
	ratio := transformerRatio(r.Range.Decade)
	if r.Range.IsImpedance() {
		k, err = r4.Div(m.standards[G2])
		k = k.Scale(1 / ratio)
	} else {
		var g3 gum.Quantity
		g3, err = r4.Inv()
		if err == nil {
			k, err = g3.Div(m.standards[G2])
		}
		k = k.Scale(ratio)
	}
	if err != nil {
		return gum.Complex{}, fmt.Errorf("bridge standards: %w", err)
	}

	z := arms.MulReal(k.Mul(m.amp)).Mul(phase)
	if o.label != "" {
		z, _ = m.ctx.UniqueComplexResult(z, o.label)
	}
	return z, nil
}

// fresh mints an independent copy of a linearity bound as a new leaf.
func (m *Model) fresh(bound gum.Quantity, label string) gum.Quantity {
	return m.ctx.Fresh(bound.Value(), bound.Uncertainty(), bound.DOF(), label)
}

// ResolutionFraction is the relative dial reading resolution at f Hz: 1 ppm at
// 2 kHz rising to about 14 ppm at 50 Hz.
func ResolutionFraction(f float64) float64 {
	return math.Pow(2e3/f, 1/1.4) * 1e-6
}
