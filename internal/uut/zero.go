package uut

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/impedance-lab/ubcal/internal/gum"
)

var (
	// ErrMissingZero is returned when an item has no zero to subtract.
	ErrMissingZero = errors.New("missing zero")
	// ErrAmbiguousZero is returned when two zeros share a nominal frequency and range.
	ErrAmbiguousZero = errors.New("ambiguous zero")
	// ErrZeroNotCancelling is returned when a zero subtracted from itself is not exactly zero.
	ErrZeroNotCancelling = errors.New("zero does not cancel against itself")
)

// TwistSplit is the first item measured on the second half of the twisted
// pair fixture. The fixture carries two banks of eleven connections, each
// read first with its leads shorted: items 0..10 are corrected against item
// 0 and items 11 onwards against item 11.
const TwistSplit = 11

// Corrected is a zero corrected result.
type Corrected struct {
	Real     gum.Quantity
	Reactive gum.Quantity
	// TanDelta is set when HasTanDelta; an exact zero means no tan δ applies.
	TanDelta    gum.Quantity
	HasTanDelta bool
}

type zeroKey struct {
	nominal string
	rng     string
}

func keyOf(v Value) zeroKey {
	return zeroKey{nominal: v.Item.NominalFrequency, rng: v.Item.Range}
}

// indexZeros collects the items labelled label by nominal frequency and range.
func indexZeros(values []Value, label string) (map[zeroKey]Value, error) {
	zeros := make(map[zeroKey]Value)
	for _, v := range values {
		if v.Item.Label != label {
			continue
		}
		k := keyOf(v)
		if prev, ok := zeros[k]; ok {
			return nil, fmt.Errorf("%w: %q at %s Hz on %s in rows %d and %d",
				ErrAmbiguousZero, label, k.nominal, k.rng, prev.Item.Row, v.Item.Row)
		}
		zeros[k] = v
	}
	return zeros, nil
}

func matchZero(zeros map[zeroKey]Value, v Value, label string) (Value, error) {
	z, ok := zeros[keyOf(v)]
	if !ok {
		return Value{}, itemErr(v.Item, fmt.Errorf("%w: no %q at the same nominal frequency and range", ErrMissingZero, label))
	}
	return z, nil
}

func checkCancels(v Value, real, reactive gum.Quantity) error {
	if real.Value() != 0 || reactive.Value() != 0 {
		return itemErr(v.Item, fmt.Errorf("%w: left %g, %g", ErrZeroNotCancelling, real.Value(), reactive.Value()))
	}
	return nil
}

// CoaxOptions configures SubtractCoaxZeros.
type CoaxOptions struct {
	// Label of the zero items, CoaxZeroLabel when empty.
	Label string
	// TanDelta adds tan δ = G/(ωC) at the nominal frequency for admittance ranges.
	TanDelta bool
}

// SubtractCoaxZeros subtracts from every value the zero of the same nominal
// frequency and range. Every item must find its zero.
func SubtractCoaxZeros(values []Value, opts CoaxOptions) ([]Corrected, error) {
	label := opts.Label
	if label == "" {
		label = CoaxZeroLabel
	}
	zeros, err := indexZeros(values, label)
	if err != nil {
		return nil, err
	}

	out := make([]Corrected, 0, len(values))
	for _, v := range values {
		z, err := matchZero(zeros, v, label)
		if err != nil {
			return nil, err
		}
		c := Corrected{Real: v.Real.Sub(z.Real), Reactive: v.Reactive.Sub(z.Reactive)}
		if v.Item.Label == label {
			if err := checkCancels(v, c.Real, c.Reactive); err != nil {
				return nil, err
			}
		}
		if opts.TanDelta && isAdmittance(v) {
			if c.TanDelta, err = tanDelta(v, c.Real, c.Reactive); err != nil {
				return nil, err
			}
			c.HasTanDelta = true
		}
		out = append(out, c)
	}
	if len(out) != len(values) {
		return nil, fmt.Errorf("%w: corrected %d of %d items", ErrMissingZero, len(out), len(values))
	}
	return out, nil
}

// SubtractTwistZeros applies the positional zeros of the twisted pair fixture.
func SubtractTwistZeros(values []Value) ([]Corrected, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]Corrected, len(values))
	for i, v := range values {
		ref := values[0]
		if i >= TwistSplit {
			ref = values[TwistSplit]
		}
		out[i] = Corrected{Real: v.Real.Sub(ref.Real), Reactive: v.Reactive.Sub(ref.Reactive)}
	}
	return out, nil
}

// BoxOptions configures SubtractBoxZeros.
type BoxOptions struct {
	// Label of the box zero items, BoxZeroLabel when empty.
	Label string
	// Exclude lists items reported without the box zero subtracted.
	Exclude []string
	// VernierItems lists items set on the vernier dial; Vernier is added to
	// their capacitance.
	VernierItems []string
	Vernier      gum.Quantity
	// SeriesResistance of the box connection adds ω²·R·C² to the conductance.
	SeriesResistance gum.Quantity
}

// SubtractBoxZeros corrects the settings of a capacitance box for the box
// zero of the same nominal frequency and range, and derives tan δ.
// Excluded items keep their values and have no tan δ.
func SubtractBoxZeros(values []Value, opts BoxOptions) ([]Corrected, error) {
	label := opts.Label
	if label == "" {
		label = BoxZeroLabel
	}
	zeros, err := indexZeros(values, label)
	if err != nil {
		return nil, err
	}

	out := make([]Corrected, 0, len(values))
	for _, v := range values {
		z, err := matchZero(zeros, v, label)
		if err != nil {
			return nil, err
		}
		if slices.Contains(opts.Exclude, v.Item.Label) {
			out = append(out, Corrected{Real: v.Real, Reactive: v.Reactive})
			continue
		}
		omega, err := nominalOmega(v)
		if err != nil {
			return nil, err
		}
		c2 := v.Reactive.Mul(v.Reactive)
		g := v.Real.Add(opts.SeriesResistance.Mul(c2).Scale(omega * omega)).Sub(z.Real)
		cx := v.Reactive.Sub(z.Reactive)
		if slices.Contains(opts.VernierItems, v.Item.Label) {
			cx = cx.Add(opts.Vernier)
		}
		// The box zero must cancel as reported, series resistance included.
		if v.Item.Label == label {
			if err := checkCancels(v, g, cx); err != nil {
				return nil, err
			}
		}
		td, err := tanDelta(v, g, cx)
		if err != nil {
			return nil, err
		}
		out = append(out, Corrected{Real: g, Reactive: cx, TanDelta: td, HasTanDelta: true})
	}
	return out, nil
}

// MainZeroOptions configures MainZero.
type MainZeroOptions struct {
	BoxLabel    string // BoxZeroLabel when empty
	CopperLabel string // CopperZeroLabel when empty
	Range       string // "6Y" when empty
	// Definition is the uncertainty of the definition and repeatability of
	// the box zero, added to its capacitance.
	Definition gum.Quantity
}

// MainZero derives the all-dials-zero value of a two-terminal capacitance
// box: the box zero on the main range minus the copper zero measured with the
// box removed. It returns the index of the box zero in values so that the
// caller can report the main zero in its place.
func MainZero(values []Value, opts MainZeroOptions) (Corrected, int, error) {
	boxLabel := cmp.Or(opts.BoxLabel, BoxZeroLabel)
	cuLabel := cmp.Or(opts.CopperLabel, CopperZeroLabel)
	rng := cmp.Or(opts.Range, "6Y")

	box, cu := -1, -1
	for i, v := range values {
		switch {
		case v.Item.Label == boxLabel && v.Item.Range == rng:
			if box >= 0 {
				return Corrected{}, 0, fmt.Errorf("%w: %q on %s in rows %d and %d", ErrAmbiguousZero, boxLabel, rng, values[box].Item.Row, v.Item.Row)
			}
			box = i
		case v.Item.Label == cuLabel:
			if cu >= 0 {
				return Corrected{}, 0, fmt.Errorf("%w: %q in rows %d and %d", ErrAmbiguousZero, cuLabel, values[cu].Item.Row, v.Item.Row)
			}
			cu = i
		}
	}
	if box < 0 {
		return Corrected{}, 0, fmt.Errorf("%w: no %q on range %s", ErrMissingZero, boxLabel, rng)
	}
	if cu < 0 {
		return Corrected{}, 0, fmt.Errorf("%w: no %q", ErrMissingZero, cuLabel)
	}

	b, z := values[box], values[cu]
	g := b.Real.Sub(z.Real)
	cx := b.Reactive.Add(opts.Definition).Sub(z.Reactive)
	td, err := tanDelta(b, g, cx)
	if err != nil {
		return Corrected{}, 0, err
	}
	return Corrected{Real: g, Reactive: cx, TanDelta: td, HasTanDelta: true}, box, nil
}

func isAdmittance(v Value) bool {
	return len(v.Item.Range) == 2 && v.Item.Range[1] == 'Y'
}

func nominalOmega(v Value) (float64, error) {
	f, err := v.Item.NominalHz()
	if err != nil {
		return 0, itemErr(v.Item, err)
	}
	return 2 * math.Pi * f, nil
}

// tanDelta returns G/(ωC) at the nominal frequency of v, or an exact zero when
// the corrected capacitance is exactly zero.
func tanDelta(v Value, g, c gum.Quantity) (gum.Quantity, error) {
	if c.Value() == 0 {
		return gum.Constant(0), nil
	}
	omega, err := nominalOmega(v)
	if err != nil {
		return gum.Quantity{}, err
	}
	td, err := g.Div(c.Scale(omega))
	if err != nil {
		return gum.Quantity{}, itemErr(v.Item, err)
	}
	return td, nil
}
