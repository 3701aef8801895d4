package bridge

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned for a range identifier outside 1Z..7Z, 1Y..7Y.
var ErrInvalidRange = errors.New("invalid bridge range")

// Mode is the bridge configuration selected by the second character of a range.
type Mode byte

const (
	Impedance  Mode = 'Z'
	Admittance Mode = 'Y'
)

func (m Mode) String() string {
	switch m {
	case Impedance:
		return "impedance"
	case Admittance:
		return "admittance"
	}
	return fmt.Sprintf("Mode(%q)", byte(m))
}

// Decades is the number of positions of the range switch.
const Decades = 7

// Range is one setting of the range switch combined with the Z/Y configuration,
// written "4Z" or "6Y".
type Range struct {
	Decade int
	Mode   Mode
}

// ParseRange parses a two character range identifier.
func ParseRange(s string) (Range, error) {
	if len(s) != 2 {
		return Range{}, fmt.Errorf("%w %q: want two characters such as 5Z or 3Y", ErrInvalidRange, s)
	}
	if s[0] < '1' || s[0] > '0'+Decades {
		return Range{}, fmt.Errorf("%w %q: decade must be 1 to %d", ErrInvalidRange, s, Decades)
	}
	m := Mode(s[1])
	if m != Impedance && m != Admittance {
		return Range{}, fmt.Errorf("%w %q: configuration must be Z or Y", ErrInvalidRange, s)
	}
	return Range{Decade: int(s[0] - '0'), Mode: m}, nil
}

// MustParseRange is like ParseRange but panics on error. For constants and tests.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Range) String() string {
	return fmt.Sprintf("%d%c", r.Decade, r.Mode)
}

func (r Range) valid() bool {
	return r.Decade >= 1 && r.Decade <= Decades && (r.Mode == Impedance || r.Mode == Admittance)
}

// IsImpedance reports whether the range reads series R and L.
func (r Range) IsImpedance() bool { return r.Mode == Impedance }

// AvailableRanges lists every range, impedance first.
func AvailableRanges() []Range {
	out := make([]Range, 0, 2*Decades)
	for _, m := range []Mode{Impedance, Admittance} {
		for d := 1; d <= Decades; d++ {
			out = append(out, Range{Decade: d, Mode: m})
		}
	}
	return out
}

// Per-count dial multipliers, indexed by decade-1.
var (
	reactiveScaleZ  = [Decades]float64{1e-10, 1e-9, 1e-8, 1e-7, 1e-6, 1e-5, 1e-4}
	reactiveScaleY  = [Decades]float64{1e-10, 1e-11, 1e-12, 1e-13, 1e-14, 1e-15, 1e-16}
	resistiveScaleZ = [Decades]float64{1e-7, 1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1}
	resistiveScaleY = [Decades]float64{1e-7, 1e-8, 1e-9, 1e-10, 1e-11, 1e-12, 1e-13}
)

// UnitScale returns the value of one count of the reactance dial (H or F) and
// of the resistance dial (ohm or S) on r, as marked on the bridge.
func UnitScale(r Range) (reactive, resistive float64, err error) {
	if !r.valid() {
		return 0, 0, fmt.Errorf("%w %v", ErrInvalidRange, r)
	}
	i := r.Decade - 1
	if r.IsImpedance() {
		return reactiveScaleZ[i], resistiveScaleZ[i], nil
	}
	return reactiveScaleY[i], resistiveScaleY[i], nil
}

// FullScale returns the nameplate full-scale values of r: inductance and
// resistance on Z ranges, capacitance and conductance on Y ranges.
func FullScale(r Range) (reactive, resistive float64, err error) {
	x, res, err := UnitScale(r)
	if err != nil {
		return 0, 0, err
	}
	return x * ReactanceDialMax, res * ResistanceDialMax, nil
}

// Units returns the unit symbols of the reactive and resistive parts on r.
func Units(r Range) (reactive, resistive string) {
	if r.IsImpedance() {
		return "H", "ohm"
	}
	return "F", "S"
}

// transformerRatio is the ratio of the range transformer for a decade.
func transformerRatio(decade int) float64 {
	switch decade {
	case 1:
		return 1e4
	case 2:
		return 1e3
	case 3:
		return 1e2
	case 4:
		return 1e1
	}
	return 1
}
