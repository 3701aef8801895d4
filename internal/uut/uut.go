// Package uut turns a block of bridge readings of a unit under test into
// corrected values: temperature coefficient corrections, fixture zero
// subtraction, tan δ and the comparison with the bridge CMC.
package uut

import (
	"fmt"
	"math"
	"slices"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
)

// Labels of the zero reference items.
const (
	CoaxZeroLabel   = "coax zero"
	BoxZeroLabel    = "box_zero"
	CopperZeroLabel = "CuZero"
)

// DefaultZeroLabels are the item labels that are references rather than units.
var DefaultZeroLabels = []string{CoaxZeroLabel, BoxZeroLabel, CopperZeroLabel}

// Value is the bridge result of one item, split into the resistive part (R or
// G) and the reactive part (L or C).
type Value struct {
	Item     models.Item
	Real     gum.Quantity
	Reactive gum.Quantity
	// Zero is set for reference items, which get no UUT corrections.
	Zero bool
}

// Processor evaluates a measurement set on one bridge model.
type Processor struct {
	bridge     *bridge.Model
	ambient    gum.Quantity
	resolution bool
	zeroLabels []string
}

// Option configures a Processor.
type Option func(*Processor)

// WithAmbient sets the room temperature the UUT temperature is referred to.
// It defaults to the bridge model temperature.
func WithAmbient(t gum.Quantity) Option {
	return func(p *Processor) { p.ambient = t }
}

// WithResolution turns the dial resolution term on or off. It is on by default.
func WithResolution(on bool) Option {
	return func(p *Processor) { p.resolution = on }
}

// WithZeroLabels replaces DefaultZeroLabels.
func WithZeroLabels(labels ...string) Option {
	return func(p *Processor) { p.zeroLabels = labels }
}

// New returns a Processor for m.
func New(m *bridge.Model, opts ...Option) *Processor {
	p := &Processor{
		bridge:     m,
		ambient:    m.Temperature(),
		resolution: true,
		zeroLabels: DefaultZeroLabels,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsZero reports whether label names a zero reference.
func (p *Processor) IsZero(label string) bool {
	return slices.Contains(p.zeroLabels, label)
}

func itemErr(it models.Item, err error) error {
	return fmt.Errorf("row %d item %q (%s Hz, %s): %w", it.Row, it.Label, it.NominalFrequency, it.Range, err)
}

// CalculateValues evaluates every item on the bridge. The result of each item
// is labelled with its Key. For units the resistive part is multiplied by
// 1 + rtempco·(T − ambient) and the reactance, converted to L or C, by
// 1 + xtempco·(T − ambient), both products kept to second order.
func (p *Processor) CalculateValues(items []models.Item) ([]Value, error) {
	ctx := p.bridge.Context()
	out := make([]Value, 0, len(items))
	for _, it := range items {
		rd, err := it.Reading(p.resolution)
		if err != nil {
			return nil, itemErr(it, err)
		}
		z, err := p.bridge.Value(rd, bridge.WithLabel(it.Key()))
		if err != nil {
			return nil, itemErr(it, err)
		}
		v := Value{
			Item:     it,
			Real:     z.Real(),
			Reactive: z.Imag().Scale(1 / (2 * math.Pi * rd.Frequency)),
			Zero:     p.IsZero(it.Label),
		}
		if !v.Zero {
			if err := p.correctTemperature(ctx, &v); err != nil {
				return nil, itemErr(it, err)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Processor) correctTemperature(ctx *gum.Context, v *Value) error {
	it := v.Item
	temp, err := ctx.Unique(it.Temperature, it.TemperatureU, it.TemperatureDOF, "uuttemp"+it.Label)
	if err != nil {
		return err
	}
	rtc, err := ctx.Unique(it.ResistiveTempco, it.ResistiveTempcoU, it.ResistiveTempcoDOF, "rtempco"+it.Label)
	if err != nil {
		return err
	}
	xtc, err := ctx.Unique(it.ReactiveTempco, it.ReactiveTempcoU, it.ReactiveTempcoDOF, "xtempco"+it.Label)
	if err != nil {
		return err
	}
	dt := temp.Sub(p.ambient)
	v.Real = v.Real.Mul(rtc.Mul2(dt).Shift(1))
	v.Reactive = v.Reactive.Mul(xtc.Mul2(dt).Shift(1))
	return nil
}

// CMCCheck returns the declared CMC for every item.
func (p *Processor) CMCCheck(items []models.Item) ([]bridge.CMC, error) {
	out := make([]bridge.CMC, 0, len(items))
	for _, it := range items {
		rd, err := it.Reading(false)
		if err != nil {
			return nil, itemErr(it, err)
		}
		c, err := p.bridge.CMCUncert(rd)
		if err != nil {
			return nil, itemErr(it, err)
		}
		out = append(out, c)
	}
	return out, nil
}
