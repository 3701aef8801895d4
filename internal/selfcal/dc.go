package selfcal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/gum"
)

var (
	// ErrMissingReading is returned when a table lacks a reading the
	// calculation needs.
	ErrMissingReading = errors.New("missing reading")
	// ErrMalformedRow is returned for a reading row that cannot be parsed.
	ErrMalformedRow = errors.New("malformed reading row")
)

// Reading names of the DC tables, as entered on the measurement sheet. The
// SR104 is the 10 kΩ reference, the Hamon box (e*) is read in parallel (p),
// series-parallel (sp) and series (s); the 10th resistor (r10) is read on its
// own for the series-parallel correction.
const (
	keySR104At20   = "true_sr104_20"
	keySR104Sense  = "sens_sr104"
	keySR104       = "sr104"
	keyHamonP100k  = "ep_100k"
	keyHamonSP100k = "esp_100k"
	keyHamonR10    = "er10_100k"
	keyHamonS100k  = "es_100k"
)

// Named is a derived DC value.
type Named struct {
	Name     string
	Quantity gum.Quantity
}

// DC is the result of the DC build-up.
type DC struct {
	// Values holds every derived value in build-up order.
	Values []Named
	// Standards holds the DC values in ohm of R4A, R4B, R4C, G1 and G2.
	Standards map[string]gum.Quantity

	sr104At20 gum.Quantity
	meter100k gum.Quantity
}

func (d *DC) add(name string, q gum.Quantity) gum.Quantity {
	d.Values = append(d.Values, Named{Name: name, Quantity: q})
	return q
}

// Get returns a derived value by name.
func (d *DC) Get(name string) (gum.Quantity, bool) {
	for _, v := range d.Values {
		if v.Name == name {
			return v.Quantity, true
		}
	}
	return gum.Quantity{}, false
}

// MeterCorrection is the correction to add to a meter reading, given the
// true value of the resistor read.
func MeterCorrection(trueValue, reading gum.Quantity) gum.Quantity {
	return trueValue.Sub(reading)
}

// SR104Correction returns the change (ohm) of the SR104 from its 20 °C value
// at the temperature given by its sense resistor.
func SR104Correction(sense gum.Quantity) gum.Quantity {
	dt := sense.Scale(9.99999228000003e-2).Shift(-977 - 20)
	// α = 0.342 ppm/K and β = -0.027 ppm/K² from the lid of the SR104
	return dt.Scale(0.342).Sub(dt.Mul(dt).Scale(0.027)).Scale(1e4 * 1e-6)
}

// SeriesParallel returns the true series-parallel value of a Hamon box from
// the true value of all ten resistors in parallel, the series-parallel reading
// with nine resistors and the reading of the tenth on the same meter range.
func SeriesParallel(parallel, seriesParallel, tenth gum.Quantity) gum.Quantity {
	return parallel.Scale(10).Add(seriesParallel.Sub(tenth).Scale(0.1))
}

// dcTable holds the readings of one DC table by name. Lookups of missing
// names are collected and reported together by err.
type dcTable struct {
	name    string
	values  map[string]gum.Quantity
	missing []string
}

// parseDCTable reads rows of name, value, uncertainty, dof. Every value is a
// leaf labelled with its name, suffixed when the name is already in use.
func parseDCTable(ctx *gum.Context, name string, rows [][]string) (*dcTable, error) {
	t := &dcTable{name: name, values: make(map[string]gum.Quantity, len(rows))}
	for i, row := range rows {
		if dataset.IsBlank(row) {
			continue
		}
		if len(row) < 4 || row[0] == "" {
			return nil, fmt.Errorf("%s row %d: %w: need name, value, uncertainty and dof", name, i+1, ErrMalformedRow)
		}
		nums, err := parseFloats(row[1:4])
		if err != nil {
			return nil, fmt.Errorf("%s row %d %q: %w", name, i+1, row[0], err)
		}
		q, err := ctx.Unique(nums[0], nums[1], nums[2], row[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		t.values[row[0]] = q
	}
	return t, nil
}

func (t *dcTable) get(key string) gum.Quantity {
	q, ok := t.values[key]
	if !ok {
		t.missing = append(t.missing, key)
	}
	return q
}

func (t *dcTable) err() error {
	if len(t.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w in %s: %s", ErrMissingReading, t.name, strings.Join(t.missing, ", "))
}

func parseFloats(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrMalformedRow, c)
		}
		out[i] = v
	}
	return out, nil
}

// buildUp derives the DC values of the internal standards from the SR104 at
// 10 kΩ, stepping to 100 kΩ and 1 MΩ with the Hamon box.
func buildUp(a *dcTable) (*DC, error) {
	dc := &DC{Standards: make(map[string]gum.Quantity, 5)}
	dc.sr104At20 = a.get(keySR104At20)

	sr104 := dc.add("true_sr104_t", dc.sr104At20.Add(SR104Correction(a.get(keySR104Sense))))
	meter10k := MeterCorrection(sr104, a.get(keySR104))
	ep100k := dc.add("true_ep_100k", a.get(keyHamonP100k).Add(meter10k))
	esp100k := dc.add("true_esp_100k", SeriesParallel(ep100k, a.get(keyHamonSP100k), a.get(keyHamonR10)))
	dc.meter100k = MeterCorrection(esp100k, a.get(keyHamonSP100k))
	// the Hamon series/parallel ratio is taken as exactly 100
	es100k := dc.add("true_es_100k", ep100k.Scale(100))
	meter1M := MeterCorrection(es100k, a.get(keyHamonS100k))

	for _, s := range []struct {
		name, key  string
		correction gum.Quantity
	}{
		{bridge.G1, "g1", dc.meter100k},
		{bridge.G2, "g2", dc.meter100k},
		{bridge.R4A, "r4a", meter10k},
		{bridge.R4B, "r4b", dc.meter100k},
		{bridge.R4C, "r4c", meter1M},
	} {
		dc.Standards[s.name] = dc.add("true_"+s.key, a.get(s.key).Add(s.correction))
	}
	return dc, a.err()
}

// externalSet adds the DC values of the external resistors of tables b and
// c. Table b steps down from 10 kΩ to 10 Ω, table c up to 1 MΩ.
func (d *DC) externalSet(b, c *dcTable) error {
	sr104b := d.add("true_sr104b_t", d.sr104At20.Add(SR104Correction(b.get("sens_sr104b"))))
	meter10k := MeterCorrection(sr104b, b.get("sr104b"))

	es1k := d.add("true_es_1k", b.get("es_1k").Add(meter10k))
	esp1k := d.add("true_esp_1k", SeriesParallel(es1k.Scale(0.01), b.get("esp_1k"), b.get("er10_1k")))
	meter1k := MeterCorrection(esp1k, b.get("esp_1k"))
	d.add("true_er1_1k", b.get("er1_1k").Add(meter1k))
	es100 := d.add("true_es_100", b.get("es_100").Add(meter1k))
	ep1k := d.add("true_ep_1k", es1k.Scale(0.01))
	ep100 := d.add("true_ep_100", es100.Scale(0.01))
	meter100 := MeterCorrection(ep1k, b.get("ep_1k"))
	d.add("true_er1_100", b.get("er1_100").Add(meter100))
	meter10 := MeterCorrection(ep100, b.get("ep_100"))
	d.add("true_er1_10", b.get("er1_10").Add(meter10))
	d.add("true_es_10", b.get("es_10").Add(meter100))
	d.add("true_v_100k", b.get("v_100k").Add(d.meter100k))
	d.add("true_v_10k", b.get("v_10k").Add(meter10k))
	d.add("true_v_100", b.get("v_100").Add(meter100))
	if err := b.err(); err != nil {
		return err
	}
	if c == nil {
		return nil
	}

	sr104c := d.add("true_sr104c_t", d.sr104At20.Add(SR104Correction(c.get("sens_sr104c"))))
	meter10kc := MeterCorrection(sr104c, c.get("sr104c"))
	epc100k := d.add("true_epc_100k", c.get(keyHamonP100k).Add(meter10kc))
	esc100k := d.add("true_esc_100k", epc100k.Scale(100))
	meter1M := MeterCorrection(esc100k, c.get(keyHamonS100k))
	d.add("true_v_1M", c.get("v_1M").Add(meter1M))
	return c.err()
}
