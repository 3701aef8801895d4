// Package selfcal calibrates the universal bridge itself. The internal
// standards are measured at DC against the SR104 with a Hamon box build-up,
// the phase defect of each range is found with Thompson standards of known
// time constant, and the ratio error with resistors read in both modes. The
// new DC values update the calibration table used by the bridge model, which
// is then checked against an external set of resistors, inductors and
// capacitors.
package selfcal

import (
	"cmp"
	"fmt"
	"math"
	"strings"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/calstore"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
)

// Result holds everything a self-calibration derives.
type Result struct {
	DC        *DC
	Constants []Constant
	// Calibration is the calibration table with the new constants applied.
	Calibration [][]any

	Phases     []Phase
	Gains      []Gain
	Resistors  []ResistorCheck
	Inductors  []ReactiveCheck
	Capacitors []ReactiveCheck
}

// Constant is the relative offset of an internal standard from its nominal
// value, the way the calibration table stores it.
type Constant struct {
	Key    string
	Offset gum.Quantity
}

// ResistorCheck is an external resistor evaluated on the recalibrated bridge
// in both modes.
type ResistorCheck struct {
	Label      string
	Admittance gum.Complex
	Impedance  gum.Complex
}

// ReactiveCheck is an inductor (L, R) or capacitor (C, G) evaluated on the
// recalibrated bridge.
type ReactiveCheck struct {
	Label    string
	Range    bridge.Range
	Reactive gum.Quantity
	Real     gum.Quantity
}

// ConstantKeys lists the standards whose DC values are calibrated.
var ConstantKeys = []string{bridge.R4A, bridge.R4B, bridge.R4C, bridge.G1, bridge.G2}

// Constants converts DC values (ohm) to offsets. G1 and G2 are conductance
// standards, so their offset is taken on 1/R.
func Constants(standards map[string]gum.Quantity) ([]Constant, error) {
	out := make([]Constant, 0, len(ConstantKeys))
	for _, key := range ConstantKeys {
		q, ok := standards[key]
		if !ok {
			return nil, fmt.Errorf("%w: DC value of %s", ErrMissingReading, key)
		}
		if key == bridge.G1 || key == bridge.G2 {
			var err error
			if q, err = q.Inv(); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		nom, _ := bridge.NominalValue(key)
		out = append(out, Constant{Key: key, Offset: q.Scale(1 / nom).Shift(-1)})
	}
	return out, nil
}

// UpdateCalibration returns the calibration table rows with the static offsets
// of consts replaced. Labels are kept; a key the table lacks is appended.
func UpdateCalibration(rows [][]string, consts []Constant) [][]any {
	pending := make(map[string]gum.Quantity, len(consts))
	for _, c := range consts {
		pending[c.Key] = c.Offset
	}

	out := make([][]any, 0, len(rows)+len(consts))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		if i >= calstore.HeaderRows && len(row) >= 2 && strings.TrimSpace(row[0]) == string(calstore.Static) {
			key := strings.TrimSpace(row[1])
			if q, ok := pending[key]; ok {
				label := key + "_cal"
				if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
					label = row[5]
				}
				cells = constantRow(key, q, label)
				delete(pending, key)
			}
		}
		out = append(out, cells)
	}
	for _, c := range consts {
		if q, ok := pending[c.Key]; ok {
			out = append(out, constantRow(c.Key, q, c.Key+"_cal"))
		}
	}
	return out
}

func constantRow(key string, q gum.Quantity, label string) []any {
	dof := q.DOF()
	if q.Uncertainty() == 0 || math.IsNaN(dof) {
		dof = math.Inf(1)
	}
	return []any{string(calstore.Static), key, q.Value(), q.Uncertainty(), dof, label}
}

// Run carries out the self-calibration described by plan. Readings come from
// in; calRows is the calibration table the new constants are applied to, and
// the recalibrated bridge is evaluated at ambient.
func Run(plan *Plan, in dataset.BlockReader, calRows [][]string, ambient models.UncertainValue) (*Result, error) {
	ctx := gum.NewContext()
	read := func(name string, d []int) ([][]string, error) {
		b, err := dataset.BlockFromSlice(d)
		if err != nil {
			return nil, fmt.Errorf("blocks.%s: %w", name, err)
		}
		rows, err := in.ReadBlock(plan.Sheet, b)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return rows, nil
	}
	readDC := func(name string, d []int) (*dcTable, error) {
		rows, err := read(name, d)
		if err != nil {
			return nil, err
		}
		return parseDCTable(ctx, name, rows)
	}

	a, err := readDC("dc_a", plan.Blocks.DCA)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if res.DC, err = buildUp(a); err != nil {
		return nil, err
	}
	if plan.Blocks.DCB != nil {
		b, err := readDC("dc_b", plan.Blocks.DCB)
		if err != nil {
			return nil, err
		}
		var c *dcTable
		if plan.Blocks.DCC != nil {
			if c, err = readDC("dc_c", plan.Blocks.DCC); err != nil {
				return nil, err
			}
		}
		if err := res.DC.externalSet(b, c); err != nil {
			return nil, err
		}
	}

	if res.Constants, err = Constants(res.DC.Standards); err != nil {
		return nil, err
	}
	res.Calibration = UpdateCalibration(calRows, res.Constants)

	if len(plan.Thompson) > 0 {
		if res.Phases, err = phases(plan, read); err != nil {
			return nil, err
		}
	}

	if plan.Blocks.Resistors != nil {
		rows, err := read("resistors", plan.Blocks.Resistors)
		if err != nil {
			return nil, err
		}
		resistors, err := parseResistors("resistors", rows)
		if err != nil {
			return nil, err
		}
		if plan.Blocks.ResistorZeros != nil {
			zrows, err := read("resistor_zeros", plan.Blocks.ResistorZeros)
			if err != nil {
				return nil, err
			}
			zeros, err := parseResistors("resistor_zeros", zrows)
			if err != nil {
				return nil, err
			}
			if err := subtractResistorZeros(resistors, zeros); err != nil {
				return nil, err
			}
		}
		g1 := res.DC.Standards[bridge.G1].Value()
		g2 := res.DC.Standards[bridge.G2].Value()
		g1g2 := (g1/g2 - 1) * 1e6
		for _, r := range resistors {
			g, err := GainFactor(r.label, r.y, r.z, r.decade, r.frequency, g1g2)
			if err != nil {
				return nil, err
			}
			res.Gains = append(res.Gains, g)
		}
		m, err := checkBridge(res.Calibration, ambient)
		if err != nil {
			return nil, err
		}
		if res.Resistors, err = checkResistors(m, resistors); err != nil {
			return nil, err
		}
	}

	for _, set := range []struct {
		name  string
		block []int
		out   *[]ReactiveCheck
	}{
		{"inductors", plan.Blocks.Inductors, &res.Inductors},
		{"capacitors", plan.Blocks.Capacitors, &res.Capacitors},
	} {
		if set.block == nil {
			continue
		}
		rows, err := read(set.name, set.block)
		if err != nil {
			return nil, err
		}
		items, err := parseReactive(set.name, rows)
		if err != nil {
			return nil, err
		}
		m, err := checkBridge(res.Calibration, ambient)
		if err != nil {
			return nil, err
		}
		if *set.out, err = checkReactive(m, items); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func phases(plan *Plan, read func(string, []int) ([][]string, error)) ([]Phase, error) {
	zrows, err := read("zeros", plan.Blocks.Zeros)
	if err != nil {
		return nil, err
	}
	zeros := make(map[string]Dials, len(zrows))
	for i, row := range nonBlank(zrows) {
		nums, err := cells(row, 3)
		if err != nil {
			return nil, fmt.Errorf("zeros row %d: %w", i+1, err)
		}
		zeros[row[0]] = Dials{A: nums[0], B: nums[1]}
	}

	trows, err := read("thompson", plan.Blocks.Thompson)
	if err != nil {
		return nil, err
	}
	readings := make(map[string]ThompsonReading, len(trows))
	for i, row := range nonBlank(trows) {
		nums, err := cells(row, 4)
		if err != nil {
			return nil, fmt.Errorf("thompson row %d: %w", i+1, err)
		}
		readings[row[0]] = ThompsonReading{Dials: Dials{A: nums[0], B: nums[1]}, CapacitancePF: nums[2]}
	}

	out := make([]Phase, 0, len(plan.Thompson))
	for _, t := range plan.Thompson {
		z, okZ := readings[t.Z]
		y, okY := readings[t.Y]
		zz, okZZ := zeros[t.ZZero]
		yz, okYZ := zeros[t.YZero]
		if !okZ || !okY || !okZZ || !okYZ {
			return nil, fmt.Errorf("%w for thompson %s: need %s, %s, %s and %s",
				ErrMissingReading, t.Label, t.Z, t.Y, t.ZZero, t.YZero)
		}
		p, err := PhaseError(t.Label, z, y, zz, yz, t.Frequency, t.Decade)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// checkBridge builds a bridge model from the updated calibration table in a
// context of its own: the table stores numbers, so the check carries no
// correlation with the DC build-up.
func checkBridge(calibration [][]any, ambient models.UncertainValue) (*bridge.Model, error) {
	rows := make([][]string, len(calibration))
	for i, row := range calibration {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = dataset.FormatCell(v)
		}
	}
	ctx := gum.NewContext()
	set, err := calstore.Parse(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("updated calibration: %w", err)
	}
	temp, err := ctx.Leaf(ambient.Value, ambient.Uncertainty, ambient.DOF, cmp.Or(ambient.Label, "temperature"))
	if err != nil {
		return nil, fmt.Errorf("ambient temperature: %w", err)
	}
	return bridge.New(ctx, set, temp)
}

type resistorRow struct {
	label     string
	y, z      Dials
	decade    int
	frequency float64
}

// parseResistors reads rows of name, Y a, Y b, Z a, Z b, decade, frequency.
func parseResistors(name string, rows [][]string) ([]resistorRow, error) {
	var out []resistorRow
	for i, row := range nonBlank(rows) {
		nums, err := cells(row, 7)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		out = append(out, resistorRow{
			label:     row[0],
			y:         Dials{A: nums[0], B: nums[1]},
			z:         Dials{A: nums[2], B: nums[3]},
			decade:    int(nums[4]),
			frequency: nums[5],
		})
	}
	return out, nil
}

func subtractResistorZeros(rows, zeros []resistorRow) error {
	byLabel := make(map[string]resistorRow, len(zeros))
	for _, z := range zeros {
		byLabel[z.label] = z
	}
	for i, r := range rows {
		z, ok := byLabel[r.label]
		if !ok {
			return fmt.Errorf("%w: no zero for resistor %s", ErrMissingReading, r.label)
		}
		rows[i].y = r.y.Sub(z.y)
		rows[i].z = r.z.Sub(z.z)
	}
	return nil
}

func checkResistors(m *bridge.Model, rows []resistorRow) ([]ResistorCheck, error) {
	out := make([]ResistorCheck, 0, len(rows))
	for _, r := range rows {
		y, err := evaluate(m, bridge.Range{Decade: r.decade, Mode: bridge.Admittance}, r.y, r.frequency)
		if err != nil {
			return nil, fmt.Errorf("resistor %s: %w", r.label, err)
		}
		z, err := evaluate(m, bridge.Range{Decade: r.decade, Mode: bridge.Impedance}, r.z, r.frequency)
		if err != nil {
			return nil, fmt.Errorf("resistor %s: %w", r.label, err)
		}
		out = append(out, ResistorCheck{Label: r.label, Admittance: y, Impedance: z})
	}
	return out, nil
}

type reactiveRow struct {
	label     string
	dials     Dials
	rng       bridge.Range
	frequency float64
}

// parseReactive reads rows of name, a, b, zero a, zero b, range, frequency.
func parseReactive(name string, rows [][]string) ([]reactiveRow, error) {
	var out []reactiveRow
	for i, row := range nonBlank(rows) {
		if len(row) < 7 {
			return nil, fmt.Errorf("%s row %d: %w: need 7 cells, got %d", name, i+1, ErrMalformedRow, len(row))
		}
		rng, err := bridge.ParseRange(strings.ToUpper(strings.TrimSpace(row[5])))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		nums, err := parseFloats([]string{row[1], row[2], row[3], row[4], row[6]})
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		d := Dials{A: nums[0], B: nums[1]}
		out = append(out, reactiveRow{
			label:     row[0],
			dials:     d.Sub(Dials{A: nums[2], B: nums[3]}),
			rng:       rng,
			frequency: nums[4],
		})
	}
	return out, nil
}

func checkReactive(m *bridge.Model, rows []reactiveRow) ([]ReactiveCheck, error) {
	out := make([]ReactiveCheck, 0, len(rows))
	for _, r := range rows {
		v, err := evaluate(m, r.rng, r.dials, r.frequency)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.label, err)
		}
		out = append(out, ReactiveCheck{
			Label:    r.label,
			Range:    r.rng,
			Reactive: v.Imag().Scale(1 / (2 * math.Pi * r.frequency)),
			Real:     v.Real(),
		})
	}
	return out, nil
}

func evaluate(m *bridge.Model, rng bridge.Range, d Dials, f float64) (gum.Complex, error) {
	x, r := d.Counts()
	return m.Value(bridge.Reading{Range: rng, Resistance: r, Reactance: x, Frequency: f, Resolution: true})
}

// nonBlank yields the rows that carry a name, with their position in the block.
func nonBlank(rows [][]string) func(yield func(int, []string) bool) {
	return func(yield func(int, []string) bool) {
		for i, row := range rows {
			if dataset.IsBlank(row) {
				continue
			}
			if !yield(i, row) {
				return
			}
		}
	}
}

// cells parses a row of a name followed by n-1 numbers.
func cells(row []string, n int) ([]float64, error) {
	if len(row) < n || strings.TrimSpace(row[0]) == "" {
		return nil, fmt.Errorf("%w: need a name and %d numbers", ErrMalformedRow, n-1)
	}
	return parseFloats(row[1:n])
}
