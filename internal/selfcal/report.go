package selfcal

// ReportRows lays the result out as the human readable report sheet: one
// titled section per stage, separated by an empty row.
func (r *Result) ReportRows() [][]any {
	var rows [][]any
	section := func(title string, header ...any) {
		if len(rows) > 0 {
			rows = append(rows, []any{""})
		}
		rows = append(rows, []any{title}, header)
	}

	section("DC calibration of resistors", "Name", "Value", "Uncertainty")
	rows = append(rows, []any{"", "ohm", "ohm"})
	for _, v := range r.DC.Values {
		rows = append(rows, []any{v.Name, v.Quantity.Value(), v.Quantity.Uncertainty()})
	}

	section("Calibration constants", "Key", "Offset", "Uncertainty")
	for _, c := range r.Constants {
		rows = append(rows, []any{c.Key, c.Offset.Value(), c.Offset.Uncertainty()})
	}

	if len(r.Phases) > 0 {
		section("Phase angle corrections from Thompson set", "Label", "Range", "Freq/Hz", "F", "H", "ppm C", "ppm L")
		for _, p := range r.Phases {
			rows = append(rows, []any{p.Label, p.Decade, p.Frequency, p.Capacitance, p.Inductance, p.CapacitancePPM, p.InductancePPM})
		}
	}

	if len(r.Gains) > 0 {
		section("Gain Factor", "Label", "Range", "prod / ppm", "factor / ppm", "Freq / Hz")
		for _, g := range r.Gains {
			rows = append(rows, []any{g.Label, g.Decade, g.ProductPPM, g.FactorPPM, g.Frequency})
		}
	}

	if len(r.Resistors) > 0 {
		section("UB measured values", "Label", "G / siemen", "R / ohm")
		for _, c := range r.Resistors {
			rows = append(rows, []any{c.Label, c.Admittance.Real().Value(), c.Impedance.Real().Value()})
		}
	}

	if len(r.Inductors) > 0 {
		section("Inductor set", "Label", "Range", "L / henry", "R / ohm")
		for _, c := range r.Inductors {
			rows = append(rows, []any{c.Label, c.Range.String(), c.Reactive.Value(), c.Real.Value()})
		}
	}

	if len(r.Capacitors) > 0 {
		section("Capacitor set", "Label", "Range", "C / farad", "G / siemen")
		for _, c := range r.Capacitors {
			rows = append(rows, []any{c.Label, c.Range.String(), c.Reactive.Value(), c.Real.Value()})
		}
	}
	return rows
}
