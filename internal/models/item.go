package models

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/dial"
)

// ItemColumns is the column order of a measurement block.
var ItemColumns = []string{
	"item", "nom_freq", "ubrange", "xdial", "rdial", "frequency",
	"temperature", "tempu", "tempdf",
	"uuttempcox", "uuttempcoxu", "uuttempcoxdf",
	"uuttempcor", "uuttempcoru", "uuttempcordf",
}

// Item is one bridge reading of a unit under test, or of a zero reference.
type Item struct {
	Label string `mapstructure:"item" json:"item"`
	// NominalFrequency is kept as entered; together with Label and Range it
	// names the result and matches zeros to items.
	NominalFrequency string `mapstructure:"nom_freq" json:"nom_freq"`
	Range            string `mapstructure:"ubrange" json:"ubrange"`
	// Dials are a plain count or a dial-by-dial entry such as -1X3x-16.
	ReactanceDial  string  `mapstructure:"xdial" json:"xdial"`
	ResistanceDial string  `mapstructure:"rdial" json:"rdial"`
	Frequency      float64 `mapstructure:"frequency" json:"frequency"`

	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
	TemperatureU   float64 `mapstructure:"tempu" json:"tempu"`
	TemperatureDOF float64 `mapstructure:"tempdf" json:"tempdf"`

	ReactiveTempco    float64 `mapstructure:"uuttempcox" json:"uuttempcox"`
	ReactiveTempcoU   float64 `mapstructure:"uuttempcoxu" json:"uuttempcoxu"`
	ReactiveTempcoDOF float64 `mapstructure:"uuttempcoxdf" json:"uuttempcoxdf"`

	ResistiveTempco    float64 `mapstructure:"uuttempcor" json:"uuttempcor"`
	ResistiveTempcoU   float64 `mapstructure:"uuttempcoru" json:"uuttempcoru"`
	ResistiveTempcoDOF float64 `mapstructure:"uuttempcordf" json:"uuttempcordf"`

	// Row is the 1-based position of the item in its block.
	Row int `mapstructure:"-" json:"row"`
	// Cells holds the row as read, for echoing into the report.
	Cells []string `mapstructure:"-" json:"-"`
}

// Key names the bridge result of the item: label, nominal frequency and
// range run together, so L1 at 1000 on 5Z becomes "L110005Z".
func (it Item) Key() string {
	return it.Label + it.NominalFrequency + it.Range
}

// NominalHz parses the nominal frequency.
func (it Item) NominalHz() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(it.NominalFrequency), 64)
	if err != nil {
		return 0, fmt.Errorf("item %q: nominal frequency %q is not a number", it.Label, it.NominalFrequency)
	}
	return f, nil
}

// Reading converts the dial columns to a bridge reading.
func (it Item) Reading(resolution bool) (bridge.Reading, error) {
	rng, err := bridge.ParseRange(strings.TrimSpace(it.Range))
	if err != nil {
		return bridge.Reading{}, err
	}
	a, err := dialCount(it.ResistanceDial, dial.ResistanceDials)
	if err != nil {
		return bridge.Reading{}, fmt.Errorf("rdial: %w", err)
	}
	b, err := dialCount(it.ReactanceDial, dial.ReactanceDials)
	if err != nil {
		return bridge.Reading{}, fmt.Errorf("xdial: %w", err)
	}
	return bridge.Reading{
		Range:      rng,
		Resistance: a,
		Reactance:  b,
		Frequency:  it.Frequency,
		Resolution: resolution,
	}, nil
}

func dialCount(cell string, p dial.Pattern) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %q is not a whole dial count", dial.ErrInvalidSetting, cell)
		}
		return int(v), nil
	}
	s, err := p.Parse(cell)
	if err != nil {
		return 0, err
	}
	return s.Count(), nil
}

// DecodeItems decodes the rows of a measurement block. Blank rows are
// skipped; numeric columns left empty read as zero.
func DecodeItems(rows [][]string) ([]Item, error) {
	items := make([]Item, 0, len(rows))
	for i, cells := range rows {
		if dataset.IsBlank(cells) {
			continue
		}
		var it Item
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       trimSpaceHook,
			WeaklyTypedInput: true,
			Result:           &it,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(dataset.Zip(ItemColumns, cells)); err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, cells[0], err)
		}
		if it.Label == "" {
			return nil, fmt.Errorf("row %d: empty item label", i+1)
		}
		it.Row = i + 1
		it.Cells = cells
		items = append(items, it)
	}
	return items, nil
}

func trimSpaceHook(from, to reflect.Type, data any) (any, error) {
	if s, ok := data.(string); ok && from.Kind() == reflect.String {
		return strings.TrimSpace(s), nil
	}
	return data, nil
}
