// Package calstore loads the calibration constants of the universal bridge:
// one uncertain quantity per (category, key), each registered as an
// independent uncertainty source.
package calstore

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/gum"
)

var (
	// ErrInvalidCategory is returned for a row whose category is not one of Categories.
	ErrInvalidCategory = errors.New("invalid calibration category")

	// ErrMalformedRow is returned for a row with fewer than six cells or a non-numeric value, uncertainty or dof.
	ErrMalformedRow = errors.New("malformed calibration row")

	// ErrMissingCalibrationKey is returned when a record the bridge model needs is absent.
	ErrMissingCalibrationKey = errors.New("missing calibration key")
)

// Category groups calibration records by the kind of correction they carry.
type Category string

const (
	// Static calibration offsets of the internal standards, plus amplifier
	// gain, phase and the calibration temperature.
	Static Category = "caldata"
	// Frequency dependence (AC-DC difference).
	ACDC Category = "acdc"
	// Temperature coefficients.
	TempCoefficient Category = "tempcoeffs"
	// Long-term stability since calibration.
	Stability Category = "stability"
	// Linearity of the two inductive voltage dividers behind the dials.
	DividerLinearity Category = "ivd"
)

// Categories lists the recognised categories in file order.
var Categories = []Category{Static, ACDC, TempCoefficient, Stability, DividerLinearity}

// HeaderRows is the number of leading rows of a calibration table that carry
// titles rather than records.
const HeaderRows = 2

// recordFields is the number of cells a record needs: category, key, value,
// uncertainty, dof, label.
const recordFields = 6

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Record is one calibrated constant.
type Record struct {
	Category Category
	Key      string
	Quantity gum.Quantity
}

// RecordSet holds the records of one calibration file. It is read-only after Parse.
type RecordSet struct {
	records map[Category]map[string]gum.Quantity
}

// Load reads a calibration table from path (CSV or XLSX, first sheet) and
// registers every record as a leaf in ctx.
func Load(ctx *gum.Context, path string) (*RecordSet, error) {
	rows, err := dataset.NewWorkbook(path).ReadAll("")
	if err != nil {
		return nil, fmt.Errorf("loading calibration file: %w", err)
	}
	set, err := Parse(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return set, nil
}

// Parse builds a RecordSet from table rows. The first HeaderRows rows are
// skipped and blank rows are ignored.
func Parse(ctx *gum.Context, rows [][]string) (*RecordSet, error) {
	set := &RecordSet{records: make(map[Category]map[string]gum.Quantity, len(Categories))}
	for i := HeaderRows; i < len(rows); i++ {
		row := rows[i]
		if dataset.IsBlank(row) {
			continue
		}
		rec, err := parseRecord(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if set.records[rec.Category] == nil {
			set.records[rec.Category] = make(map[string]gum.Quantity)
		}
		set.records[rec.Category][rec.Key] = rec.Quantity
	}
	return set, nil
}

func parseRecord(ctx *gum.Context, row []string) (Record, error) {
	if len(row) < recordFields {
		return Record{}, fmt.Errorf("%w: %d fields, need %d", ErrMalformedRow, len(row), recordFields)
	}
	cat, err := ParseCategory(strings.TrimSpace(row[0]))
	if err != nil {
		return Record{}, err
	}
	key := strings.TrimSpace(row[1])
	if key == "" {
		return Record{}, fmt.Errorf("%w: empty key", ErrMalformedRow)
	}

	var nums [3]float64
	for j, name := range []string{"value", "uncertainty", "dof"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+j]), 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s of %s %q: %q is not a number", ErrMalformedRow, name, cat, key, row[2+j])
		}
		nums[j] = v
	}
	label := strings.TrimSpace(row[5])
	if label == "" {
		label = string(cat) + ":" + key
	}

	q, err := ctx.Leaf(nums[0], nums[1], nums[2], label)
	if err != nil {
		return Record{}, fmt.Errorf("%s %q: %w", cat, key, err)
	}
	return Record{Category: cat, Key: key, Quantity: q}, nil
}

// Get returns the record for (cat, key), or ErrMissingCalibrationKey.
func (s *RecordSet) Get(cat Category, key string) (gum.Quantity, error) {
	q, ok := s.records[cat][key]
	if !ok {
		return gum.Quantity{}, fmt.Errorf("%w: %s[%q]", ErrMissingCalibrationKey, cat, key)
	}
	return q, nil
}

// Keys returns the sorted keys present in cat.
func (s *RecordSet) Keys(cat Category) []string {
	keys := make([]string, 0, len(s.records[cat]))
	for k := range s.records[cat] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Records returns every record, ordered by category then key.
func (s *RecordSet) Records() []Record {
	var out []Record
	for _, cat := range Categories {
		for _, k := range s.Keys(cat) {
			out = append(out, Record{Category: cat, Key: k, Quantity: s.records[cat][k]})
		}
	}
	return out
}

// Len returns the number of records.
func (s *RecordSet) Len() int {
	n := 0
	for _, m := range s.records {
		n += len(m)
	}
	return n
}

// Lookup collects several keys of one category, reporting the first missing
// key. It keeps call sites that need a whole set of constants short.
func (s *RecordSet) Lookup(cat Category, keys ...string) (map[string]gum.Quantity, error) {
	out := make(map[string]gum.Quantity, len(keys))
	for _, k := range keys {
		q, err := s.Get(cat, k)
		if err != nil {
			return nil, err
		}
		out[k] = q
	}
	return out, nil
}
