package selfcal

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/utils"
	"gopkg.in/yaml.v3"
)

// DefaultReportSheet is the sheet the report is written to when none is named.
const DefaultReportSheet = "test_results"

// Plan describes one bridge self-calibration: where the DC and bridge
// readings are, which Thompson standards to evaluate and where the results go.
type Plan struct {
	Name string `yaml:"name" json:"name"`
	// Calibration is the calibration file the new constants are applied to.
	Calibration string `yaml:"calibration" json:"calibration"`
	// Ambient is the temperature the check bridge is evaluated at.
	Ambient *models.UncertainValue `yaml:"ambient,omitempty" json:"ambient,omitempty"`

	Workbook string `yaml:"workbook" json:"workbook"`
	Sheet    string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Blocks   Blocks `yaml:"blocks" json:"blocks"`

	Thompson []ThompsonSpec `yaml:"thompson,omitempty" json:"thompson,omitempty"`

	Report models.OutputSpec `yaml:"report" json:"report"`
	// Constants, when set, receives the calibration file with the new
	// DC values of the internal standards.
	Constants string `yaml:"constants,omitempty" json:"constants,omitempty"`

	Dir string `yaml:"-" json:"-"`
}

// Blocks locates the reading tables in the workbook. Each is [first row,
// last row, first column, last column]. Only DCA is required; a section
// whose block is missing is skipped.
type Blocks struct {
	// DCA holds the DC build-up of the internal standards: name, value, u, dof.
	DCA []int `yaml:"dc_a" json:"dc_a"`
	// DCB and DCC hold the DC values of the external resistor set.
	DCB []int `yaml:"dc_b,omitempty" json:"dc_b,omitempty"`
	DCC []int `yaml:"dc_c,omitempty" json:"dc_c,omitempty"`
	// Zeros holds the bridge zeros of the Thompson measurements: name, a, b.
	Zeros []int `yaml:"zeros,omitempty" json:"zeros,omitempty"`
	// Thompson holds the Thompson readings: name, a, b, capacitance (pF).
	Thompson []int `yaml:"thompson,omitempty" json:"thompson,omitempty"`
	// Resistors holds the external resistors read in both modes:
	// name, Y a, Y b, Z a, Z b, decade, frequency.
	Resistors     []int `yaml:"resistors,omitempty" json:"resistors,omitempty"`
	ResistorZeros []int `yaml:"resistor_zeros,omitempty" json:"resistor_zeros,omitempty"`
	// Inductors and Capacitors hold name, a, b, zero a, zero b, range, frequency.
	Inductors  []int `yaml:"inductors,omitempty" json:"inductors,omitempty"`
	Capacitors []int `yaml:"capacitors,omitempty" json:"capacitors,omitempty"`
}

// ThompsonSpec names the four readings of one Thompson phase angle standard.
type ThompsonSpec struct {
	Label     string  `yaml:"label" json:"label"`
	Z         string  `yaml:"z" json:"z"`
	Y         string  `yaml:"y" json:"y"`
	ZZero     string  `yaml:"z_zero" json:"z_zero"`
	YZero     string  `yaml:"y_zero" json:"y_zero"`
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Decade    int     `yaml:"decade" json:"decade"`
}

// LoadPlan reads and validates a self-calibration plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing self-calibration plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("self-calibration plan %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	plan.Dir = filepath.Dir(abs)
	return &plan, nil
}

// Validate checks the plan for consistency.
func (p *Plan) Validate() error {
	var errs []error
	if p.Calibration == "" {
		errs = append(errs, errors.New("calibration file is required"))
	}
	if p.Workbook == "" {
		errs = append(errs, errors.New("workbook is required"))
	}
	if p.Report.Workbook == "" {
		errs = append(errs, errors.New("report.workbook is required"))
	}
	if _, err := dataset.BlockFromSlice(p.Blocks.DCA); err != nil {
		errs = append(errs, fmt.Errorf("blocks.dc_a: %w", err))
	}
	optional := p.Blocks.optional()
	for _, name := range slices.Sorted(maps.Keys(optional)) {
		b := optional[name]
		if b == nil {
			continue
		}
		if _, err := dataset.BlockFromSlice(b); err != nil {
			errs = append(errs, fmt.Errorf("blocks.%s: %w", name, err))
		}
	}
	if p.Blocks.DCC != nil && p.Blocks.DCB == nil {
		errs = append(errs, errors.New("blocks.dc_c needs blocks.dc_b"))
	}
	if len(p.Thompson) > 0 && (p.Blocks.Thompson == nil || p.Blocks.Zeros == nil) {
		errs = append(errs, errors.New("thompson standards need blocks.thompson and blocks.zeros"))
	}
	for i, t := range p.Thompson {
		if t.Label == "" || t.Z == "" || t.Y == "" || t.ZZero == "" || t.YZero == "" {
			errs = append(errs, fmt.Errorf("thompson[%d]: label, z, y, z_zero and y_zero are required", i))
		}
		if t.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("thompson[%d]: frequency must be positive, got %g", i, t.Frequency))
		}
		if t.Decade < 1 || t.Decade > bridge.Decades {
			errs = append(errs, fmt.Errorf("thompson[%d]: decade must be 1 to %d, got %d", i, bridge.Decades, t.Decade))
		}
	}
	if p.Blocks.ResistorZeros != nil && p.Blocks.Resistors == nil {
		errs = append(errs, errors.New("blocks.resistor_zeros needs blocks.resistors"))
	}
	return errors.Join(errs...)
}

func (b Blocks) optional() map[string][]int {
	return map[string][]int{
		"dc_b":           b.DCB,
		"dc_c":           b.DCC,
		"zeros":          b.Zeros,
		"thompson":       b.Thompson,
		"resistors":      b.Resistors,
		"resistor_zeros": b.ResistorZeros,
		"inductors":      b.Inductors,
		"capacitors":     b.Capacitors,
	}
}

// Path resolves p against the plan file directory.
func (p *Plan) Path(path string) string {
	return utils.ResolvePath(path, p.Dir)
}

// ReportSheet is the report sheet, DefaultReportSheet when unset.
func (p *Plan) ReportSheet() string {
	if p.Report.Sheet == "" {
		return DefaultReportSheet
	}
	return p.Report.Sheet
}
