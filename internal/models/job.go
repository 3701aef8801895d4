package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/utils"
	"gopkg.in/yaml.v3"
)

// ZeroMode selects how fixture zeros are removed from a measurement set.
type ZeroMode string

const (
	ZeroNone  ZeroMode = "none"
	ZeroCoax  ZeroMode = "coax"
	ZeroTwist ZeroMode = "twist"
	ZeroBox   ZeroMode = "box"
)

// ZeroModes lists the accepted zero modes.
var ZeroModes = []ZeroMode{ZeroNone, ZeroCoax, ZeroTwist, ZeroBox}

// UncertainValue is an input quantity written out in a job file.
type UncertainValue struct {
	Value       float64 `yaml:"value" json:"value"`
	Uncertainty float64 `yaml:"uncertainty" json:"uncertainty"`
	DOF         float64 `yaml:"dof" json:"dof"`
	Label       string  `yaml:"label" json:"label"`
}

// Job describes one calibration run: which bridge calibration to use, where
// the readings are and where the results go.
type Job struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Calibration string `yaml:"calibration" json:"calibration"`

	// Ambient overrides the project ambient temperature.
	Ambient *UncertainValue `yaml:"ambient,omitempty" json:"ambient,omitempty"`
	// Resolution overrides the project dial resolution setting.
	Resolution *bool `yaml:"resolution,omitempty" json:"resolution,omitempty"`

	Input  InputSpec  `yaml:"input" json:"input"`
	Output OutputSpec `yaml:"output" json:"output"`
	Zero   ZeroSpec   `yaml:"zero" json:"zero"`

	// Dir is the directory of the job file; relative paths resolve against it.
	Dir string `yaml:"-" json:"-"`
}

// InputSpec locates the measurement block.
type InputSpec struct {
	Workbook string `yaml:"workbook" json:"workbook"`
	Sheet    string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	// Block is [first row, last row, first column, last column], 1-based.
	Block []int `yaml:"block" json:"block"`
}

// OutputSpec locates the report.
type OutputSpec struct {
	Workbook string `yaml:"workbook" json:"workbook"`
	Sheet    string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	StartRow int    `yaml:"start_row,omitempty" json:"start_row,omitempty"`
}

// ZeroSpec configures zero subtraction.
type ZeroSpec struct {
	Mode ZeroMode `yaml:"mode" json:"mode"`
	// Label overrides the zero item label for coax mode.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	// TanDelta appends tan δ = G/(ωC) after a coax zero subtraction.
	TanDelta bool     `yaml:"tan_delta,omitempty" json:"tan_delta,omitempty"`
	Box      *BoxSpec `yaml:"box,omitempty" json:"box,omitempty"`
}

// BoxSpec configures zero subtraction for a decade capacitance box.
type BoxSpec struct {
	// Exclude lists items reported without the box zero subtracted.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	// VernierItems lists items set on the vernier dial.
	VernierItems []string `yaml:"vernier_items,omitempty" json:"vernier_items,omitempty"`
	// Vernier is the setting uncertainty of the vernier dial (F).
	Vernier *UncertainValue `yaml:"vernier,omitempty" json:"vernier,omitempty"`
	// SeriesResistance is the series resistance of the box connection (ohm).
	SeriesResistance *UncertainValue `yaml:"series_resistance,omitempty" json:"series_resistance,omitempty"`
	// MainZero, when set, reports the all-dials-zero capacitance of the box
	// in place of the 6Y box zero. The value is the zero definition uncertainty (F).
	MainZero *UncertainValue `yaml:"main_zero,omitempty" json:"main_zero,omitempty"`
}

// LoadJob reads and validates a job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	if job.Zero.Mode == "" {
		job.Zero.Mode = ZeroNone
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	job.Dir = filepath.Dir(abs)
	return &job, nil
}

// Validate checks the job for consistency.
func (j *Job) Validate() error {
	var errs []error
	if j.Calibration == "" {
		errs = append(errs, errors.New("calibration file is required"))
	}
	if j.Input.Workbook == "" {
		errs = append(errs, errors.New("input.workbook is required"))
	}
	if _, err := dataset.BlockFromSlice(j.Input.Block); err != nil {
		errs = append(errs, fmt.Errorf("input.block: %w", err))
	}
	if j.Output.Workbook == "" {
		errs = append(errs, errors.New("output.workbook is required"))
	}
	if j.Output.StartRow < 0 {
		errs = append(errs, fmt.Errorf("output.start_row must be at least 1, got %d", j.Output.StartRow))
	}
	if !slices.Contains(ZeroModes, j.Zero.Mode) {
		errs = append(errs, fmt.Errorf("zero.mode %q must be one of %v", j.Zero.Mode, ZeroModes))
	}
	if j.Zero.Box != nil && j.Zero.Mode != ZeroBox {
		errs = append(errs, fmt.Errorf("zero.box is only used with mode %q", ZeroBox))
	}
	if j.Zero.TanDelta && j.Zero.Mode != ZeroCoax {
		errs = append(errs, fmt.Errorf("zero.tan_delta is only used with mode %q", ZeroCoax))
	}
	return errors.Join(errs...)
}

// Block returns the input block descriptor.
func (j *Job) Block() (dataset.Block, error) {
	return dataset.BlockFromSlice(j.Input.Block)
}

// Path resolves p against the job file directory.
func (j *Job) Path(p string) string {
	return utils.ResolvePath(p, j.Dir)
}

// FirstRow is the first output row, defaulting to 1.
func (o OutputSpec) FirstRow() int {
	if o.StartRow < 1 {
		return 1
	}
	return o.StartRow
}
