package selfcal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planYAML = `name: ub-selfcal-2026
calibration: ub_dict_cal.csv
ambient:
  value: 20.2
  uncertainty: 0.5
  dof: 10
  label: room temperature
workbook: readings/ub_selfcal.xlsx
sheet: UB_selfcal
blocks:
  dc_a: [3, 16, 1, 4]
  dc_b: [20, 40, 1, 4]
  zeros: [45, 60, 1, 3]
  thompson: [45, 60, 6, 9]
  resistors: [65, 72, 1, 7]
thompson:
  - label: T1k
    z: t1kz
    y: t1ky
    z_zero: z1
    y_zero: y1
    frequency: 1592
    decade: 3
report:
  workbook: /results/ub_selfcal_report.xlsx
constants: ub_dict_cal_new.csv
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selfcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, planYAML)

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, "ub-selfcal-2026", plan.Name)
	assert.Equal(t, filepath.Dir(path), plan.Dir)
	assert.Equal(t, []int{3, 16, 1, 4}, plan.Blocks.DCA)
	assert.Nil(t, plan.Blocks.DCC)
	require.NotNil(t, plan.Ambient)
	assert.Equal(t, "room temperature", plan.Ambient.Label)
	require.Len(t, plan.Thompson, 1)
	assert.Equal(t, ThompsonSpec{Label: "T1k", Z: "t1kz", Y: "t1ky", ZZero: "z1", YZero: "y1", Frequency: 1592, Decade: 3}, plan.Thompson[0])

	assert.Equal(t, filepath.Join(plan.Dir, "ub_dict_cal.csv"), plan.Path(plan.Calibration))
	assert.Equal(t, "/results/ub_selfcal_report.xlsx", plan.Path(plan.Report.Workbook))
	assert.Equal(t, DefaultReportSheet, plan.ReportSheet())
}

func TestLoadPlan_Errors(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadPlan(writePlan(t, "blocks: [not, a, map]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing self-calibration plan")
}

func TestPlan_Validate(t *testing.T) {
	valid := func() *Plan {
		return &Plan{
			Calibration: "cal.csv",
			Workbook:    "readings.xlsx",
			Blocks:      Blocks{DCA: []int{1, 13, 1, 4}},
		}
	}
	p := valid()
	p.Report.Workbook = "report.xlsx"
	require.NoError(t, p.Validate())

	tests := []struct {
		name   string
		modify func(*Plan)
		want   string
	}{
		{"no calibration", func(p *Plan) { p.Calibration = "" }, "calibration file is required"},
		{"no workbook", func(p *Plan) { p.Workbook = "" }, "workbook is required"},
		{"bad dc_a", func(p *Plan) { p.Blocks.DCA = []int{1, 2} }, "blocks.dc_a"},
		{"bad optional block", func(p *Plan) { p.Blocks.Inductors = []int{5, 1, 1, 7} }, "blocks.inductors"},
		{"dc_c alone", func(p *Plan) { p.Blocks.DCC = []int{1, 2, 1, 4} }, "blocks.dc_c needs blocks.dc_b"},
		{"zeros alone", func(p *Plan) { p.Blocks.ResistorZeros = []int{1, 2, 1, 7} }, "blocks.resistor_zeros needs blocks.resistors"},
		{"thompson without blocks", func(p *Plan) {
			p.Thompson = []ThompsonSpec{{Label: "T", Z: "z", Y: "y", ZZero: "zz", YZero: "yz", Frequency: 1000, Decade: 4}}
		}, "need blocks.thompson and blocks.zeros"},
		{"thompson decade", func(p *Plan) {
			p.Blocks.Thompson = []int{1, 2, 1, 4}
			p.Blocks.Zeros = []int{3, 4, 1, 3}
			p.Thompson = []ThompsonSpec{{Label: "T", Z: "z", Y: "y", ZZero: "zz", YZero: "yz", Frequency: 1000, Decade: 9}}
		}, "thompson[0]: decade must be 1 to 7, got 9"},
		{"thompson frequency", func(p *Plan) {
			p.Blocks.Thompson = []int{1, 2, 1, 4}
			p.Blocks.Zeros = []int{3, 4, 1, 3}
			p.Thompson = []ThompsonSpec{{Label: "T", Z: "z", Y: "y", ZZero: "zz", YZero: "yz", Decade: 4}}
		}, "thompson[0]: frequency must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			p.Report.Workbook = "report.xlsx"
			tt.modify(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	p = valid()
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.workbook is required")
}
