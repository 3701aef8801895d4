package selfcal

import (
	"math"
	"strconv"
	"testing"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/calstore"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testCal = "testdata/ub_nominal.csv"

var ambient = models.UncertainValue{Value: 20, Uncertainty: 0.5, DOF: 10, Label: "temperature"}

func calRows(t *testing.T) [][]string {
	t.Helper()
	rows, err := dataset.NewWorkbook(testCal).ReadAll("")
	require.NoError(t, err)
	return rows
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func standards(t *testing.T) map[string]gum.Quantity {
	t.Helper()
	table, err := parseDCTable(gum.NewContext(), "dc_a", dcRows())
	require.NoError(t, err)
	dc, err := buildUp(table)
	require.NoError(t, err)
	return dc.Standards
}

func TestConstants(t *testing.T) {
	consts, err := Constants(standards(t))
	require.NoError(t, err)
	require.Len(t, consts, len(ConstantKeys))

	want := map[string]float64{
		bridge.R4A: 1e-5,
		bridge.R4B: 5e-6,
		bridge.R4C: 2e-6,
		bridge.G1:  1/1.000005 - 1,
		bridge.G2:  0,
	}
	for i, c := range consts {
		assert.Equal(t, ConstantKeys[i], c.Key)
		assert.InDelta(t, want[c.Key], c.Offset.Value(), 1e-11, c.Key)
		assert.Greater(t, c.Offset.Uncertainty(), 0.0, c.Key)
	}
}

func TestConstants_Missing(t *testing.T) {
	s := standards(t)
	delete(s, bridge.R4B)
	_, err := Constants(s)
	require.ErrorIs(t, err, ErrMissingReading)
	assert.Contains(t, err.Error(), "R4B")
}

func TestUpdateCalibration(t *testing.T) {
	rows := calRows(t)
	ctx := gum.NewContext()
	r4a, err := ctx.Leaf(1e-5, 2e-7, 30, "r4a")
	require.NoError(t, err)
	extra, err := ctx.Leaf(3e-6, 1e-7, 20, "extra")
	require.NoError(t, err)

	got := UpdateCalibration(rows, []Constant{{Key: bridge.R4A, Offset: r4a}, {Key: "R4D", Offset: extra}})
	require.Len(t, got, len(rows)+1)

	assert.Equal(t, rows[0][0], got[0][0], "headers kept")
	for i, row := range got[:len(rows)] {
		if rows[i][0] == string(calstore.Static) && rows[i][1] == bridge.R4A {
			assertConstantRow(t, row, "R4A", 1e-5, 2e-7, 30, "R4A_cal")
			continue
		}
		for j := range rows[i] {
			assert.Equal(t, rows[i][j], row[j])
		}
	}
	assertConstantRow(t, got[len(rows)], "R4D", 3e-6, 1e-7, 20, "R4D_cal")

	// The updated table loads as a calibration.
	str := make([][]string, len(got))
	for i, row := range got {
		for _, v := range row {
			str[i] = append(str[i], dataset.FormatCell(v))
		}
	}
	set, err := calstore.Parse(gum.NewContext(), str)
	require.NoError(t, err)
	q, err := set.Get(calstore.Static, bridge.R4A)
	require.NoError(t, err)
	assert.Equal(t, 1e-5, q.Value())
}

func TestUpdateCalibration_ExactOffset(t *testing.T) {
	got := UpdateCalibration(calRows(t), []Constant{{Key: bridge.G2, Offset: gum.Constant(0)}})
	for _, row := range got {
		if row[0] == "caldata" && row[1] == bridge.G2 {
			assertConstantRow(t, row, "G2", 0, 0, math.Inf(1), "G2_cal")
			return
		}
	}
	t.Fatal("G2 row not found")
}

func assertConstantRow(t *testing.T, row []any, key string, v, u, dof float64, label string) {
	t.Helper()
	require.Len(t, row, 6)
	assert.Equal(t, "caldata", row[0])
	assert.Equal(t, key, row[1])
	assert.InDelta(t, v, row[2], 1e-15)
	assert.InDelta(t, u, row[3], 1e-15)
	if math.IsInf(dof, 1) {
		assert.True(t, math.IsInf(row[4].(float64), 1))
	} else {
		assert.InDelta(t, dof, row[4], 1e-9)
	}
	assert.Equal(t, label, row[5])
}

var (
	dcBlock       = dataset.Block{FirstRow: 1, LastRow: 13, FirstCol: 1, LastCol: 4}
	zerosBlock    = dataset.Block{FirstRow: 15, LastRow: 16, FirstCol: 1, LastCol: 3}
	thompsonBlock = dataset.Block{FirstRow: 18, LastRow: 19, FirstCol: 1, LastCol: 4}
	resistorBlock = dataset.Block{FirstRow: 21, LastRow: 21, FirstCol: 1, LastCol: 7}
	capBlock      = dataset.Block{FirstRow: 23, LastRow: 23, FirstCol: 1, LastCol: 7}
)

func testPlan() *Plan {
	return &Plan{
		Name:  "ub-2026",
		Sheet: "Self",
		Blocks: Blocks{
			DCA:        []int{1, 13, 1, 4},
			Zeros:      []int{15, 16, 1, 3},
			Thompson:   []int{18, 19, 1, 4},
			Resistors:  []int{21, 21, 1, 7},
			Capacitors: []int{23, 23, 1, 7},
		},
		Thompson: []ThompsonSpec{{Label: "T10k", Z: "tz", Y: "ty", ZZero: "zz", YZero: "yz", Frequency: 1592, Decade: 4}},
	}
}

func expectReadings(t *testing.T, reader *dataset.MockBlockReader) {
	z, y, zZero, yZero := thompson(t, 1592)
	reader.EXPECT().ReadBlock("Self", dcBlock).Return(dcRows(), nil)
	reader.EXPECT().ReadBlock("Self", zerosBlock).Return([][]string{
		{"zz", ftoa(zZero.A), ftoa(zZero.B)},
		{"yz", ftoa(yZero.A), ftoa(yZero.B)},
	}, nil)
	reader.EXPECT().ReadBlock("Self", thompsonBlock).Return([][]string{
		{"tz", ftoa(z.A), ftoa(z.B), "10"},
		{"ty", ftoa(y.A), ftoa(y.B), "10"},
	}, nil)
	reader.EXPECT().ReadBlock("Self", resistorBlock).Return([][]string{
		{"R1k", "0", "1.000002", "0", "1", "4", "1000"},
	}, nil)
	reader.EXPECT().ReadBlock("Self", capBlock).Return([][]string{
		{"C10n", "0.1001", "0", "0.0001", "0", "4y", "1000"},
	}, nil)
}

func TestRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	expectReadings(t, reader)

	res, err := Run(testPlan(), reader, calRows(t), ambient)
	require.NoError(t, err)

	assert.InDelta(t, 10000.1, res.DC.Standards[bridge.R4A].Value(), 1e-6)
	require.Len(t, res.Constants, len(ConstantKeys))
	assert.Len(t, res.Calibration, len(calRows(t)))

	require.Len(t, res.Phases, 1)
	assert.Equal(t, "T10k", res.Phases[0].Label)
	assert.InDelta(t, 0, res.Phases[0].CapacitancePPM, 1e-6)
	assert.InDelta(t, 0, res.Phases[0].InductancePPM, 1e-6)

	require.Len(t, res.Gains, 1)
	// G1/G2 − 1 is 5 ppm in the DC table
	assert.InDelta(t, 1, res.Gains[0].ProductPPM, 1e-3)
	assert.InDelta(t, -4, res.Gains[0].FactorPPM, 1e-3)

	require.Len(t, res.Resistors, 1)
	r := res.Resistors[0]
	assert.Equal(t, "R1k", r.Label)
	assert.InEpsilon(t, 1000, r.Impedance.Real().Value(), 1e-4)
	assert.InEpsilon(t, 1.000002e-3, r.Admittance.Real().Value(), 1e-4)
	assert.Greater(t, r.Impedance.Real().Uncertainty(), 0.0)

	require.Len(t, res.Capacitors, 1)
	c := res.Capacitors[0]
	assert.Equal(t, bridge.MustParseRange("4Y"), c.Range)
	assert.InEpsilon(t, 1e-8, c.Reactive.Value(), 1e-4)
	assert.Empty(t, res.Inductors)
}

func TestRun_DCOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	reader.EXPECT().ReadBlock("", dcBlock).Return(dcRows(), nil)

	res, err := Run(&Plan{Blocks: Blocks{DCA: []int{1, 13, 1, 4}}}, reader, calRows(t), ambient)
	require.NoError(t, err)
	assert.Len(t, res.Constants, len(ConstantKeys))
	assert.Empty(t, res.Phases)
	assert.Empty(t, res.Gains)
}

func TestRun_MissingThompsonReading(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	reader.EXPECT().ReadBlock("Self", dcBlock).Return(dcRows(), nil)
	reader.EXPECT().ReadBlock("Self", zerosBlock).Return([][]string{{"zz", "0", "0"}}, nil)
	reader.EXPECT().ReadBlock("Self", thompsonBlock).Return([][]string{{"tz", "0", "0.5", "10"}}, nil)

	plan := testPlan()
	plan.Blocks.Resistors = nil
	plan.Blocks.Capacitors = nil
	_, err := Run(plan, reader, calRows(t), ambient)
	require.ErrorIs(t, err, ErrMissingReading)
	assert.Contains(t, err.Error(), "thompson T10k")
}

func TestRun_ReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	reader.EXPECT().ReadBlock("Self", dcBlock).Return(nil, assert.AnError)

	_, err := Run(testPlan(), reader, calRows(t), ambient)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "reading dc_a")
}

func TestResult_ReportRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	expectReadings(t, reader)

	res, err := Run(testPlan(), reader, calRows(t), ambient)
	require.NoError(t, err)

	var titles []any
	for _, row := range res.ReportRows() {
		if len(row) == 1 && row[0] != "" {
			titles = append(titles, row[0])
		}
	}
	assert.Equal(t, []any{
		"DC calibration of resistors",
		"Calibration constants",
		"Phase angle corrections from Thompson set",
		"Gain Factor",
		"UB measured values",
		"Capacitor set",
	}, titles)
}
