package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCMCUncert_Admittance(t *testing.T) {
	m, _ := newTestModel(t)
	const f = 1000.0

	c, err := m.CMCUncert(Reading{Range: MustParseRange("6Y"), Reactance: ReactanceDialMax, Frequency: f})
	require.NoError(t, err)

	capF := 1e-9
	assert.InEpsilon(t, (0.2/f+22*capF*1e6)*1e-12, c.Capacitance, 1e-9)
	tanDelta := 0.000027 + 0.00027/(capF*1e12)
	assert.InEpsilon(t, 2*math.Pi*f*capF*tanDelta, c.Conductance, 1e-9)
	assert.Equal(t, c.Capacitance, c.Reactive())
	assert.Equal(t, c.Conductance, c.Real())
}

func TestCMCUncert_Impedance(t *testing.T) {
	m, _ := newTestModel(t)
	const f = 1000.0

	c, err := m.CMCUncert(Reading{Range: MustParseRange("5Z"), Resistance: ResistanceDialMax, Frequency: f})
	require.NoError(t, err)

	assert.InEpsilon(t, (2000/f+19*1e4)*1e-6, c.ResistorOnly, 1e-9)
	assert.InEpsilon(t, math.Sqrt(100+4)*1e-6, c.Inductance, 1e-9)
	assert.InEpsilon(t, math.Sqrt(0.14*0.14+0.02*0.02), c.Resistance, 1e-9)
	assert.Equal(t, c.Inductance, c.Reactive())
	assert.Equal(t, c.Resistance, c.Real())
}

func TestCMCUncert_IndependentOfResolution(t *testing.T) {
	m, _ := newTestModel(t)
	rd := Reading{Range: MustParseRange("3Z"), Resistance: 123456, Reactance: 654321, Frequency: 50}

	off, err := m.CMCUncert(rd)
	require.NoError(t, err)
	rd.Resolution = true
	on, err := m.CMCUncert(rd)
	require.NoError(t, err)
	assert.Equal(t, off, on)
}

func TestCMC_Ratios(t *testing.T) {
	c := CMC{Range: MustParseRange("2Y"), Capacitance: 4e-12, Conductance: 1e-9}

	x, r := c.Ratios(2e-12, 0)
	assert.InEpsilon(t, 2.0, x, 1e-12)
	assert.Equal(t, 0.0, r)
}

func TestCMCGrid(t *testing.T) {
	m, _ := newTestModel(t)

	grid, err := m.CMCGrid(MustParseRange("4Z"), 1000, true, 0.95)
	require.NoError(t, err)
	require.Len(t, grid, len(GridResistance)*len(GridReactance))

	last := grid[len(grid)-1]
	assert.Equal(t, ResistanceDialMax, last.Reading.Resistance)
	assert.Equal(t, ReactanceDialMax, last.Reading.Reactance)
	assert.InEpsilon(t, 1e3, last.Real.Value(), 1e-12)
	assert.Positive(t, last.RatioX)
	assert.Positive(t, last.RatioReal)
}
