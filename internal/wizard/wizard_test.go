package wizard

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDials(t *testing.T) {
	tests := []struct {
		name     string
		pattern  dial.Pattern
		input    string
		expected int
	}{
		{"compact resistance", dial.ResistanceDials, "1000000", 1_000_000},
		{"compact with X and -1", dial.ReactanceDials, "-1X3x-16", 3996},
		{"plain count", dial.ResistanceDials, "250", 250},
		{"negative count", dial.ReactanceDials, "-5", -5},
		{"padded", dial.ReactanceDials, "  010000 ", 10_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseDials(tt.pattern, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestParseDials_Invalid(t *testing.T) {
	_, err := ParseDials(dial.ReactanceDials, "12a456")
	require.Error(t, err)
	assert.ErrorIs(t, err, dial.ErrInvalidSetting)
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency(" 1592.35 ")
	require.NoError(t, err)
	assert.Equal(t, 1592.35, f)

	for _, bad := range []string{"", "abc", "0", "-50"} {
		_, err := ParseFrequency(bad)
		assert.ErrorIs(t, err, bridge.ErrInvalidFrequency, bad)
	}
}

func TestReadingEntry_Reading(t *testing.T) {
	entry := &ReadingEntry{
		Range:      " 4z",
		Frequency:  "1000",
		Resistance: "1000000",
		Reactance:  "100000",
	}

	r, err := entry.Reading(true)
	require.NoError(t, err)

	assert.Equal(t, bridge.MustParseRange("4Z"), r.Range)
	assert.Equal(t, 1000.0, r.Frequency)
	assert.Equal(t, 1_000_000, r.Resistance)
	assert.Equal(t, 100_000, r.Reactance)
	assert.True(t, r.Resolution)
}

func TestReadingEntry_ReadingErrors(t *testing.T) {
	base := ReadingEntry{Range: "4Z", Frequency: "1000", Resistance: "0", Reactance: "0"}

	badRange := base
	badRange.Range = "9Q"
	_, err := badRange.Reading(false)
	assert.ErrorIs(t, err, bridge.ErrInvalidRange)

	badFreq := base
	badFreq.Frequency = "fast"
	_, err = badFreq.Reading(false)
	assert.ErrorIs(t, err, bridge.ErrInvalidFrequency)

	badDial := base
	badDial.Reactance = "1-2-3"
	_, err = badDial.Reading(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reactance dial")
}

func TestRunReadingWizard_ValidInput(t *testing.T) {
	input := "2y\n1000\n1000000\n-1X3x-16\n"
	in := strings.NewReader(input)
	out := &bytes.Buffer{}

	entry, err := RunReadingWizard(in, out, "")
	require.NoError(t, err)

	assert.Equal(t, "2Y", entry.Range)
	assert.Equal(t, "1000", entry.Frequency)
	assert.Equal(t, "1000000", entry.Resistance)
	assert.Equal(t, "-1X3x-16", entry.Reactance)

	r, err := entry.Reading(false)
	require.NoError(t, err)
	assert.Equal(t, bridge.Admittance, r.Range.Mode)
	assert.Equal(t, 3996, r.Reactance)
}

func TestRunReadingWizard_RepromptsInvalidRange(t *testing.T) {
	input := "9q\n5z\n50\n0\n1000\n"
	out := &bytes.Buffer{}

	entry, err := RunReadingWizard(strings.NewReader(input), out, "")
	require.NoError(t, err)

	assert.Equal(t, "5Z", entry.Range)
	assert.Equal(t, "50", entry.Frequency)
	assert.Equal(t, "0", entry.Resistance)
	assert.Equal(t, "1000", entry.Reactance)
}

func TestLineReader(t *testing.T) {
	lr := &lineReader{r: bufio.NewReader(strings.NewReader("4Z\n1000\nlast"))}
	buf := make([]byte, 64)

	var lines []string
	for {
		n, err := lr.Read(buf)
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		lines = append(lines, string(buf[:n]))
	}
	assert.Equal(t, []string{"4Z\n", "1000\n", "last"}, lines)
}
