package models

import (
	"testing"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeItems(t *testing.T) {
	rows := [][]string{
		{"coax zero", "1000", "5Z", "120", "-35", "1000", "", "", "", "", "", "", "", "", ""},
		{"", "", "", "", "", "", "", "", "", "", "", "", "", "", ""},
		{" L1 ", "1000", "5Z", "999731", "1234567", "1000.5", "20.3", "0.1", "8", "25e-6", "5e-6", "12", "3.9e-3", "1e-4", "30"},
	}

	items, err := DecodeItems(rows)
	require.NoError(t, err)
	require.Len(t, items, 2)

	zero := items[0]
	assert.Equal(t, "coax zero", zero.Label)
	assert.Equal(t, 1, zero.Row)
	assert.Equal(t, 0.0, zero.Temperature)

	l1 := items[1]
	assert.Equal(t, "L1", l1.Label)
	assert.Equal(t, 3, l1.Row)
	assert.Equal(t, "L110005Z", l1.Key())
	assert.Equal(t, 1000.5, l1.Frequency)
	assert.Equal(t, 20.3, l1.Temperature)
	assert.Equal(t, 25e-6, l1.ReactiveTempco)
	assert.Equal(t, 30.0, l1.ResistiveTempcoDOF)
	assert.Len(t, l1.Cells, len(ItemColumns))

	nom, err := l1.NominalHz()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, nom)

	rd, err := l1.Reading(true)
	require.NoError(t, err)
	assert.Equal(t, bridge.Reading{
		Range:      bridge.MustParseRange("5Z"),
		Resistance: 1234567,
		Reactance:  999731,
		Frequency:  1000.5,
		Resolution: true,
	}, rd)
}

func TestDecodeItems_BadNumber(t *testing.T) {
	_, err := DecodeItems([][]string{{"C1", "1000", "6Y", "1", "2", "one kHz"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 (C1)")
}

func TestItem_ReadingDialEntries(t *testing.T) {
	it := Item{Label: "C2", Range: "6Y", ReactanceDial: "-1X3x-16", ResistanceDial: "-187", Frequency: 1000}

	rd, err := it.Reading(false)
	require.NoError(t, err)
	assert.Equal(t, 3996, rd.Reactance)
	assert.Equal(t, -187, rd.Resistance)

	it.ReactanceDial = "12.5"
	_, err = it.Reading(false)
	assert.ErrorIs(t, err, dial.ErrInvalidSetting)

	it.ReactanceDial = "1"
	it.Range = "9Q"
	_, err = it.Reading(false)
	assert.ErrorIs(t, err, bridge.ErrInvalidRange)
}
