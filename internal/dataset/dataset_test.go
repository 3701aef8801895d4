package dataset

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtureCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestBlockFromSlice(t *testing.T) {
	tests := []struct {
		name    string
		desc    []int
		want    Block
		wantErr string
	}{
		{
			name: "fixture block",
			desc: []int{9, 30, 1, 15},
			want: Block{FirstRow: 9, LastRow: 30, FirstCol: 1, LastCol: 15},
		},
		{name: "too short", desc: []int{9, 30, 1}, wantErr: "4 elements"},
		{name: "zero based", desc: []int{0, 3, 1, 2}, wantErr: "start at 1"},
		{name: "reversed rows", desc: []int{5, 3, 1, 2}, wantErr: "last row"},
		{name: "reversed cols", desc: []int{1, 3, 4, 2}, wantErr: "last column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := BlockFromSlice(tt.desc)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
			assert.Equal(t, 22, b.Rows())
			assert.Equal(t, 15, b.Cols())
		})
	}
}

func TestWorkbook_ReadBlockCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFixtureCSV(t, dir, "readings.csv", "title\nitem,nom\nL1,1000,5Z\nL2, 160 ,4Z,extra\n")

	rows, err := NewWorkbook(path).ReadBlock("", Block{FirstRow: 3, LastRow: 5, FirstCol: 1, LastCol: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"L1", "1000", "5Z"}, rows[0])
	assert.Equal(t, []string{"L2", "160", "4Z"}, rows[1])
	assert.Equal(t, []string{"", "", ""}, rows[2], "rows past the data read as blank")
	assert.True(t, IsBlank(rows[2]))
}

func TestWorkbook_MissingFile(t *testing.T) {
	_, err := NewWorkbook("/nonexistent/path/data.csv").ReadAll("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestWorkbook_RoundTrip(t *testing.T) {
	rows := [][]any{
		{"L1", "1000", "5Z", 0.0012345678912345, 3.2e-9, 2.0452296421327034, 10.000123, 0.0, 0.0},
		{"coax zero", "1000", "5Z", 0.0, 0.0, 0.0, -1.5e-7, 1e-12, 12.706204736174698},
	}

	tests := []struct {
		name     string
		file     string
		startRow int
	}{
		{name: "csv", file: "out.csv", startRow: 1},
		{name: "xlsx", file: "out.xlsx", startRow: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWorkbook(filepath.Join(t.TempDir(), tt.file))
			require.NoError(t, wb.WriteBlock("pyUBresults", tt.startRow, rows))

			got, err := wb.ReadBlock("pyUBresults", Block{
				FirstRow: tt.startRow, LastRow: tt.startRow + len(rows) - 1,
				FirstCol: 1, LastCol: len(rows[0]),
			})
			require.NoError(t, err)
			require.Len(t, got, len(rows))

			for i, row := range rows {
				for j, want := range row {
					switch w := want.(type) {
					case string:
						assert.Equal(t, w, got[i][j], "row %d col %d", i, j)
					case float64:
						v, err := strconv.ParseFloat(got[i][j], 64)
						require.NoError(t, err, "row %d col %d", i, j)
						assert.Equal(t, w, v, "row %d col %d", i, j)
					}
				}
			}
		})
	}
}

func TestZip(t *testing.T) {
	row := Zip([]string{"item", "nom_freq", "ubrange"}, []string{"L1", "1000"})
	assert.Equal(t, Row{"item": "L1", "nom_freq": "1000", "ubrange": ""}, row)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", FormatCell(nil))
	assert.Equal(t, "1e-12", FormatCell(1e-12))
	assert.Equal(t, "42", FormatCell(42))
	assert.Equal(t, "true", FormatCell(true))
}
