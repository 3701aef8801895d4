// Package dataset reads and writes rectangular blocks of cells from CSV and
// XLSX workbooks. It is the only place that knows about file formats; the
// numeric core consumes rows of strings and produces rows of values.
package dataset

//go:generate go tool mockgen -source=dataset.go -destination=mock_dataset.go -package=dataset

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Row represents a single row with column name to value mapping.
type Row map[string]string

// Block is a rectangular cell range, 1-based and inclusive, the way it is
// addressed in a worksheet.
type Block struct {
	FirstRow int `yaml:"first_row" json:"first_row"`
	LastRow  int `yaml:"last_row" json:"last_row"`
	FirstCol int `yaml:"first_col" json:"first_col"`
	LastCol  int `yaml:"last_col" json:"last_col"`
}

// BlockFromSlice builds a Block from the [first row, last row, first column,
// last column] descriptor used in job files.
func BlockFromSlice(d []int) (Block, error) {
	if len(d) != 4 {
		return Block{}, fmt.Errorf("block descriptor must have 4 elements, got %d", len(d))
	}
	b := Block{FirstRow: d[0], LastRow: d[1], FirstCol: d[2], LastCol: d[3]}
	return b, b.Validate()
}

// Validate checks that the block is non-empty and 1-based.
func (b Block) Validate() error {
	if b.FirstRow < 1 || b.FirstCol < 1 {
		return fmt.Errorf("block %v: rows and columns start at 1", b)
	}
	if b.LastRow < b.FirstRow {
		return fmt.Errorf("block %v: last row (%d) must be >= first row (%d)", b, b.LastRow, b.FirstRow)
	}
	if b.LastCol < b.FirstCol {
		return fmt.Errorf("block %v: last column (%d) must be >= first column (%d)", b, b.LastCol, b.FirstCol)
	}
	return nil
}

// Rows returns the number of rows in the block.
func (b Block) Rows() int { return b.LastRow - b.FirstRow + 1 }

// Cols returns the number of columns in the block.
func (b Block) Cols() int { return b.LastCol - b.FirstCol + 1 }

func (b Block) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d]", b.FirstRow, b.LastRow, b.FirstCol, b.LastCol)
}

// BlockReader gives a rectangular block of cells as rows of strings.
type BlockReader interface {
	ReadBlock(sheet string, b Block) ([][]string, error)
}

// BlockWriter persists rows of values starting at startRow, column 1.
type BlockWriter interface {
	WriteBlock(sheet string, startRow int, rows [][]any) error
}

// Workbook is a file-backed BlockReader and BlockWriter. The format follows
// the file extension: .xlsx, or CSV for anything else. CSV files have no
// sheets and rows are always written from line 1.
type Workbook struct {
	Path string
}

// NewWorkbook returns a Workbook for path.
func NewWorkbook(path string) *Workbook {
	return &Workbook{Path: path}
}

func (w *Workbook) isXLSX() bool {
	return strings.EqualFold(filepath.Ext(w.Path), ".xlsx")
}

// ReadBlock implements BlockReader. Cells outside the stored data read as "".
func (w *Workbook) ReadBlock(sheet string, b Block) ([][]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	all, err := w.ReadAll(sheet)
	if err != nil {
		return nil, err
	}
	return cut(all, b), nil
}

// ReadAll returns every stored row of the sheet.
func (w *Workbook) ReadAll(sheet string) ([][]string, error) {
	if w.isXLSX() {
		return readXLSX(w.Path, sheet)
	}
	return readCSV(w.Path)
}

// WriteBlock implements BlockWriter. The file is replaced.
func (w *Workbook) WriteBlock(sheet string, startRow int, rows [][]any) error {
	if startRow < 1 {
		return fmt.Errorf("start row must be >= 1, got %d", startRow)
	}
	if w.isXLSX() {
		return writeXLSX(w.Path, sheet, startRow, rows)
	}
	return writeCSV(w.Path, rows)
}

func cut(all [][]string, b Block) [][]string {
	out := make([][]string, 0, b.Rows())
	for r := b.FirstRow; r <= b.LastRow; r++ {
		row := make([]string, b.Cols())
		if r-1 < len(all) {
			src := all[r-1]
			for c := b.FirstCol; c <= b.LastCol; c++ {
				if c-1 < len(src) {
					row[c-b.FirstCol] = strings.TrimSpace(src[c-1])
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// Zip pairs column names with a record. Missing trailing cells map to "".
func Zip(columns []string, record []string) Row {
	row := make(Row, len(columns))
	for i, name := range columns {
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

// FormatCell renders a value the way it is stored in CSV output.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// IsBlank reports whether every cell of record is empty.
func IsBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
