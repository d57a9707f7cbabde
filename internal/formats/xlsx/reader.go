// Package xlsx provides reading and writing capabilities for .xlsx (Excel) files.
package xlsx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet represents a single worksheet's data. Fully empty rows are dropped at load time.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Workbook represents a parsed Excel file with all its sheets, in workbook order.
type Workbook struct {
	Sheets []Sheet `json:"sheets"`
}

// LoadError is returned when a file is not a readable spreadsheet or one of its
// worksheets cannot be parsed.
type LoadError struct {
	Sheet string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("could not read sheet %q: %v", e.Sheet, e.Err)
	}
	return fmt.Sprintf("could not read Excel data — is this a valid .xlsx file? %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ReadFile reads an .xlsx file and returns its structured data.
func ReadFile(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	defer f.Close()

	return readWorkbook(f)
}

// ReadBytes reads an .xlsx file from a byte slice and returns its structured data.
func ReadBytes(data []byte) (*Workbook, error) {
	return Read(bytes.NewReader(data))
}

// Read reads an .xlsx stream, such as an uploaded form file.
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	defer f.Close()

	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}

	for _, name := range f.GetSheetList() {
		// Raw values keep numbers as stored instead of display-formatted.
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &LoadError{Sheet: name, Err: err}
		}

		wb.Sheets = append(wb.Sheets, Sheet{
			Name: name,
			Rows: dropEmptyRows(rows),
		})
	}

	return wb, nil
}

func dropEmptyRows(rows [][]string) [][]string {
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !isEmptyRow(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// SheetNames returns the worksheet names in workbook order.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		names[i] = s.Name
	}
	return names
}

// GetSheet returns a specific sheet by name. Returns an error if the sheet is not found.
func (wb *Workbook) GetSheet(name string) (*Sheet, error) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], nil
		}
	}
	return nil, fmt.Errorf("sheet %q not found — available sheets: %v", name, wb.SheetNames())
}

// RowCount returns the number of rows, header included.
func (s *Sheet) RowCount() int {
	return len(s.Rows)
}

// ColumnCount returns the width of the widest row.
func (s *Sheet) ColumnCount() int {
	width := 0
	for _, row := range s.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Header returns the first row, padded to ColumnCount.
func (s *Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	return pad(s.Rows[0], s.ColumnCount())
}

// DataRows returns every row after the header, each padded to ColumnCount.
func (s *Sheet) DataRows() [][]string {
	if len(s.Rows) < 2 {
		return nil
	}
	width := s.ColumnCount()
	out := make([][]string, 0, len(s.Rows)-1)
	for _, row := range s.Rows[1:] {
		out = append(out, pad(row, width))
	}
	return out
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
