package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one non-empty data row. Number is the 1-based spreadsheet row.
type Row struct {
	Number int
	Cells  []Cell
}

// Cell returns the cell at idx, or an empty cell past the end of the row.
func (r Row) Cell(idx int) Cell {
	if idx < 0 || idx >= len(r.Cells) {
		return Cell{Kind: CellEmpty}
	}
	return r.Cells[idx]
}

// Sheet is the first worksheet of a workbook split into headers and data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

// ReadSheet parses the first worksheet of an xlsx workbook held in memory.
func ReadSheet(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, withDetail(ErrInvalidFile, fmt.Sprintf("open workbook: %v", err), nil)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, withDetail(ErrInvalidFile, fmt.Sprintf("read rows: %v", err), nil)
	}

	sheet, err := NewSheet(rows)
	if err != nil {
		return nil, err
	}
	sheet.Name = sheets[0]
	return sheet, nil
}

// NewSheet builds a Sheet from raw rows, the first one holding the headers.
// Blank or missing header cells are named "Colonne N".
func NewSheet(rows [][]string) (*Sheet, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	headers := make([]string, width)
	named := 0
	for i := range headers {
		var h string
		if i < len(rows[0]) {
			h = strings.TrimSpace(rows[0][i])
		}
		if h == "" {
			h = fmt.Sprintf("Colonne %d", i+1)
		} else {
			named++
		}
		headers[i] = h
	}

	sheet := &Sheet{Headers: headers}
	for i, raw := range rows[1:] {
		if isEmptyRow(raw) {
			continue
		}
		cells := make([]Cell, len(raw))
		for j, v := range raw {
			cells[j] = NewCell(v)
		}
		sheet.Rows = append(sheet.Rows, Row{Number: i + 2, Cells: cells})
	}

	if len(sheet.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	if named == 0 {
		return nil, ErrNoValidColumns
	}
	return sheet, nil
}

// ColumnIndex finds a header: exact match first, then ignoring case,
// spaces and underscores. Returns -1 when absent.
func (s *Sheet) ColumnIndex(name string) int {
	want := strings.TrimSpace(name)
	if want == "" {
		return -1
	}
	for i, h := range s.Headers {
		if h == want {
			return i
		}
	}
	squash := func(v string) string {
		v = strings.ToLower(strings.TrimSpace(v))
		v = strings.ReplaceAll(v, " ", "")
		return strings.ReplaceAll(v, "_", "")
	}
	for i, h := range s.Headers {
		if squash(h) == squash(want) {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
