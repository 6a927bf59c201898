package importer

import (
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CellKind tags the value held by a Cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
)

// Cell is a spreadsheet value: empty, text, or number. Text always holds the
// trimmed source text so identifiers such as "00123" survive untouched.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

// NewCell classifies a raw cell value.
func NewCell(raw string) Cell {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Cell{Kind: CellEmpty}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Cell{Kind: CellNumber, Text: text, Number: f}
	}
	return Cell{Kind: CellString, Text: text}
}

func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// AsText returns the cell text, "" for empty cells.
func (c Cell) AsText() string { return c.Text }

// AsFloat coerces to a number. Text cells accept a decimal comma ("15,5").
func (c Cell) AsFloat() (float64, bool) {
	switch c.Kind {
	case CellNumber:
		return c.Number, true
	case CellString:
		f, err := strconv.ParseFloat(strings.ReplaceAll(c.Text, ",", "."), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsInt coerces to an integer, rounding fractional values.
func (c Cell) AsInt() (int, bool) {
	f, ok := c.AsFloat()
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// AsDate renders Excel date serials as 2006-01-02; text is returned as is.
func (c Cell) AsDate() (string, bool) {
	switch c.Kind {
	case CellNumber:
		t, err := excelize.ExcelDateToTime(c.Number, false)
		if err != nil {
			return c.Text, true
		}
		return t.Format("2006-01-02"), true
	case CellString:
		return c.Text, true
	}
	return "", false
}
