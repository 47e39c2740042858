// Package workbook decodes xlsx files into the raw cell grids consumed by
// core.StageWorkbook.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/carteras/internal/core"
)

// ErrInvalidWorkbook wraps any failure to open or read the file.
var ErrInvalidWorkbook = errors.New("invalid workbook")

// Decode reads an xlsx workbook from r. Cells are returned unformatted:
// numeric cells become float64 (Excel serial dates included) and everything
// else stays a string. Empty cells are nil.
func Decode(r io.Reader, fileName string) (*core.Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	wb := &core.Workbook{FileName: fileName}
	for _, name := range f.GetSheetList() {
		sheet, err := decodeSheet(f, name)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %w", ErrInvalidWorkbook, name, err)
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

func decodeSheet(f *excelize.File, name string) (core.Sheet, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return core.Sheet{}, err
	}

	grid := make([][]core.Cell, len(rows))
	for r, row := range rows {
		cells := make([]core.Cell, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			cells[c] = rawCell(f, name, c+1, r+1, raw)
		}
		grid[r] = cells
	}
	return core.Sheet{Name: name, Rows: grid}, nil
}

// rawCell keeps text cells that merely look numeric ("007") as strings.
func rawCell(f *excelize.File, sheet string, col, row int, raw string) core.Cell {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	typ, err := f.GetCellType(sheet, ref)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeDate, excelize.CellTypeUnset:
		return v
	default:
		return raw
	}
}
