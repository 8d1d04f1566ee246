package source

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// builtinDateFormats are the excelize built-in number format IDs that render
// as dates or times.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	45: true, 46: true, 47: true,
}

// ReadWorkbook returns the grid of one sheet. Rows are padded to the widest
// row so trailing blank cells read as present but empty.
func ReadWorkbook(r io.Reader, sheet string) (core.RawGrid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet not found: %q (have %s)", sheet, strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	wr := &workbookReader{f: f, sheet: sheet, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wr.date1904 = *props.Date1904
	}

	grid := make(core.RawGrid, len(rows))
	for i, row := range rows {
		cells := make([]core.Cell, width)
		for j, raw := range row {
			c, err := wr.cell(j+1, i+1, raw)
			if err != nil {
				return nil, err
			}
			cells[j] = c
		}
		grid[i] = cells
	}
	return grid, nil
}

type workbookReader struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool // style ID -> renders as date
}

// cell classifies one raw value using the cell's stored type and style.
func (wr *workbookReader) cell(col, row int, raw string) (core.Cell, error) {
	if raw == "" {
		return core.Cell{}, nil
	}

	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return core.Cell{}, err
	}

	typ, err := wr.f.GetCellType(wr.sheet, name)
	if err != nil {
		return core.Cell{}, fmt.Errorf("cell %s: %w", name, err)
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return core.TextCell(raw), nil
	case excelize.CellTypeBool, excelize.CellTypeError:
		return core.LiteralCell(raw), nil
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return core.DateTimeCell(t), nil
		}
		return core.TextCell(raw), nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.LiteralCell(raw), nil
	}

	isDate, err := wr.isDateStyled(name)
	if err != nil {
		return core.Cell{}, err
	}
	if isDate {
		if t, err := excelize.ExcelDateToTime(n, wr.date1904); err == nil {
			c := core.DateTimeCell(t)
			c.Number = n
			return c, nil
		}
	}
	return core.NumberCell(n), nil
}

func (wr *workbookReader) isDateStyled(cell string) (bool, error) {
	styleID, err := wr.f.GetCellStyle(wr.sheet, cell)
	if err != nil {
		return false, fmt.Errorf("cell %s style: %w", cell, err)
	}
	if isDate, ok := wr.dateStyles[styleID]; ok {
		return isDate, nil
	}

	isDate := false
	if style, err := wr.f.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = IsDateFormat(*style.CustomNumFmt)
		} else {
			isDate = builtinDateFormats[style.NumFmt]
		}
	}
	wr.dateStyles[styleID] = isDate
	return isDate, nil
}

// IsDateFormat reports whether a custom number format code renders a date
// or time. Quoted literals, bracketed sections and escaped characters are
// ignored, so "[$R$-416] #,##0.00" is not a date but "dd/mm/yy" is.
func IsDateFormat(code string) bool {
	section, _, _ := strings.Cut(code, ";")
	var b strings.Builder
	inQuote, inBracket := false, false
	for i := 0; i < len(section); i++ {
		ch := section[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "dmyhs")
}
