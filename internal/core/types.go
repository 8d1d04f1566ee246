// Package core provides the row normalization and coercion pipeline for
// timesheet workbook imports.
// This package has no transport or storage dependencies and can be driven by
// the HTTP trigger, the inbox watcher, the batch CLI, or tests without modification.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CellKind identifies what the spreadsheet parser produced for one cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDateTime
	CellLiteral // booleans, error values and anything else left unparsed
)

// Cell is one raw cell value of a RawGrid.
type Cell struct {
	Kind   CellKind
	Text   string    // CellText, CellLiteral
	Number float64   // CellNumber; the Excel serial for CellDateTime when known
	Time   time.Time // CellDateTime
}

// TextCell returns a text cell.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// NumberCell returns a numeric cell.
func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Number: n} }

// DateTimeCell returns a date/time cell.
func DateTimeCell(t time.Time) Cell { return Cell{Kind: CellDateTime, Time: t} }

// LiteralCell returns a cell holding an unparsed literal.
func LiteralCell(s string) Cell { return Cell{Kind: CellLiteral, Text: s} }

// String returns the cell's source text form.
func (c Cell) String() string {
	switch c.Kind {
	case CellText, CellLiteral:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDateTime:
		if h, m, s := c.Time.Clock(); h == 0 && m == 0 && s == 0 {
			return c.Time.Format("2006-01-02")
		}
		return c.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// IsBlank reports whether the cell's source text is empty, whitespace, or
// the literal "nan" left behind by earlier dataframe exports.
func (c Cell) IsBlank() bool {
	s := strings.TrimSpace(c.String())
	return s == "" || strings.EqualFold(s, "nan")
}

// RawGrid is the full row/column grid of one sheet. The pipeline only reads it.
type RawGrid [][]Cell

// GridFromStrings builds a grid of text cells. Empty strings become empty cells.
func GridFromStrings(rows [][]string) RawGrid {
	grid := make(RawGrid, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			if v != "" {
				cells[j] = TextCell(v)
			}
		}
		grid[i] = cells
	}
	return grid
}

// FieldKind selects the coercion applied to a mapped cell.
type FieldKind int

const (
	KindText FieldKind = iota
	KindDecimalHours
	KindTimeOfDay
	KindCalendarDate
	KindRawString
)

var fieldKindNames = map[FieldKind]string{
	KindText:         "text",
	KindDecimalHours: "decimal_hours",
	KindTimeOfDay:    "time",
	KindCalendarDate: "date",
	KindRawString:    "raw",
}

func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// ParseFieldKind converts a kind name ("text", "decimal_hours", "time", "date", "raw").
func ParseFieldKind(s string) (FieldKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range fieldKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field kind %q", ErrInvalidMapping, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k FieldKind) MarshalText() ([]byte, error) {
	if _, ok := fieldKindNames[k]; !ok {
		return nil, fmt.Errorf("%w: unknown field kind %d", ErrInvalidMapping, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FieldKind) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TimePolicy decides what a blank time-of-day cell becomes.
type TimePolicy int

const (
	// ZeroFill turns blank or zero times into "00:00:00".
	ZeroFill TimePolicy = iota
	// NullOnBlank turns blank times into Null.
	NullOnBlank
)

func (p TimePolicy) String() string {
	switch p {
	case ZeroFill:
		return "zero_fill"
	case NullOnBlank:
		return "null_on_blank"
	default:
		return fmt.Sprintf("TimePolicy(%d)", int(p))
	}
}

// ParseTimePolicy converts "zero_fill" or "null_on_blank". Empty means ZeroFill.
func ParseTimePolicy(s string) (TimePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero_fill", "zerofill":
		return ZeroFill, nil
	case "null_on_blank", "nullonblank":
		return NullOnBlank, nil
	default:
		return 0, fmt.Errorf("unknown time policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p TimePolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TimePolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseTimePolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Source identifies where a field's raw value lives in a row.
// A non-empty Header selects header-name resolution; otherwise Index is used.
type Source struct {
	Index  int    `json:"index,omitempty"`
	Header string `json:"header,omitempty"`
}

// Column returns a positional source (0-based).
func Column(i int) Source { return Source{Index: i} }

// Header returns a header-name source.
func Header(name string) Source { return Source{Header: name} }

// ByHeader reports whether the source resolves by header name.
func (s Source) ByHeader() bool { return s.Header != "" }

func (s Source) String() string {
	if s.ByHeader() {
		return fmt.Sprintf("header %q", s.Header)
	}
	return fmt.Sprintf("column %d", s.Index)
}

// FieldSpec maps one source column to one destination field.
type FieldSpec struct {
	Source   Source    `json:"source"`
	Target   string    `json:"target"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
}

// Destination is an opaque sink handle, e.g. "voluntarios.stg_listagem_horas".
type Destination string

// Locator points at one sheet of one uploaded object.
type Locator struct {
	Container string // bucket or top-level directory
	Path      string // object path inside the container
	Sheet     string // sheet name; ignored for single-sheet formats
}

func (l Locator) String() string {
	return l.Container + "/" + l.Path
}

// GridSource produces the raw grid for a locator.
// Failures must wrap ErrSourceUnavailable.
type GridSource interface {
	FetchGrid(ctx context.Context, loc Locator) (RawGrid, error)
}

// RecordError is one sink-reported failure for the record at Index
// (position in the submitted slice).
type RecordError struct {
	Index  int
	Detail string
}

// Sink bulk-loads normalized records into a destination.
//
// A nil error with no RecordErrors means every record was accepted. RecordErrors
// with a nil error mean the others are durably stored. A non-nil error means
// the whole submission failed.
type Sink interface {
	SubmitRecords(ctx context.Context, dest Destination, records []NormalizedRecord) ([]RecordError, error)
}
