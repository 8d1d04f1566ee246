package core

import (
	"errors"
	"fmt"
	"time"
)

// RejectionEntry records one data row that did not become a record.
type RejectionEntry struct {
	RowIndex int          `json:"row_index"`
	SheetRow int          `json:"sheet_row"`
	Reason   RejectReason `json:"reason"`
	Field    string       `json:"field,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Result is the output of one normalization pass.
type Result struct {
	Records    []NormalizedRecord `json:"-"`
	Rejections []RejectionEntry   `json:"rejections,omitempty"`
	DataRows   int                `json:"data_rows"`
	Skipped    int                `json:"skipped_blank_rows,omitempty"`
}

// Normalizer turns a raw grid into records under one profile.
//
// ReferenceYear drives century correction of two-digit years. Zero means
// the current calendar year.
type Normalizer struct {
	Profile       Profile
	ReferenceYear int
}

// NewNormalizer returns a normalizer for p.
func NewNormalizer(p Profile, referenceYear int) *Normalizer {
	return &Normalizer{Profile: p, ReferenceYear: referenceYear}
}

// Normalize walks the data region of grid in order. Rejected rows are
// recorded and skipped; they never abort the pass. The only error is an
// invalid profile.
func (n *Normalizer) Normalize(grid RawGrid) (*Result, error) {
	p := n.Profile
	if err := p.validateLayout(); err != nil {
		return nil, err
	}

	refYear := n.ReferenceYear
	if refYear == 0 {
		refYear = time.Now().Year()
	}

	start := p.HeaderSkipRows
	var headers HeaderIndex
	if p.Mapping.UsesHeaders() && start-1 < len(grid) {
		headers = MakeHeaderIndex(grid[start-1])
	}

	mapper := NewColumnMapper(p.Mapping, headers)
	validator := NewRowValidator(p.Mapping)
	minCols := mapper.MinColumns()

	res := &Result{}
	for i := start; i < len(grid); i++ {
		row := grid[i]
		rowIndex := i - start
		sheetRow := i + 1
		res.DataRows++

		if p.SkipBlankRows && isBlankRow(row) {
			res.Skipped++
			continue
		}

		if len(row) < minCols {
			res.Rejections = append(res.Rejections, RejectionEntry{
				RowIndex: rowIndex,
				SheetRow: sheetRow,
				Reason:   RejectUnparsableRow,
				Detail:   fmt.Sprintf("row has %d columns, need %d", len(row), minCols),
			})
			continue
		}

		resolved := mapper.MapRow(row)
		if err := validator.ValidateRowFirst(resolved); err != nil {
			entry := RejectionEntry{RowIndex: rowIndex, SheetRow: sheetRow, Reason: RejectUnparsableRow, Detail: err.Error()}
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				entry.Reason = rowErr.Reason
				entry.Field = rowErr.Field
				entry.Detail = rowErr.Message
			}
			res.Rejections = append(res.Rejections, entry)
			continue
		}

		res.Records = append(res.Records, n.buildRecord(resolved, rowIndex, sheetRow, refYear))
	}

	return res, nil
}

func (n *Normalizer) buildRecord(resolved ResolvedRow, rowIndex, sheetRow, refYear int) NormalizedRecord {
	fields := n.Profile.Mapping.Fields
	rec := NormalizedRecord{
		RowIndex: rowIndex,
		SheetRow: sheetRow,
		Fields:   make([]FieldValue, len(fields)),
	}
	for i, spec := range fields {
		v := Null
		if resolved[i].Present {
			v = Coerce(resolved[i].Cell, spec.Kind, n.Profile.TimePolicy, refYear)
		}
		rec.Fields[i] = FieldValue{Name: spec.Target, Value: v}
	}
	return rec
}

func isBlankRow(row []Cell) bool {
	for _, c := range row {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}
