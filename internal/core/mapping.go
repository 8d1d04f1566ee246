package core

import (
	"fmt"
	"strings"
)

// Mapping is the ordered set of FieldSpecs that defines the destination schema.
// It is a plain value: profiles carry it, tests build it, JSON and HCL round-trip it.
type Mapping struct {
	Fields []FieldSpec `json:"fields"`
}

// NewMapping returns a mapping over the given field specs.
func NewMapping(fields ...FieldSpec) Mapping {
	return Mapping{Fields: fields}
}

// Validate checks that the mapping can be run: at least one field, unique
// non-empty targets, non-negative column indexes and known kinds.
func (m Mapping) Validate() error {
	if len(m.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidMapping)
	}

	var errs []string
	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		target := strings.TrimSpace(f.Target)
		switch {
		case target == "":
			errs = append(errs, fmt.Sprintf("field %d has no target", i))
		case seen[target]:
			errs = append(errs, fmt.Sprintf("duplicate target %q", target))
		}
		seen[target] = true

		if !f.Source.ByHeader() && f.Source.Index < 0 {
			errs = append(errs, fmt.Sprintf("field %q: negative column %d", target, f.Source.Index))
		}
		if _, ok := fieldKindNames[f.Kind]; !ok {
			errs = append(errs, fmt.Sprintf("field %q: unknown kind %d", target, int(f.Kind)))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(errs, "; "))
	}
	return nil
}

// UsesHeaders reports whether any field resolves by header name.
func (m Mapping) UsesHeaders() bool {
	for _, f := range m.Fields {
		if f.Source.ByHeader() {
			return true
		}
	}
	return false
}

// Targets returns the destination field names in order.
func (m Mapping) Targets() []string {
	targets := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		targets[i] = f.Target
	}
	return targets
}

// HeaderIndex maps normalized header names to their position in the header row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
// Keys go through NormalizeHeaderName; the first occurrence of a name wins.
func MakeHeaderIndex(header []Cell) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, c := range header {
		key := NormalizeHeaderName(c.String())
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// ResolvedCell is the raw cell a field resolved to.
// Present is false when the header is unknown or the row is too short.
type ResolvedCell struct {
	Target  string
	Cell    Cell
	Present bool
}

// ResolvedRow holds one ResolvedCell per mapping field, in mapping order.
type ResolvedRow []ResolvedCell

// Get returns the resolved cell for a target.
func (r ResolvedRow) Get(target string) (ResolvedCell, bool) {
	for _, rc := range r {
		if rc.Target == target {
			return rc, true
		}
	}
	return ResolvedCell{}, false
}

// ColumnMapper resolves rows of one sheet to raw cells per target field.
// Header positions are looked up once, when the mapper is built.
type ColumnMapper struct {
	mapping   Mapping
	positions []int // -1 when the field's header is not in the sheet
}

// NewColumnMapper builds a mapper for one sheet. headers may be nil for
// purely positional mappings.
func NewColumnMapper(m Mapping, headers HeaderIndex) *ColumnMapper {
	positions := make([]int, len(m.Fields))
	for i, f := range m.Fields {
		if !f.Source.ByHeader() {
			positions[i] = f.Source.Index
			continue
		}
		pos, ok := headers[NormalizeHeaderName(f.Source.Header)]
		if !ok {
			pos = -1
		}
		positions[i] = pos
	}
	return &ColumnMapper{mapping: m, positions: positions}
}

// MapRow resolves one raw row. Coercion is left to the caller.
func (cm *ColumnMapper) MapRow(row []Cell) ResolvedRow {
	resolved := make(ResolvedRow, len(cm.mapping.Fields))
	for i, f := range cm.mapping.Fields {
		resolved[i].Target = f.Target
		pos := cm.positions[i]
		if pos < 0 || pos >= len(row) {
			continue
		}
		resolved[i].Cell = row[pos]
		resolved[i].Present = true
	}
	return resolved
}

// MinColumns is the row length needed to reach every resolvable required field.
func (cm *ColumnMapper) MinColumns() int {
	minCols := 0
	for i, f := range cm.mapping.Fields {
		if !f.Required || cm.positions[i] < 0 {
			continue
		}
		if cm.positions[i]+1 > minCols {
			minCols = cm.positions[i] + 1
		}
	}
	return minCols
}

// Missing returns the header-based fields whose header is not in the sheet.
func (cm *ColumnMapper) Missing() []FieldSpec {
	var missing []FieldSpec
	for i, f := range cm.mapping.Fields {
		if cm.positions[i] < 0 {
			missing = append(missing, f)
		}
	}
	return missing
}

// Resolve maps a single row without keeping a mapper around.
func (m Mapping) Resolve(row []Cell, headers HeaderIndex) ResolvedRow {
	return NewColumnMapper(m, headers).MapRow(row)
}
