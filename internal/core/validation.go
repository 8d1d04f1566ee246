package core

// validation.go decides whether a mapped row is admissible.
//
// A row is rejected when any required field is absent, blank, or holds the
// literal "nan" (any case) in its source text form. This one rule covers every
// "drop rows without a volunteer name" check the workbook variants grew, for
// whichever fields a mapping marks required.
//
// The RowValidator can return all errors (for reporting) or just the first
// (for the normalization loop).

import (
	"fmt"
	"strings"
)

// RejectReason classifies a rejected row.
type RejectReason int

const (
	RejectMissingRequiredField RejectReason = iota + 1
	RejectUnparsableRow
)

func (r RejectReason) String() string {
	switch r {
	case RejectMissingRequiredField:
		return "missing_required_field"
	case RejectUnparsableRow:
		return "unparsable_row"
	default:
		return fmt.Sprintf("RejectReason(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RejectReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// RowError explains why a row was rejected.
type RowError struct {
	Reason  RejectReason
	Field   string // target field, empty for structural errors
	Message string
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating a row.
type ValidationResult struct {
	Valid  bool       // True if all validations passed
	Errors []RowError // List of validation errors (empty if Valid)
}

// RowValidator validates resolved rows against a mapping's required fields.
type RowValidator struct {
	mapping Mapping
}

// NewRowValidator creates a validator for the given mapping.
func NewRowValidator(m Mapping) *RowValidator {
	return &RowValidator{mapping: m}
}

// ValidateRow checks every required field and returns all errors.
func (v *RowValidator) ValidateRow(row ResolvedRow) ValidationResult {
	result := ValidationResult{Valid: true}
	for i, spec := range v.mapping.Fields {
		if err := checkRequired(spec, row, i); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *err)
		}
	}
	return result
}

// ValidateRowFirst returns the first rejection, or nil when the row is admitted.
func (v *RowValidator) ValidateRowFirst(row ResolvedRow) error {
	for i, spec := range v.mapping.Fields {
		if err := checkRequired(spec, row, i); err != nil {
			return err
		}
	}
	return nil
}

func checkRequired(spec FieldSpec, row ResolvedRow, i int) *RowError {
	if !spec.Required {
		return nil
	}

	var rc ResolvedCell
	if i < len(row) && row[i].Target == spec.Target {
		rc = row[i]
	} else {
		rc, _ = row.Get(spec.Target)
	}

	if !rc.Present {
		return &RowError{
			Reason:  RejectMissingRequiredField,
			Field:   spec.Target,
			Message: fmt.Sprintf("required %s not found", spec.Source),
		}
	}

	s := strings.TrimSpace(rc.Cell.String())
	if s == "" || strings.EqualFold(s, "nan") {
		return &RowError{
			Reason:  RejectMissingRequiredField,
			Field:   spec.Target,
			Message: "required field is empty",
		}
	}
	return nil
}
