package core

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind is the type tag of a coerced value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueText
	ValueDecimal
	ValueTime
	ValueDate
)

// Value is one typed destination value.
type Value struct {
	Kind    ValueKind
	Text    string    // ValueText; "HH:MM:SS" for ValueTime
	Decimal float64   // ValueDecimal
	Date    time.Time // ValueDate, midnight UTC
}

// Null is the absent value.
var Null = Value{}

// Text returns a text value.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// Decimal returns a decimal value.
func Decimal(f float64) Value { return Value{Kind: ValueDecimal, Decimal: f} }

// Time returns a canonical time-of-day value ("HH:MM:SS").
func Time(hhmmss string) Value { return Value{Kind: ValueTime, Text: hhmmss} }

// Date returns a calendar date value truncated to the day.
func Date(year int, month time.Month, day int) Value {
	return Value{Kind: ValueDate, Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// IsNull reports whether v is the absent value.
func (v Value) IsNull() bool { return v.Kind == ValueNull }

// String renders the value the way the destination expects it in text form.
func (v Value) String() string {
	switch v.Kind {
	case ValueText, ValueTime:
		return v.Text
	case ValueDecimal:
		return strconv.FormatFloat(v.Decimal, 'f', -1, 64)
	case ValueDate:
		return v.Date.Format(time.DateOnly)
	default:
		return ""
	}
}

// Any returns the value as a plain Go value: nil, string or float64.
// Dates render as "YYYY-MM-DD" and times as "HH:MM:SS".
func (v Value) Any() any {
	switch v.Kind {
	case ValueNull:
		return nil
	case ValueDecimal:
		return v.Decimal
	default:
		return v.String()
	}
}

// MarshalJSON renders the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// FieldValue is one named value of a record.
type FieldValue struct {
	Name  string
	Value Value
}

// NormalizedRecord is one accepted row, with fields in Mapping order.
type NormalizedRecord struct {
	RowIndex int // 0-based index within the data region
	SheetRow int // 1-based row number in the source sheet
	Fields   []FieldValue
}

// Get returns the value of the named field.
func (r NormalizedRecord) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null, false
}

// Columns returns the field names in order.
func (r NormalizedRecord) Columns() []string {
	cols := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Map returns the record as field name to plain value, the shape of a JSON row insert.
func (r NormalizedRecord) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value.Any()
	}
	return m
}

// MarshalJSON renders the record as a JSON object of its fields.
func (r NormalizedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
