package core

// convert.go provides the cell coercion functions for timesheet data.
//
// These functions handle the messy reality of hand-maintained workbooks:
//   - Durations typed as "01:30", "1,5", 1.5 or an Excel time cell
//   - Clock times with a leading date, missing zero padding, or stray seconds
//   - Day-first dates with two-digit years that the parser puts in the wrong century
//   - Header labels that drift in case, accents and punctuation between revisions
//
// Every function is total: invalid or absent input degrades to the documented
// fallback instead of returning an error, so one dirty cell never vetoes a row.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dayFirstLayouts are tried in order. Go maps "06" years 69-99 to the 1900s and
// 00-68 to the 2000s; CorrectCentury fixes the rest against the reference year.
var dayFirstLayouts = []string{
	"2/1/06", "2/1/2006",
	"2-1-06", "2-1-2006",
	"2.1.06", "2.1.2006",
	"2006-01-02", "2006/01/02",
}

// maxDurationSerial bounds the serials read as elapsed time ("[h]:mm"
// cells) rather than calendar date-times.
const maxDurationSerial = 366

// maxDateSerial is 9999-12-31 in the 1900 date system.
const maxDateSerial = 2958465

var headerReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"-", "_",
	".", "",
	"(", "",
	")", "",
)

// ToDecimalHours converts a duration cell to decimal hours.
//
// Blank and "nan" give 0. Numbers are returned as-is. Date-time cells read
// from a serial under maxDurationSerial are elapsed time ("[h]:mm" 37:30 is
// 37.5); other date-time cells give their clock hours. "HH:MM" text gives
// hours plus minutes/60 rounded to two places ("01:30" is 1.5). Anything else is read
// as a float with ',' accepted as the decimal separator; failure gives 0.
// The result is always finite.
func ToDecimalHours(c Cell) float64 {
	switch c.Kind {
	case CellEmpty:
		return 0
	case CellNumber:
		return finite(c.Number)
	case CellDateTime:
		if c.Number > 0 && c.Number < maxDurationSerial {
			return round2(c.Number * 24)
		}
		h, m, _ := c.Time.Clock()
		return round2(float64(h) + float64(m)/60)
	}

	s := strings.TrimSpace(c.Text)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0
	}

	if strings.Contains(s, ":") {
		return clockToHours(s)
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// clockToHours splits on the first ':' and reads the minutes up to any
// further ':'. A leading '-' on the hour negates the whole duration.
func clockToHours(s string) float64 {
	hourPart, rest, _ := strings.Cut(s, ":")
	minutePart, _, _ := strings.Cut(rest, ":")
	hourPart = strings.TrimSpace(hourPart)
	minutePart = strings.TrimSpace(minutePart)

	h, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0
	}
	m := 0
	if minutePart != "" {
		m, err = strconv.Atoi(minutePart)
		if err != nil || m < 0 {
			return 0
		}
	}

	negative := strings.HasPrefix(hourPart, "-")
	if h < 0 {
		h = -h
	}
	hours := round2(float64(h) + float64(m)/60)
	if negative {
		return -hours
	}
	return hours
}

// ToTimeOfDay canonicalizes a clock-time cell to "HH:MM:SS" with seconds forced to 00.
//
// A leading date token is dropped ("2024-01-01 13:45" gives "13:45:00") and hour
// and minute are zero padded ("9:5" gives "09:05:00"). Numeric cells are Excel
// day fractions. Blank, "nan" and unreadable clocks follow the policy:
// ZeroFill gives "00:00:00", NullOnBlank gives Null.
func ToTimeOfDay(c Cell, policy TimePolicy) Value {
	blank := func() Value {
		if policy == NullOnBlank {
			return Null
		}
		return Time("00:00:00")
	}

	switch c.Kind {
	case CellEmpty:
		return blank()
	case CellDateTime:
		return Time(c.Time.Format("15:04") + ":00")
	case CellNumber:
		if math.IsNaN(c.Number) || math.IsInf(c.Number, 0) {
			return blank()
		}
		_, frac := math.Modf(c.Number)
		if frac < 0 {
			frac++
		}
		mins := int(math.Round(frac*24*60)) % (24 * 60)
		return Time(fmt.Sprintf("%02d:%02d:00", mins/60, mins%60))
	}

	s := strings.TrimSpace(c.Text)
	if s == "" || strings.EqualFold(s, "nan") {
		return blank()
	}

	fields := strings.Fields(s)
	token := fields[len(fields)-1]

	hourPart, rest, _ := strings.Cut(token, ":")
	minutePart, _, _ := strings.Cut(rest, ":")

	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 23 {
		return blank()
	}
	m := 0
	if minutePart != "" {
		m, err = strconv.Atoi(minutePart)
		if err != nil || m < 0 || m > 59 {
			return blank()
		}
	}

	return Time(fmt.Sprintf("%02d:%02d:00", h, m))
}

// ToCalendarDate reads a date cell day-first (DD/MM/YY, never MM/DD/YY) and
// applies CorrectCentury against referenceYear. Unreadable input gives Null.
func ToCalendarDate(c Cell, referenceYear int) Value {
	var t time.Time

	switch c.Kind {
	case CellEmpty:
		return Null
	case CellDateTime:
		t = c.Time
	case CellNumber:
		if math.IsNaN(c.Number) || math.IsInf(c.Number, 0) || c.Number < 1 || c.Number > maxDateSerial {
			return Null
		}
		parsed, err := excelize.ExcelDateToTime(c.Number, false)
		if err != nil {
			return Null
		}
		t = parsed
	default:
		parsed, ok := parseDayFirst(c.Text)
		if !ok {
			return Null
		}
		t = parsed
	}

	t = CorrectCentury(t, referenceYear)
	return Date(t.Year(), t.Month(), t.Day())
}

// parseDayFirst parses the first whitespace token of s with the day-first layouts.
// An ISO "T" time suffix is dropped.
func parseDayFirst(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	token := fields[0]
	if i := strings.IndexByte(token, 'T'); i == len("2006-01-02") {
		token = token[:i]
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CorrectCentury moves a date back by 100 years while its year exceeds
// referenceYear, so a two-digit "64" read as 2064 becomes 1964.
// Applying it to its own result is a no-op. A non-positive referenceYear disables it.
func CorrectCentury(t time.Time, referenceYear int) time.Time {
	if referenceYear <= 0 {
		return t
	}
	for t.Year() > referenceYear {
		t = t.AddDate(-100, 0, 0)
	}
	return t
}

// ToText trims a cell and strips spreadsheet artifacts. Blank and "nan" give Null.
func ToText(c Cell) Value {
	s := CleanCell(c.String())
	if s == "" || strings.EqualFold(s, "nan") {
		return Null
	}
	return Text(s)
}

// ToRawString keeps the cell's source text verbatim. Blank gives Null.
func ToRawString(c Cell) Value {
	s := c.String()
	if strings.TrimSpace(s) == "" {
		return Null
	}
	return Text(s)
}

// Coerce applies the kind's coercion rule to a cell.
func Coerce(c Cell, kind FieldKind, policy TimePolicy, referenceYear int) Value {
	switch kind {
	case KindDecimalHours:
		return Decimal(ToDecimalHours(c))
	case KindTimeOfDay:
		return ToTimeOfDay(c, policy)
	case KindCalendarDate:
		return ToCalendarDate(c, referenceYear)
	case KindRawString:
		return ToRawString(c)
	default:
		return ToText(c)
	}
}

// NormalizeHeaderName turns a header label into a matching key:
// "Nome do Voluntário (completo)" becomes "nome_do_voluntario_completo".
func NormalizeHeaderName(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.ToLower(foldAccents(s))
	s = headerReplacer.Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// foldAccents strips combining marks: "Início" becomes "Inicio".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CleanCell removes common spreadsheet export artifacts from a value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
