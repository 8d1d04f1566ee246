package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// ReadCSV returns the grid of a CSV export. A UTF-8 BOM is dropped, input
// that is not valid UTF-8 is decoded as Windows-1252 (what Excel writes for
// "CSV" on Portuguese-locale machines) and the delimiter is sniffed from the
// first lines of the file.
func ReadCSV(r io.Reader) (core.RawGrid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	var dec *encoding.Decoder
	if utf8.Valid(data) {
		dec = unicode.UTF8.NewDecoder()
	} else {
		dec = charmap.Windows1252.NewDecoder()
	}
	decoded := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(dec))

	cr := csv.NewReader(decoded)
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var grid core.RawGrid
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		grid = append(grid, textRow(rec))
	}
	return grid, nil
}

func textRow(rec []string) []core.Cell {
	cells := make([]core.Cell, len(rec))
	for i, v := range rec {
		if v != "" {
			cells[i] = core.TextCell(v)
		}
	}
	return cells
}

// sniffLines is how many non-empty lines sniffDelimiter inspects.
const sniffLines = 30

var delimiters = []byte{';', ',', '\t'}

// sniffDelimiter picks the separator that splits the most lines into the same
// number of fields, then the one giving more fields. Lines without the
// separator, such as preamble titles, are not counted.
func sniffDelimiter(data []byte) rune {
	best, bestLines, bestFields := byte(','), 0, 0
	for _, d := range delimiters {
		lines, fields := modalCount(data, d)
		if lines > bestLines || (lines == bestLines && fields > bestFields) {
			best, bestLines, bestFields = d, lines, fields
		}
	}
	return rune(best)
}

// modalCount returns how many of the first sniffLines non-empty lines share
// the most common non-zero count of d, and that count.
func modalCount(data []byte, d byte) (lines, count int) {
	freq := make(map[int]int)
	seen := 0
	for len(data) > 0 && seen < sniffLines {
		var line []byte
		line, data, _ = bytes.Cut(data, []byte("\n"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		seen++
		if n := bytes.Count(line, []byte{d}); n > 0 {
			freq[n]++
		}
	}
	for n, l := range freq {
		if l > lines || (l == lines && n > count) {
			lines, count = l, n
		}
	}
	return lines, count
}
