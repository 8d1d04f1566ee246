// Package source turns stored spreadsheet objects into core.RawGrid values.
//
// Workbooks (.xlsx, .xlsm) are read with excelize and keep their cell types:
// numbers stay numbers and date-formatted cells become date-time cells.
// CSV exports are decoded to UTF-8 and every cell is text.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// DefaultMaxObjectBytes caps how much of one object is read into memory.
const DefaultMaxObjectBytes = 50 << 20

// Source implements core.GridSource over a Store.
type Source struct {
	store    Store
	maxBytes int64
}

// Option configures a Source.
type Option func(*Source)

// WithMaxObjectBytes overrides DefaultMaxObjectBytes.
func WithMaxObjectBytes(n int64) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New returns a grid source reading from store.
func New(store Store, opts ...Option) *Source {
	s := &Source{store: store, maxBytes: DefaultMaxObjectBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchGrid reads the object at loc and returns the named sheet's grid.
// Every failure wraps core.ErrSourceUnavailable.
func (s *Source) FetchGrid(ctx context.Context, loc core.Locator) (core.RawGrid, error) {
	data, err := s.read(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err)
	}

	var grid core.RawGrid
	switch ext := strings.ToLower(path.Ext(loc.Path)); ext {
	case ".xlsx", ".xlsm":
		grid, err = ReadWorkbook(bytes.NewReader(data), loc.Sheet)
	case ".csv", ".txt":
		grid, err = ReadCSV(bytes.NewReader(data))
	default:
		err = fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSourceUnavailable, loc, err)
	}
	return grid, nil
}

func (s *Source) read(ctx context.Context, loc core.Locator) ([]byte, error) {
	rc, err := s.store.Open(ctx, loc.Container, loc.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%s: file too large (limit %d bytes)", loc, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty file", loc)
	}
	return data, nil
}
