package core

import (
	"fmt"
	"strings"
)

// Profile describes one workbook layout: where its data starts, how columns
// map to the destination schema and which objects it admits.
type Profile struct {
	Name           string      `json:"name"`
	Sheet          string      `json:"sheet"`
	HeaderSkipRows int         `json:"header_skip_rows"`
	Mapping        Mapping     `json:"mapping"`
	TimePolicy     TimePolicy  `json:"time_policy"`
	Destination    Destination `json:"destination"`
	InputPrefix    string      `json:"input_prefix,omitempty"`
	Extension      string      `json:"extension,omitempty"`
	SkipBlankRows  bool        `json:"skip_blank_rows,omitempty"`
}

// Validate checks everything a profile needs before it can be registered.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: profile has no name", ErrInvalidMapping)
	}
	if strings.TrimSpace(string(p.Destination)) == "" {
		return fmt.Errorf("%w: profile %q has no destination", ErrInvalidMapping, p.Name)
	}
	if p.Extension != "" && !strings.HasPrefix(p.Extension, ".") {
		return fmt.Errorf("%w: profile %q extension %q must start with '.'", ErrInvalidMapping, p.Name, p.Extension)
	}
	return p.validateLayout()
}

// validateLayout is the subset of Validate that normalization depends on.
func (p Profile) validateLayout() error {
	if p.HeaderSkipRows < 0 {
		return fmt.Errorf("%w: negative header_skip_rows %d", ErrInvalidMapping, p.HeaderSkipRows)
	}
	if err := p.Mapping.Validate(); err != nil {
		return err
	}
	if p.Mapping.UsesHeaders() && p.HeaderSkipRows < 1 {
		return fmt.Errorf("%w: header-based fields need header_skip_rows >= 1", ErrInvalidMapping)
	}
	return nil
}

// Admits reports whether an object path is under the profile's prefix and
// carries its extension. Extensions compare case-insensitively.
func (p Profile) Admits(path string) bool {
	if !strings.HasPrefix(path, p.InputPrefix) {
		return false
	}
	if p.Extension == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(path), strings.ToLower(p.Extension))
}
