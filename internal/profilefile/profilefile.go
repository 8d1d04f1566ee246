// Package profilefile loads workbook profiles from HCL files, so a new
// spreadsheet revision can be supported without a rebuild.
//
//	profile "listagem_horas_2025" {
//	  sheet            = "Listagem de Horas"
//	  header_skip_rows = 12
//	  input_prefix     = "entrada/horas/2025/"
//	  extension        = ".xlsx"
//	  destination      = "voluntarios.stg_listagem_horas"
//	  time_policy      = "null_on_blank"
//
//	  field "voluntario" {
//	    column   = 7
//	    required = true
//	  }
//	  field "data" {
//	    header = "Data"
//	    kind   = "date"
//	  }
//	}
package profilefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/core/profiles"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

type hclFile struct {
	Profiles []*hclProfile `hcl:"profile,block"`
}

type hclProfile struct {
	Name           string      `hcl:"name,label"`
	Sheet          string      `hcl:"sheet,optional"`
	HeaderSkipRows int         `hcl:"header_skip_rows,optional"`
	InputPrefix    string      `hcl:"input_prefix,optional"`
	Extension      string      `hcl:"extension,optional"`
	Destination    string      `hcl:"destination"`
	TimePolicy     string      `hcl:"time_policy,optional"`
	SkipBlankRows  bool        `hcl:"skip_blank_rows,optional"`
	Fields         []*hclField `hcl:"field,block"`
}

type hclField struct {
	Target   string  `hcl:"target,label"`
	Column   *int    `hcl:"column,optional"`
	Header   *string `hcl:"header,optional"`
	Kind     string  `hcl:"kind,optional"`
	Required bool    `hcl:"required,optional"`
}

// LoadDir parses every .hcl file under dir, in path order.
// An empty dir means no profile files and returns nil.
func LoadDir(ctx context.Context, dir string) ([]core.Profile, error) {
	if dir == "" {
		return nil, nil
	}
	logger := logging.FromContext(ctx)

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find profile files in %s: %w", dir, err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		logger.Warn("no .hcl profile files found", "path", dir)
		return nil, nil
	}

	parser := hclparse.NewParser()
	var profiles []core.Profile
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse profile file %s: %w", file, diags)
		}
		ps, err := decode(f.Body, file)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded profile file", "path", file, "profiles", len(ps))
		profiles = append(profiles, ps...)
	}
	return profiles, nil
}

// Parse decodes profiles from HCL source. filename is only used in messages.
func Parse(src []byte, filename string) ([]core.Profile, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse profile file %s: %w", filename, diags)
	}
	return decode(f.Body, filename)
}

func decode(body hcl.Body, filename string) ([]core.Profile, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode profile file %s: %w", filename, diags)
	}

	profiles := make([]core.Profile, 0, len(parsed.Profiles))
	for _, hp := range parsed.Profiles {
		p, err := hp.toProfile()
		if err != nil {
			return nil, fmt.Errorf("%s: profile %q: %w", filename, hp.Name, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (hp *hclProfile) toProfile() (core.Profile, error) {
	policy, err := core.ParseTimePolicy(hp.TimePolicy)
	if err != nil {
		return core.Profile{}, err
	}

	fields := make([]core.FieldSpec, 0, len(hp.Fields))
	var errs []error
	for _, hf := range hp.Fields {
		spec, err := hf.toFieldSpec()
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", hf.Target, err))
			continue
		}
		fields = append(fields, spec)
	}
	if len(errs) > 0 {
		return core.Profile{}, errors.Join(errs...)
	}

	p := core.Profile{
		Name:           hp.Name,
		Sheet:          hp.Sheet,
		HeaderSkipRows: hp.HeaderSkipRows,
		InputPrefix:    hp.InputPrefix,
		Extension:      hp.Extension,
		Destination:    core.Destination(hp.Destination),
		TimePolicy:     policy,
		SkipBlankRows:  hp.SkipBlankRows,
		Mapping:        core.NewMapping(fields...),
	}
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	return p, nil
}

func (hf *hclField) toFieldSpec() (core.FieldSpec, error) {
	kind := core.KindText
	if hf.Kind != "" {
		k, err := core.ParseFieldKind(hf.Kind)
		if err != nil {
			return core.FieldSpec{}, err
		}
		kind = k
	}

	spec := core.FieldSpec{Target: hf.Target, Kind: kind, Required: hf.Required}
	switch {
	case hf.Column != nil && hf.Header != nil:
		return core.FieldSpec{}, errors.New("set column or header, not both")
	case hf.Column != nil:
		spec.Source = core.Column(*hf.Column)
	case hf.Header != nil && strings.TrimSpace(*hf.Header) != "":
		spec.Source = core.Header(*hf.Header)
	default:
		return core.FieldSpec{}, errors.New("needs a column or a header")
	}
	return spec, nil
}

// LoadRegistry registers the built-in profiles followed by those in dir.
// A file profile may not reuse a built-in name.
func LoadRegistry(ctx context.Context, dir string) (*core.Registry, error) {
	registry, err := core.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := profiles.Register(registry); err != nil {
		return nil, fmt.Errorf("register built-in profiles: %w", err)
	}

	loaded, err := LoadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
