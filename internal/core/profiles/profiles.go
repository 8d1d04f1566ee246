// Package profiles holds the built-in workbook layouts.
//
// Each function returns one core.Profile. Builtin lists them all so the
// server and the CLI can seed a registry before loading profile files.
package profiles

import "github.com/JonMunkholm/sheetload/internal/core"

// TimesheetPrefix is where the hours listings are uploaded.
const TimesheetPrefix = "entrada/horas/"

// Builtin returns every built-in profile.
func Builtin() []core.Profile {
	return []core.Profile{
		ListagemHoras(),
		ListagemHorasDetalhada(),
		RegistroAtividades(),
	}
}

// Register adds the built-in profiles to r.
func Register(r *core.Registry) error {
	for _, p := range Builtin() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// ListagemHoras is the volunteer roster export: twelve rows of report
// preamble, then positional columns. Rows without a volunteer name are dropped.
func ListagemHoras() core.Profile {
	return core.Profile{
		Name:           "listagem_horas",
		Sheet:          "Listagem de Horas",
		HeaderSkipRows: 12,
		InputPrefix:    TimesheetPrefix,
		Extension:      ".xlsx",
		Destination:    "voluntarios.stg_listagem_horas",
		Mapping: core.NewMapping(
			core.FieldSpec{Source: core.Column(0), Target: "localidade"},
			core.FieldSpec{Source: core.Column(2), Target: "livro"},
			core.FieldSpec{Source: core.Column(7), Target: "voluntario", Required: true},
			core.FieldSpec{Source: core.Column(8), Target: "cpf"},
		),
	}
}

// ListagemHorasDetalhada is the revision of the roster that adds the
// activity date, worked hours and the start and end clock times.
func ListagemHorasDetalhada() core.Profile {
	return core.Profile{
		Name:           "listagem_horas_detalhada",
		Sheet:          "Listagem de Horas",
		HeaderSkipRows: 12,
		InputPrefix:    TimesheetPrefix + "detalhada/",
		Extension:      ".xlsx",
		Destination:    "voluntarios.stg_listagem_horas_detalhada",
		TimePolicy:     core.ZeroFill,
		SkipBlankRows:  true,
		Mapping: core.NewMapping(
			core.FieldSpec{Source: core.Column(0), Target: "localidade"},
			core.FieldSpec{Source: core.Column(2), Target: "livro"},
			core.FieldSpec{Source: core.Column(3), Target: "data", Kind: core.KindCalendarDate},
			core.FieldSpec{Source: core.Column(4), Target: "hora_inicio", Kind: core.KindTimeOfDay},
			core.FieldSpec{Source: core.Column(5), Target: "hora_fim", Kind: core.KindTimeOfDay},
			core.FieldSpec{Source: core.Column(6), Target: "horas", Kind: core.KindDecimalHours},
			core.FieldSpec{Source: core.Column(7), Target: "voluntario", Required: true},
			core.FieldSpec{Source: core.Column(8), Target: "cpf", Kind: core.KindRawString},
		),
	}
}

// RegistroAtividades is the activity log kept by hand. Columns move between
// revisions, so fields resolve by header name. Its clock columns are nullable.
func RegistroAtividades() core.Profile {
	return core.Profile{
		Name:           "registro_atividades",
		Sheet:          "Registro",
		HeaderSkipRows: 1,
		InputPrefix:    "entrada/atividades/",
		Extension:      ".xlsx",
		Destination:    "voluntarios.stg_registro_atividades",
		TimePolicy:     core.NullOnBlank,
		SkipBlankRows:  true,
		Mapping: core.NewMapping(
			core.FieldSpec{Source: core.Header("Data"), Target: "data", Kind: core.KindCalendarDate, Required: true},
			core.FieldSpec{Source: core.Header("Voluntário"), Target: "voluntario", Required: true},
			core.FieldSpec{Source: core.Header("Atividade"), Target: "atividade"},
			core.FieldSpec{Source: core.Header("Hora Início"), Target: "hora_inicio", Kind: core.KindTimeOfDay},
			core.FieldSpec{Source: core.Header("Hora Fim"), Target: "hora_fim", Kind: core.KindTimeOfDay},
			core.FieldSpec{Source: core.Header("Total (h)"), Target: "horas", Kind: core.KindDecimalHours},
			core.FieldSpec{Source: core.Header("Observações"), Target: "observacoes"},
		),
	}
}
