// Package core turns raw timesheet grids into typed records and reports what
// happened to every row.
//
// It holds the domain logic only; reading workbooks, writing to the
// warehouse and receiving notifications live in sibling packages behind the
// [GridSource] and [Sink] interfaces.
//
// # Profiles
//
// A [Profile] describes one workbook layout: the sheet, how many preamble
// rows precede the data, the [Mapping] from source columns to destination
// fields, the [TimePolicy] and the [Destination]. Profiles are registered in
// a [Registry], which also decides which profile admits an uploaded object:
//
//	registry, _ := core.NewRegistry(core.Profile{
//	    Name:           "listagem_horas",
//	    Sheet:          "Listagem de Horas",
//	    HeaderSkipRows: 12,
//	    InputPrefix:    "entrada/horas/",
//	    Extension:      ".xlsx",
//	    Destination:    "voluntarios.stg_listagem_horas",
//	    Mapping: core.NewMapping(
//	        core.FieldSpec{Target: "voluntario", Source: core.Column(7), Required: true},
//	    ),
//	})
//
// # Normalization
//
// [Normalizer.Normalize] walks the data region in order. Each row is resolved
// by the [ColumnMapper], checked by the [RowValidator] and coerced field by
// field with [Coerce]. Rejected rows become [RejectionEntry] values and never
// stop the pass. Coercion is total: a dirty cell degrades to its documented
// fallback (0, Null or "00:00:00") instead of failing.
//
// # Submission
//
// [Submit] hands the accepted records to a [Sink] and folds the answer into a
// [BatchOutcome] that separates per-record failures from a failed batch.
// [Pipeline.Run] performs fetch, normalize and submit for one object and
// returns a [Run] whose [Run.Status] is one of noop, empty, success, partial
// or fatal.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// category has a code for support reference:
//
//   - SRC001-SRC003: the object or sheet could not be read
//   - SNK001-SNK004: the warehouse rejected or could not take the batch
//   - MAP001-MAP003: profile lookup and mapping errors
//   - INV001-INV003: invocation limits, cancellation and timeouts
package core
