package core

import "context"

type contextKey string

const ctxKeyReferenceYear contextKey = "reference_year"

// ContextWithReferenceYear overrides the century-correction reference year
// for pipeline runs under ctx. Backfills of old workbooks use it.
func ContextWithReferenceYear(ctx context.Context, year int) context.Context {
	return context.WithValue(ctx, ctxKeyReferenceYear, year)
}

// ReferenceYearFromContext returns the override, or 0 when none is set.
func ReferenceYearFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(ctxKeyReferenceYear).(int); ok {
		return v
	}
	return 0
}
