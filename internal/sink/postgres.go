// Package sink implements core.Sink for the destinations the ingest loads into.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres bulk-loads records into "schema.table" destinations.
//
// The whole batch goes in with one COPY inside a transaction. If Postgres
// rejects a row for its data (SQLSTATE class 22 or 23) the COPY is undone
// and the rows are inserted one by one under savepoints, so every good row is
// stored and each bad row is reported with the server's message. Any other
// error fails the batch and nothing is stored.
type Postgres struct {
	db Beginner
}

// NewPostgres returns a sink writing through db.
func NewPostgres(db Beginner) *Postgres {
	return &Postgres{db: db}
}

// SubmitRecords implements core.Sink.
func (p *Postgres) SubmitRecords(ctx context.Context, dest core.Destination, records []core.NormalizedRecord) ([]core.RecordError, error) {
	if len(records) == 0 {
		return nil, nil
	}

	table, err := ParseDestination(dest)
	if err != nil {
		return nil, err
	}

	columns := records[0].Columns()
	rows := make([][]any, len(records))
	for i, rec := range records {
		if len(rec.Fields) != len(columns) {
			return nil, fmt.Errorf("record %d has %d fields, want %d", i, len(rec.Fields), len(columns))
		}
		rows[i] = PgValues(rec)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, "SAVEPOINT bulk_copy"); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}

	_, copyErr := tx.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
	if copyErr == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, nil
	}
	if !IsRowLevel(copyErr) {
		return nil, fmt.Errorf("copy into %s: %w", table.Sanitize(), copyErr)
	}

	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT bulk_copy"); err != nil {
		return nil, fmt.Errorf("rollback bulk copy: %w", err)
	}

	recErrs, err := insertEach(ctx, tx, insertSQL(table, columns), rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return recErrs, nil
}

// insertEach inserts rows one at a time, each under its own savepoint because
// Postgres aborts the whole transaction on any error.
func insertEach(ctx context.Context, tx pgx.Tx, sql string, rows [][]any) ([]core.RecordError, error) {
	var recErrs []core.RecordError

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled at record %d: %w", i, err)
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint at record %d: %w", i, err)
		}

		_, err := tx.Exec(ctx, sql, row...)
		if err != nil {
			if !IsRowLevel(err) {
				return nil, fmt.Errorf("insert record %d: %w", i, err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint at record %d: %w", i, rbErr)
			}
			recErrs = append(recErrs, core.RecordError{Index: i, Detail: errorDetail(err)})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint at record %d: %w", i, err)
		}
	}
	return recErrs, nil
}

// ParseDestination splits "schema.table" (or a bare "table") into an identifier.
func ParseDestination(dest core.Destination) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(string(dest)), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid destination %q: want schema.table", dest)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("invalid destination %q: empty name", dest)
		}
	}
	return pgx.Identifier(parts), nil
}

func insertSQL(table pgx.Identifier, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Sanitize(), strings.Join(quoted, ", "), strings.Join(params, ", "))
}

// PgValues converts a record's fields to pgx values in column order.
func PgValues(rec core.NormalizedRecord) []any {
	vals := make([]any, len(rec.Fields))
	for i, f := range rec.Fields {
		vals[i] = PgValue(f.Value)
	}
	return vals
}

// PgValue converts one value: text to pgtype.Text, decimals to pgtype.Float8,
// clock times to pgtype.Time, dates to pgtype.Date and Null to nil.
func PgValue(v core.Value) any {
	switch v.Kind {
	case core.ValueText:
		return pgtype.Text{String: v.Text, Valid: true}
	case core.ValueDecimal:
		return pgtype.Float8{Float64: v.Decimal, Valid: true}
	case core.ValueTime:
		us, ok := clockMicros(v.Text)
		if !ok {
			return pgtype.Time{}
		}
		return pgtype.Time{Microseconds: us, Valid: true}
	case core.ValueDate:
		return pgtype.Date{Time: v.Date, Valid: true}
	default:
		return nil
	}
}

func clockMicros(hhmmss string) (int64, bool) {
	var h, m, s int
	if _, err := fmt.Sscanf(hhmmss, "%02d:%02d:%02d", &h, &m, &s); err != nil {
		return 0, false
	}
	return (int64(h)*3600 + int64(m)*60 + int64(s)) * 1_000_000, true
}

// IsRowLevel reports whether err is Postgres rejecting the data of a row
// (data exception or integrity constraint violation) rather than the batch.
func IsRowLevel(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}

func errorDetail(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += ": " + pgErr.Detail
		}
		if pgErr.ColumnName != "" {
			msg += " (column " + pgErr.ColumnName + ")"
		}
		return msg + " (SQLSTATE " + pgErr.Code + ")"
	}
	return err.Error()
}
