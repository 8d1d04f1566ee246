package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// fakeTx implements the parts of pgx.Tx the sink uses. Calling any other
// method panics on the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	copyErr    error
	insertErr  func(args []any) error
	execs      []string
	copied     [][]any
	inserted   [][]any
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if tx.copyErr != nil {
		return 0, tx.copyErr
	}
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		tx.copied = append(tx.copied, vals)
		n++
	}
	return n, nil
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	if strings.HasPrefix(sql, "INSERT") {
		if tx.insertErr != nil {
			if err := tx.insertErr(args); err != nil {
				return pgconn.CommandTag{}, err
			}
		}
		tx.inserted = append(tx.inserted, args)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx  *fakeTx
	err error
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if db.err != nil {
		return nil, db.err
	}
	return db.tx, nil
}

func records(names ...string) []core.NormalizedRecord {
	recs := make([]core.NormalizedRecord, len(names))
	for i, n := range names {
		recs[i] = core.NormalizedRecord{
			RowIndex: i,
			Fields: []core.FieldValue{
				{Name: "voluntario", Value: core.Text(n)},
				{Name: "horas", Value: core.Decimal(1.5)},
			},
		}
	}
	return recs
}

func TestPostgres_CopySucceeds(t *testing.T) {
	tx := &fakeTx{}
	s := NewPostgres(&fakeDB{tx: tx})

	recErrs, err := s.SubmitRecords(context.Background(), "voluntarios.stg", records("Ana", "Bia"))
	require.NoError(t, err)

	assert.Empty(t, recErrs)
	assert.True(t, tx.committed)
	assert.Len(t, tx.copied, 2)
	assert.Empty(t, tx.inserted)
}

func TestPostgres_FallsBackToRowInserts(t *testing.T) {
	tooLong := &pgconn.PgError{Code: "22001", Message: "value too long for type character varying(5)"}
	tx := &fakeTx{
		copyErr: tooLong,
		insertErr: func(args []any) error {
			if args[0].(pgtype.Text).String == "Bartolomeu" {
				return tooLong
			}
			return nil
		},
	}
	s := NewPostgres(&fakeDB{tx: tx})

	recErrs, err := s.SubmitRecords(context.Background(), "voluntarios.stg", records("Ana", "Bia", "Bartolomeu"))
	require.NoError(t, err)

	require.Len(t, recErrs, 1)
	assert.Equal(t, 2, recErrs[0].Index)
	assert.Contains(t, recErrs[0].Detail, "value too long")
	assert.Contains(t, recErrs[0].Detail, "22001")
	assert.Len(t, tx.inserted, 2)
	assert.True(t, tx.committed)
	assert.Contains(t, tx.execs, "ROLLBACK TO SAVEPOINT bulk_copy")
	assert.Contains(t, tx.execs, "ROLLBACK TO SAVEPOINT sp_2")
}

func TestPostgres_FatalErrors(t *testing.T) {
	t.Run("begin fails", func(t *testing.T) {
		s := NewPostgres(&fakeDB{err: errors.New("connection refused")})
		_, err := s.SubmitRecords(context.Background(), "a.b", records("Ana"))
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("missing table is not row level", func(t *testing.T) {
		tx := &fakeTx{copyErr: &pgconn.PgError{Code: "42P01", Message: `relation "a.b" does not exist`}}
		_, err := NewPostgres(&fakeDB{tx: tx}).SubmitRecords(context.Background(), "a.b", records("Ana"))
		assert.ErrorContains(t, err, "does not exist")
		assert.False(t, tx.committed)
	})

	t.Run("bad destination", func(t *testing.T) {
		_, err := NewPostgres(&fakeDB{tx: &fakeTx{}}).SubmitRecords(context.Background(), "a.b.c", records("Ana"))
		assert.Error(t, err)
	})
}

func TestParseDestination(t *testing.T) {
	id, err := ParseDestination("voluntarios.stg_listagem_horas")
	require.NoError(t, err)
	assert.Equal(t, `"voluntarios"."stg_listagem_horas"`, id.Sanitize())

	id, err = ParseDestination("staging")
	require.NoError(t, err)
	assert.Equal(t, `"staging"`, id.Sanitize())

	for _, bad := range []core.Destination{"", ".x", "x.", "a.b.c"} {
		_, err := ParseDestination(bad)
		assert.Error(t, err, string(bad))
	}
}

func TestInsertSQL(t *testing.T) {
	got := insertSQL(pgx.Identifier{"voluntarios", "stg"}, []string{"voluntario", "horas"})
	assert.Equal(t, `INSERT INTO "voluntarios"."stg" ("voluntario", "horas") VALUES ($1, $2)`, got)
}

func TestPgValue(t *testing.T) {
	assert.Nil(t, PgValue(core.Null))
	assert.Equal(t, pgtype.Text{String: "Ana", Valid: true}, PgValue(core.Text("Ana")))
	assert.Equal(t, pgtype.Float8{Float64: 2.5, Valid: true}, PgValue(core.Decimal(2.5)))
	assert.Equal(t, pgtype.Time{Microseconds: (13*3600 + 45*60) * 1_000_000, Valid: true}, PgValue(core.Time("13:45:00")))
	assert.Equal(t, pgtype.Date{Time: time.Date(1964, 3, 15, 0, 0, 0, 0, time.UTC), Valid: true}, PgValue(core.Date(1964, time.March, 15)))
}

func TestIsRowLevel(t *testing.T) {
	assert.True(t, IsRowLevel(&pgconn.PgError{Code: "22007"}))
	assert.True(t, IsRowLevel(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRowLevel(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, IsRowLevel(errors.New("connection reset")))
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	recs := records("Ana")
	recs[0].SheetRow = 14

	recErrs, err := NewJSONLines(&buf).SubmitRecords(context.Background(), "a.b", recs)
	require.NoError(t, err)
	assert.Empty(t, recErrs)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "a.b", line["destination"])
	assert.Equal(t, float64(14), line["sheet_row"])
	assert.Equal(t, map[string]any{"voluntario": "Ana", "horas": 1.5}, line["record"])
}
