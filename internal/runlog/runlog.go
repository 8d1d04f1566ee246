// Package runlog persists one row per pipeline invocation.
//
// The ledger answers two questions for the harness: what happened to an
// object (GET /runs, the CLI report) and whether an object was already
// loaded (the inbox sweep skips those).
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS sheetload;

CREATE TABLE IF NOT EXISTS sheetload.runs (
	run_id      uuid PRIMARY KEY,
	profile     text        NOT NULL,
	container   text        NOT NULL,
	object_path text        NOT NULL,
	sheet       text        NOT NULL DEFAULT '',
	status      text        NOT NULL,
	data_rows   integer     NOT NULL DEFAULT 0,
	rejected    integer     NOT NULL DEFAULT 0,
	submitted   integer     NOT NULL DEFAULT 0,
	accepted    integer     NOT NULL DEFAULT 0,
	rejections  jsonb,
	failures    jsonb,
	error       text,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_object_idx ON sheetload.runs (container, object_path);
CREATE INDEX IF NOT EXISTS runs_started_idx ON sheetload.runs (started_at DESC);
`

const insertRunSQL = `
INSERT INTO sheetload.runs (
	run_id, profile, container, object_path, sheet, status,
	data_rows, rejected, submitted, accepted,
	rejections, failures, error, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// An object counts as loaded once a non-fatal run has been recorded for it.
const seenSQL = `
SELECT EXISTS (
	SELECT 1 FROM sheetload.runs
	WHERE container = $1 AND object_path = $2 AND status <> 'fatal'
)`

const recentSQL = `
SELECT run_id, profile, container, object_path, status,
	data_rows, rejected, submitted, accepted, COALESCE(error, ''), started_at, finished_at
FROM sheetload.runs
ORDER BY started_at DESC
LIMIT $1`

// Entry is one recorded run as listed by Recent.
type Entry struct {
	RunID      string    `json:"run_id"`
	Profile    string    `json:"profile"`
	Container  string    `json:"container"`
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	DataRows   int       `json:"data_rows"`
	Rejected   int       `json:"rejected"`
	Submitted  int       `json:"submitted"`
	Accepted   int       `json:"accepted"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store reads and writes the run ledger.
type Store struct {
	db DBTX
}

// New returns a store over db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create run log schema: %w", err)
	}
	return nil
}

// Record stores one finished run.
func (s *Store) Record(ctx context.Context, run *core.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", run.ID, err)
	}

	var (
		dataRows   int
		rejections []byte
		failures   []byte
		errText    pgtype.Text
	)
	if run.Result != nil {
		dataRows = run.Result.DataRows
		if len(run.Result.Rejections) > 0 {
			if rejections, err = json.Marshal(run.Result.Rejections); err != nil {
				return fmt.Errorf("marshal rejections: %w", err)
			}
		}
	}
	if len(run.Outcome.Failures) > 0 {
		if failures, err = json.Marshal(run.Outcome.Failures); err != nil {
			return fmt.Errorf("marshal failures: %w", err)
		}
	}
	if run.Err != nil {
		errText = pgtype.Text{String: run.Err.Error(), Valid: true}
	}

	_, err = s.db.Exec(ctx, insertRunSQL,
		pgtype.UUID{Bytes: id, Valid: true},
		run.Profile,
		run.Locator.Container,
		run.Locator.Path,
		run.Locator.Sheet,
		string(run.Status()),
		dataRows,
		run.Rejected(),
		run.Outcome.Submitted,
		run.Outcome.Accepted,
		rejections,
		failures,
		errText,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Seen reports whether the object already has a non-fatal run.
func (s *Store) Seen(ctx context.Context, container, objectPath string) (bool, error) {
	var seen bool
	if err := s.db.QueryRow(ctx, seenSQL, container, objectPath).Scan(&seen); err != nil {
		return false, fmt.Errorf("look up %s/%s: %w", container, objectPath, err)
	}
	return seen, nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e  Entry
			id pgtype.UUID
		)
		err := row.Scan(&id, &e.Profile, &e.Container, &e.Path, &e.Status,
			&e.DataRows, &e.Rejected, &e.Submitted, &e.Accepted, &e.Error, &e.StartedAt, &e.FinishedAt)
		if err != nil {
			return e, err
		}
		e.RunID = uuid.UUID(id.Bytes).String()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return entries, nil
}
