package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/source"
	"github.com/JonMunkholm/sheetload/internal/trigger"
)

const csvProfile = `
profile "csv_horas" {
  header_skip_rows = 1
  input_prefix     = "entrada/csv/"
  extension        = ".csv"
  destination      = "voluntarios.stg_csv"

  field "nome" {
    header   = "Nome"
    required = true
  }
  field "data" {
    header = "Data"
    kind   = "date"
  }
  field "horas" {
    header = "Horas"
    kind   = "decimal_hours"
  }
}
`

type reportLine struct {
	Status    core.Status `json:"status"`
	Profile   string      `json:"profile"`
	Name      string      `json:"name"`
	DataRows  int         `json:"data_rows"`
	Rejected  int         `json:"rejected"`
	Submitted int         `json:"submitted"`
}

func setupStore(t *testing.T) (root, profiles string) {
	t.Helper()
	root = t.TempDir()
	profiles = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(profiles, "csv.hcl"), []byte(csvProfile), 0o644))

	dir := filepath.Join(root, "uploads", "entrada", "csv")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.csv"), []byte(
		"Nome;Data;Horas\nAna;15/03/64;01:30\n;16/03/24;2\nBruno;07/08/24;2,5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "uploads", "leia-me.txt"), []byte("x"), 0o644))
	return root, profiles
}

func TestRunIngest_DryRun(t *testing.T) {
	root, profiles := setupStore(t)

	var stdout, stderr bytes.Buffer
	err := runIngest(context.Background(),
		&globalOptions{profilesDir: profiles},
		runOptions{root: root, container: "uploads", parallel: 2, referenceYear: 2024, dryRun: true, out: "-"},
		nil, &stdout, &stderr)
	require.NoError(t, err)

	// Records on stdout, one per accepted row.
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	var first struct {
		Destination string         `json:"destination"`
		SheetRow    int            `json:"sheet_row"`
		Record      map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "voluntarios.stg_csv", first.Destination)
	assert.Equal(t, 2, first.SheetRow)
	assert.Equal(t, map[string]any{"nome": "Ana", "data": "1964-03-15", "horas": 1.5}, first.Record)

	// Reports on stderr, in listing order: the csv first, then the unmatched text file.
	dec := json.NewDecoder(&stderr)
	var reports []reportLine
	for dec.More() {
		var r reportLine
		require.NoError(t, dec.Decode(&r))
		reports = append(reports, r)
	}
	require.Len(t, reports, 2)
	assert.Equal(t, reportLine{
		Status: core.StatusPartial, Profile: "csv_horas", Name: "entrada/csv/jan.csv",
		DataRows: 3, Rejected: 1, Submitted: 2,
	}, reports[0])
	assert.Equal(t, core.StatusNoop, reports[1].Status)
}

func TestRunIngest_FatalExitsNonZero(t *testing.T) {
	root, profiles := setupStore(t)
	missing := filepath.Join(root, "uploads", "entrada", "csv", "fev.csv")

	var stdout, stderr bytes.Buffer
	err := runIngest(context.Background(),
		&globalOptions{profilesDir: profiles},
		runOptions{root: root, container: "uploads", parallel: 1, dryRun: true, out: filepath.Join(t.TempDir(), "records.jsonl")},
		[]string{missing}, &stdout, &stderr)

	require.ErrorIs(t, err, errFatalRuns)
	assert.Contains(t, stdout.String(), `"status":"fatal"`)
	assert.Contains(t, stdout.String(), `"code":"SRC002"`)
}

func TestRunIngest_Flags(t *testing.T) {
	g := &globalOptions{}
	var out bytes.Buffer

	err := runIngest(context.Background(), g, runOptions{parallel: 0}, nil, &out, &out)
	assert.ErrorContains(t, err, "--parallel")

	err = runIngest(context.Background(), g, runOptions{parallel: 1, dryRun: true, record: true}, nil, &out, &out)
	assert.ErrorContains(t, err, "--record")
}

func TestCollectNotifications(t *testing.T) {
	root, _ := setupStore(t)
	store := source.NewDirStore(root)

	notes, err := collectNotifications(context.Background(), store, "uploads",
		[]string{filepath.Join(root, "uploads", "entrada", "csv", "jan.csv")})
	require.NoError(t, err)
	assert.Equal(t, []trigger.Notification{trigger.NotificationFor("uploads", "entrada/csv/jan.csv")}, notes)

	_, err = collectNotifications(context.Background(), store, "uploads", []string{t.TempDir()})
	assert.Error(t, err)
}
