package export

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcrkit/config"
	"vcrkit/storage"
)

func setup(t *testing.T, compress bool) (*ExportManager, *storage.Database, string) {
	t.Helper()

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	run, err := db.CreateRun(storage.RunKindSanitize, "/fixtures", false)
	require.NoError(t, err)
	require.NoError(t, db.RecordRunFile(&storage.RunFile{RunID: run.ID, Path: "a.json", Status: "sanitized", Substitutions: 4}))
	require.NoError(t, db.RecordRunFile(&storage.RunFile{RunID: run.ID, Path: "b.json", Status: "unchanged"}))
	require.NoError(t, db.FinishRun(run.ID, storage.RunSummary{FilesTotal: 2, FilesChanged: 1, OrgIDCount: 1, Substitutions: 4}))

	cfg := config.DefaultConfig()
	cfg.Export.Compress = compress
	return NewExportManager(cfg, db), db, run.ID
}

func TestExportRunRoundTrip(t *testing.T) {
	manager, _, runID := setup(t, false)
	out := filepath.Join(t.TempDir(), "reports", "run.json")

	require.NoError(t, manager.ExportRun(runID, out))

	report, err := ReadReport(out)
	require.NoError(t, err)
	assert.Equal(t, ReportVersion, report.Version)
	assert.Equal(t, runID, report.Run.ID)
	assert.Equal(t, 4, report.Run.Substitutions)
	require.Len(t, report.Files, 2)
	assert.Equal(t, "a.json", report.Files[0].Path)
	assert.Equal(t, 4, report.Files[0].Substitutions)
}

func TestExportRunGzip(t *testing.T) {
	manager, _, runID := setup(t, false)
	out := filepath.Join(t.TempDir(), "run.json.gz")

	require.NoError(t, manager.ExportRun(runID, out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	_, err = gzip.NewReader(f)
	require.NoError(t, err, "output should be gzip")

	report, err := ReadReport(out)
	require.NoError(t, err)
	assert.Equal(t, runID, report.Run.ID)
}

func TestExportRunCompressByConfig(t *testing.T) {
	manager, _, runID := setup(t, true)
	out := filepath.Join(t.TempDir(), "run.json")

	require.NoError(t, manager.ExportRun(runID, out))

	report, err := ReadReport(out)
	require.NoError(t, err)
	assert.Len(t, report.Files, 2)
}

func TestExportRunUnknownRun(t *testing.T) {
	manager, _, _ := setup(t, false)

	err := manager.ExportRun("missing", filepath.Join(t.TempDir(), "x.json"))
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestImportRunReplacesLedgerEntry(t *testing.T) {
	manager, db, runID := setup(t, false)
	out := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, manager.ExportRun(runID, out))

	require.NoError(t, db.ClearAllRuns())

	run, err := manager.ImportRun(out)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)

	got, err := db.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "/fixtures", got.Root)
	assert.NotNil(t, got.FinishedAt)

	files, err := db.GetRunFiles(runID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// Importing twice keeps a single copy.
	_, err = manager.ImportRun(out)
	require.NoError(t, err)
	files, err = db.GetRunFiles(runID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestReadReportRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no-version.json":   `{"run": {"id": "x", "kind": "sanitize"}}`,
		"bad-version.json":  `{"version": "9", "run": {"id": "x", "kind": "sanitize"}}`,
		"no-id.json":        `{"version": "1.0", "run": {"kind": "sanitize"}}`,
		"bad-kind.json":     `{"version": "1.0", "run": {"id": "x", "kind": "record"}}`,
		"file-no-path.json": `{"version": "1.0", "run": {"id": "x", "kind": "convert"}, "files": [{"status": "ok"}]}`,
		"garbage.json":      `not json`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := ReadReport(path)
			assert.Error(t, err)
		})
	}
}
