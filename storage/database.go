package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrRunNotFound = errors.New("run not found")

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	if len(dbPath) == 0 {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	// Expand tilde in path
	if dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the web service read the ledger while a run is writing it.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	database := &Database{db: db}
	if err := database.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return database, nil
}

func (d *Database) createTables() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK(kind IN ('convert', 'sanitize')),
		root TEXT,
		dry_run INTEGER DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		files_total INTEGER DEFAULT 0,
		files_changed INTEGER DEFAULT 0,
		files_failed INTEGER DEFAULT 0,
		org_id_count INTEGER DEFAULT 0,
		user_id_count INTEGER DEFAULT 0,
		substitutions INTEGER DEFAULT 0,
		error TEXT
	);`

	runFilesTable := `
	CREATE TABLE IF NOT EXISTS run_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		substitutions INTEGER DEFAULT 0,
		error TEXT,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);`

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);",
		"CREATE INDEX IF NOT EXISTS idx_run_files_run ON run_files(run_id, id);",
	}

	if _, err := d.db.Exec(runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	if _, err := d.db.Exec(runFilesTable); err != nil {
		return fmt.Errorf("failed to create run_files table: %w", err)
	}

	for _, index := range indexes {
		if _, err := d.db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) CreateRun(kind, root string, dryRun bool) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Root:      root,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}

	query := `INSERT INTO runs (id, kind, root, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := d.db.Exec(query, run.ID, run.Kind, run.Root, run.DryRun, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

func (d *Database) FinishRun(id string, summary RunSummary) error {
	query := `
		UPDATE runs SET
			finished_at = ?, files_total = ?, files_changed = ?, files_failed = ?,
			org_id_count = ?, user_id_count = ?, substitutions = ?, error = ?
		WHERE id = ?`

	result, err := d.db.Exec(query,
		time.Now().UTC(),
		summary.FilesTotal,
		summary.FilesChanged,
		summary.FilesFailed,
		summary.OrgIDCount,
		summary.UserIDCount,
		summary.Substitutions,
		summary.Error,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finished run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (d *Database) RecordRunFile(file *RunFile) error {
	file.RecordedAt = time.Now().UTC()

	query := `INSERT INTO run_files (run_id, path, status, substitutions, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := d.db.Exec(query, file.RunID, file.Path, file.Status, file.Substitutions, file.Error, file.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record run file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run file ID: %w", err)
	}
	file.ID = int(id)

	return nil
}

const runColumns = `id, kind, root, dry_run, started_at, finished_at, files_total, files_changed,
	files_failed, org_id_count, user_id_count, substitutions, error`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var root, runErr sql.NullString
	var finished sql.NullTime

	err := s.Scan(&run.ID, &run.Kind, &root, &run.DryRun, &run.StartedAt, &finished,
		&run.FilesTotal, &run.FilesChanged, &run.FilesFailed,
		&run.OrgIDCount, &run.UserIDCount, &run.Substitutions, &runErr)
	if err != nil {
		return nil, err
	}

	run.Root = root.String
	run.Error = runErr.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (d *Database) GetRun(id string) (*Run, error) {
	row := d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (d *Database) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func (d *Database) GetRunFiles(runID string) ([]RunFile, error) {
	query := `SELECT id, run_id, path, status, substitutions, error, recorded_at FROM run_files WHERE run_id = ? ORDER BY id`
	rows, err := d.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	defer rows.Close()

	var files []RunFile
	for rows.Next() {
		var file RunFile
		var fileErr sql.NullString
		if err := rows.Scan(&file.ID, &file.RunID, &file.Path, &file.Status, &file.Substitutions, &fileErr, &file.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run file: %w", err)
		}
		file.Error = fileErr.String
		files = append(files, file)
	}

	return files, rows.Err()
}

func (d *Database) DeleteRun(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_files WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run files: %w", err)
	}

	result, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return tx.Commit()
}

func (d *Database) ClearAllRuns() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_files"); err != nil {
		return fmt.Errorf("failed to delete run files: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM runs"); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}

	return tx.Commit()
}

// ImportRun stores a run and its files as given, replacing any run with the
// same id.
func (d *Database) ImportRun(run Run, files []RunFile) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_files WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to delete run files: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM runs WHERE id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.Exec(query,
		run.ID, run.Kind, run.Root, run.DryRun, run.StartedAt, run.FinishedAt,
		run.FilesTotal, run.FilesChanged, run.FilesFailed,
		run.OrgIDCount, run.UserIDCount, run.Substitutions, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range files {
		_, err := tx.Exec(`INSERT INTO run_files (run_id, path, status, substitutions, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, f.Path, f.Status, f.Substitutions, f.Error, f.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to insert run file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}
