package storage

import (
	"time"
)

const (
	RunKindConvert  = "convert"
	RunKindSanitize = "sanitize"
)

// Run is one ledger entry. Identifier counts are stored, never the
// identifiers themselves.
type Run struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Root          string     `json:"root"`
	DryRun        bool       `json:"dry_run"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	FilesTotal    int        `json:"files_total"`
	FilesChanged  int        `json:"files_changed"`
	FilesFailed   int        `json:"files_failed"`
	OrgIDCount    int        `json:"org_id_count"`
	UserIDCount   int        `json:"user_id_count"`
	Substitutions int        `json:"substitutions"`
	Error         string     `json:"error,omitempty"`
}

// RunSummary carries the totals written when a run finishes.
type RunSummary struct {
	FilesTotal    int
	FilesChanged  int
	FilesFailed   int
	OrgIDCount    int
	UserIDCount   int
	Substitutions int
	Error         string
}

type RunFile struct {
	ID            int       `json:"id"`
	RunID         string    `json:"run_id"`
	Path          string    `json:"path"`
	Status        string    `json:"status"`
	Substitutions int       `json:"substitutions"`
	Error         string    `json:"error,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}
