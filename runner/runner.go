// Package runner executes convert and sanitize runs and records each one in
// the run ledger when a ledger is configured.
package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/convert"
	"vcrkit/logger"
	"vcrkit/sanitize"
	"vcrkit/storage"
)

// Event is a progress notification emitted while a run executes.
type Event struct {
	Type          string `json:"type"`
	RunID         string `json:"run_id,omitempty"`
	Kind          string `json:"kind"`
	Path          string `json:"path,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
	Files         int    `json:"files,omitempty"`
	OrgIDs        int    `json:"org_ids,omitempty"`
	UserIDs       int    `json:"user_ids,omitempty"`
	Substitutions int    `json:"substitutions,omitempty"`
}

const (
	EventRunStarted  = "run_started"
	EventDiscovery   = "discovery_completed"
	EventFile        = "file_processed"
	EventRunFinished = "run_finished"
)

type EventFunc func(Event)

// Runner serialises runs so only one touches the fixture tree at a time.
type Runner struct {
	config   *config.Config
	database *storage.Database
	logger   *zap.Logger
	mu       sync.Mutex
}

// New creates a runner. db may be nil, in which case nothing is recorded.
func New(cfg *config.Config, db *storage.Database, log *zap.Logger) *Runner {
	return &Runner{
		config:   cfg,
		database: db,
		logger:   logger.OrNop(log).Named("runner"),
	}
}

// SanitizeResult pairs the engine report with its ledger id.
type SanitizeResult struct {
	RunID  string              `json:"run_id,omitempty"`
	Report *sanitize.RunReport `json:"report"`
}

type ConvertResult struct {
	RunID  string               `json:"run_id,omitempty"`
	Report *convert.BatchReport `json:"report"`
}

func (r *Runner) Sanitize(ctx context.Context, root string, dryRun bool, onEvent EventFunc) (*SanitizeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID := r.startRun(storage.RunKindSanitize, root, dryRun)
	emit(onEvent, Event{Type: EventRunStarted, RunID: runID, Kind: storage.RunKindSanitize})

	obs := &ledgerObserver{runner: r, runID: runID, onEvent: onEvent}
	engine := sanitize.NewEngine(r.config.Sanitize, r.logger, sanitize.WithObserver(obs))

	report, err := engine.Run(ctx, root, dryRun)

	summary := storage.RunSummary{}
	if report != nil {
		summary = storage.RunSummary{
			FilesTotal:    len(report.Files),
			FilesChanged:  report.Sanitized(),
			FilesFailed:   report.Failed(),
			OrgIDCount:    len(report.OrgIDs),
			UserIDCount:   len(report.UserIDs),
			Substitutions: report.Substitutions,
		}
	}
	if err != nil {
		summary.Error = err.Error()
	}
	r.finishRun(runID, summary)
	emit(onEvent, Event{
		Type:          EventRunFinished,
		RunID:         runID,
		Kind:          storage.RunKindSanitize,
		Files:         summary.FilesTotal,
		OrgIDs:        summary.OrgIDCount,
		UserIDs:       summary.UserIDCount,
		Substitutions: summary.Substitutions,
		Error:         summary.Error,
	})

	return &SanitizeResult{RunID: runID, Report: report}, err
}

func (r *Runner) Convert(paths []string, onEvent EventFunc) *ConvertResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID := r.startRun(storage.RunKindConvert, "", false)
	emit(onEvent, Event{Type: EventRunStarted, RunID: runID, Kind: storage.RunKindConvert})

	report := convert.NewConverter(r.config.Convert, r.logger).ConvertFiles(paths)

	for _, f := range report.Files {
		status := "converted"
		if f.Err != nil {
			status = "failed"
		}
		r.recordFile(runID, f.Input, status, 0, f.Error)
		emit(onEvent, Event{Type: EventFile, RunID: runID, Kind: storage.RunKindConvert, Path: f.Input, Status: status, Error: f.Error})
	}

	summary := storage.RunSummary{
		FilesTotal:   len(report.Files),
		FilesChanged: report.Succeeded,
		FilesFailed:  report.Failed,
	}
	if err := report.Err(); err != nil {
		summary.Error = err.Error()
	}
	r.finishRun(runID, summary)
	emit(onEvent, Event{Type: EventRunFinished, RunID: runID, Kind: storage.RunKindConvert, Files: summary.FilesTotal, Error: summary.Error})

	return &ConvertResult{RunID: runID, Report: report}
}

// startRun records a new ledger entry. Ledger failures are logged and never
// fail the run itself.
func (r *Runner) startRun(kind, root string, dryRun bool) string {
	if r.database == nil {
		return ""
	}
	run, err := r.database.CreateRun(kind, root, dryRun)
	if err != nil {
		r.logger.Warn("failed to record run", zap.Error(err))
		return ""
	}
	return run.ID
}

func (r *Runner) finishRun(runID string, summary storage.RunSummary) {
	if r.database == nil || runID == "" {
		return
	}
	if err := r.database.FinishRun(runID, summary); err != nil {
		r.logger.Warn("failed to finish run", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *Runner) recordFile(runID, path, status string, substitutions int, errText string) {
	if r.database == nil || runID == "" {
		return
	}
	err := r.database.RecordRunFile(&storage.RunFile{
		RunID:         runID,
		Path:          path,
		Status:        status,
		Substitutions: substitutions,
		Error:         errText,
	})
	if err != nil {
		r.logger.Warn("failed to record run file", zap.String("path", path), zap.Error(err))
	}
}

func emit(onEvent EventFunc, e Event) {
	if onEvent != nil {
		onEvent(e)
	}
}

type ledgerObserver struct {
	runner  *Runner
	runID   string
	onEvent EventFunc
}

func (o *ledgerObserver) DiscoveryCompleted(files, orgIDs, userIDs int) {
	emit(o.onEvent, Event{
		Type:    EventDiscovery,
		RunID:   o.runID,
		Kind:    storage.RunKindSanitize,
		Files:   files,
		OrgIDs:  orgIDs,
		UserIDs: userIDs,
	})
}

func (o *ledgerObserver) FileProcessed(report sanitize.FileReport) {
	o.runner.recordFile(o.runID, report.Path, string(report.Status), report.Substitutions, report.Error)
	emit(o.onEvent, Event{
		Type:          EventFile,
		RunID:         o.runID,
		Kind:          storage.RunKindSanitize,
		Path:          report.Path,
		Status:        string(report.Status),
		Error:         report.Error,
		Substitutions: report.Substitutions,
	})
}
