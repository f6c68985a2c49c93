package sanitize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/fixture"
	"vcrkit/logger"
	"vcrkit/node"
)

var ErrNoFixtures = errors.New("no fixture files found")

type FileStatus string

const (
	StatusSanitized FileStatus = "sanitized"
	StatusUnchanged FileStatus = "unchanged"
	StatusFailed    FileStatus = "failed"
)

type FileReport struct {
	Path          string     `json:"path"`
	Status        FileStatus `json:"status"`
	Substitutions int        `json:"substitutions"`
	Err           error      `json:"-"`
	Error         string     `json:"error,omitempty"`
}

// RunReport is the outcome of one sanitizer run. The id lists are the
// discovered identifiers plus any registered during the rewrite.
type RunReport struct {
	Root          string       `json:"root"`
	DryRun        bool         `json:"dry_run"`
	Files         []FileReport `json:"files"`
	OrgIDs        []int64      `json:"org_ids"`
	UserIDs       []int64      `json:"user_ids"`
	Substitutions int          `json:"substitutions"`
	Aborted       bool         `json:"aborted"`
}

func (r *RunReport) count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

func (r *RunReport) Sanitized() int { return r.count(StatusSanitized) }
func (r *RunReport) Unchanged() int { return r.count(StatusUnchanged) }
func (r *RunReport) Failed() int    { return r.count(StatusFailed) }

// Err combines every per-file error.
func (r *RunReport) Err() error {
	var err error
	for _, f := range r.Files {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// Observer receives progress while a run executes.
type Observer interface {
	DiscoveryCompleted(files, orgIDs, userIDs int)
	FileProcessed(report FileReport)
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

type Engine struct {
	rules      *Rules
	extensions []string
	onError    string
	observer   Observer
	logger     *zap.Logger
}

func NewEngine(cfg config.SanitizeConfig, log *zap.Logger, opts ...Option) *Engine {
	extensions := cfg.Extensions
	if len(extensions) == 0 {
		extensions = []string{".json", ".yaml", ".yml"}
	}
	onError := cfg.OnError
	if onError == "" {
		onError = config.PolicyContinue
	}

	e := &Engine{
		rules:      NewRules(cfg),
		extensions: extensions,
		onError:    onError,
		logger:     logger.OrNop(log).Named("sanitize"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Rules() *Rules { return e.rules }

// DiscoverFixtures lists fixture files under root with one of the given
// extensions, sorted by path. Hidden files and directories are skipped.
func DiscoverFixtures(root string, extensions []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access fixture root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixture root %s is not a directory", root)
	}

	wanted := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		wanted[strings.ToLower(ext)] = true
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && wanted[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk fixture root %s: %w", root, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoFixtures, root)
	}

	sort.Strings(paths)
	return paths, nil
}

// Run sanitizes every fixture under root.
func (e *Engine) Run(ctx context.Context, root string, dryRun bool) (*RunReport, error) {
	paths, err := DiscoverFixtures(root, e.extensions)
	if err != nil {
		return nil, err
	}
	report, err := e.SanitizePaths(ctx, paths, dryRun)
	if report != nil {
		report.Root = root
	}
	return report, err
}

type loadedFixture struct {
	path   string
	format fixture.Format
	raw    []byte
	tree   *node.Node
}

// SanitizePaths runs both passes over an explicit list of fixtures. The
// discovery pass completes over every file before anything is rewritten.
// With the abort policy an unreadable fixture stops the run before any
// file is written.
func (e *Engine) SanitizePaths(ctx context.Context, paths []string, dryRun bool) (*RunReport, error) {
	report := &RunReport{DryRun: dryRun, Files: make([]FileReport, 0, len(paths))}

	loaded := make([]*loadedFixture, 0, len(paths))
	contents := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if abort := e.fail(report, path, fmt.Errorf("failed to read fixture %s: %w", path, err)); abort {
				return report, report.Err()
			}
			continue
		}
		loaded = append(loaded, &loadedFixture{path: path, format: fixture.DetectFormatForPath(path, data), raw: data})
		contents = append(contents, data)
	}

	discovered := NewDiscoverer(e.rules).Discover(contents)
	e.logger.Info("discovery completed",
		zap.Int("files", len(contents)),
		zap.Int("org_ids", len(discovered.orgIDs)),
		zap.Int("user_ids", len(discovered.userIDs)),
	)
	if e.observer != nil {
		e.observer.DiscoveryCompleted(len(contents), len(discovered.orgIDs), len(discovered.userIDs))
	}

	parsed := make([]*loadedFixture, 0, len(loaded))
	for _, f := range loaded {
		tree, err := fixture.ParseTree(f.raw, f.format)
		if err != nil {
			if abort := e.fail(report, f.path, &fixture.FixtureParseError{Path: f.path, Err: err}); abort {
				return report, report.Err()
			}
			continue
		}
		f.tree = tree
		parsed = append(parsed, f)
	}

	rewrite := NewRewriteContext(e.rules, discovered, e.logger)
	for _, f := range parsed {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}

		before := rewrite.Substitutions()
		rewrite.SanitizeFixture(f.tree, f.path)

		out, err := fixture.EncodeTree(f.tree, f.format)
		if err != nil {
			if abort := e.fail(report, f.path, fmt.Errorf("failed to encode fixture %s: %w", f.path, err)); abort {
				return report, report.Err()
			}
			continue
		}
		if bytes.HasSuffix(f.raw, []byte("\n")) && !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, '\n')
		}

		fr := FileReport{Path: f.path, Status: StatusUnchanged, Substitutions: rewrite.Substitutions() - before}
		if !bytes.Equal(out, f.raw) {
			fr.Status = StatusSanitized
			if !dryRun {
				if err := fixture.WriteFileAtomic(f.path, out); err != nil {
					if abort := e.fail(report, f.path, err); abort {
						return report, report.Err()
					}
					continue
				}
			}
		}

		e.logger.Debug("fixture processed",
			zap.String("path", f.path),
			zap.String("status", string(fr.Status)),
			zap.Int("substitutions", fr.Substitutions),
		)
		e.record(report, fr)
	}

	report.OrgIDs = rewrite.OrgIDs()
	report.UserIDs = rewrite.UserIDs()
	report.Substitutions = rewrite.Substitutions()

	e.logger.Info("sanitize run completed",
		zap.Int("files", len(report.Files)),
		zap.Int("sanitized", report.Sanitized()),
		zap.Int("unchanged", report.Unchanged()),
		zap.Int("failed", report.Failed()),
		zap.Int("substitutions", report.Substitutions),
		zap.Bool("dry_run", dryRun),
	)
	return report, nil
}

func (e *Engine) record(report *RunReport, fr FileReport) {
	report.Files = append(report.Files, fr)
	if e.observer != nil {
		e.observer.FileProcessed(fr)
	}
}

// fail records a per-file failure and reports whether the run must stop.
func (e *Engine) fail(report *RunReport, path string, err error) bool {
	e.logger.Warn("fixture failed", zap.String("path", path), zap.Error(err))
	e.record(report, FileReport{Path: path, Status: StatusFailed, Err: err, Error: err.Error()})
	if e.onError == config.PolicyAbort {
		report.Aborted = true
		return true
	}
	return false
}
