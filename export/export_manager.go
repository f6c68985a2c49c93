package export

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vcrkit/config"
	"vcrkit/storage"
)

const ReportVersion = "1.0"

// RunReport is the portable form of a ledger run.
type RunReport struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Run        storage.Run       `json:"run"`
	Files      []storage.RunFile `json:"files"`
}

type ExportManager struct {
	config   *config.Config
	database *storage.Database
}

func NewExportManager(cfg *config.Config, db *storage.Database) *ExportManager {
	return &ExportManager{
		config:   cfg,
		database: db,
	}
}

// ExportRun writes the run and its per-file outcomes to outputPath. The
// output is gzipped when compression is configured or the path ends in .gz.
func (e *ExportManager) ExportRun(runID, outputPath string) error {
	report, err := e.BuildReport(runID)
	if err != nil {
		return err
	}
	return e.writeReport(report, outputPath)
}

func (e *ExportManager) BuildReport(runID string) (*RunReport, error) {
	run, err := e.database.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	files, err := e.database.GetRunFiles(run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	if files == nil {
		files = []storage.RunFile{}
	}

	return &RunReport{
		Version:    ReportVersion,
		ExportedAt: time.Now().UTC(),
		Run:        *run,
		Files:      files,
	}, nil
}

// ImportRun loads an exported report back into the ledger. An existing run
// with the same id is replaced.
func (e *ExportManager) ImportRun(inputPath string) (*storage.Run, error) {
	report, err := ReadReport(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read export data: %w", err)
	}

	if err := e.database.ImportRun(report.Run, report.Files); err != nil {
		return nil, fmt.Errorf("failed to import run: %w", err)
	}
	return &report.Run, nil
}

func (e *ExportManager) writeReport(report *RunReport, outputPath string) error {
	var jsonData []byte
	var err error

	if e.config.Export.PrettyPrint {
		jsonData, err = json.MarshalIndent(report, "", "  ")
	} else {
		jsonData, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal export data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file
	if e.config.Export.Compress || strings.HasSuffix(outputPath, ".gz") {
		gzWriter := gzip.NewWriter(file)
		defer gzWriter.Close()
		writer = gzWriter
	}

	if _, err := writer.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write export data: %w", err)
	}

	return nil
}

// ReadReport reads a report written by ExportRun, compressed or not.
func ReadReport(inputPath string) (*RunReport, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	var reader io.Reader = buffered
	if magic, err := buffered.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gzReader, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	var report RunReport
	if err := json.NewDecoder(reader).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode export data: %w", err)
	}

	if err := validateReport(&report); err != nil {
		return nil, fmt.Errorf("invalid export data: %w", err)
	}

	return &report, nil
}

func validateReport(report *RunReport) error {
	if report.Version == "" {
		return fmt.Errorf("missing version field")
	}
	if report.Version != ReportVersion {
		return fmt.Errorf("unsupported version %q", report.Version)
	}

	if report.Run.ID == "" {
		return fmt.Errorf("missing run id")
	}
	switch report.Run.Kind {
	case storage.RunKindConvert, storage.RunKindSanitize:
	default:
		return fmt.Errorf("unknown run kind %q", report.Run.Kind)
	}

	for i, f := range report.Files {
		if f.Path == "" {
			return fmt.Errorf("missing path in file %d", i)
		}
		if f.Status == "" {
			return fmt.Errorf("missing status in file %d", i)
		}
	}

	return nil
}
