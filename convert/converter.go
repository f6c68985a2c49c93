package convert

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/fixture"
	"vcrkit/logger"
)

// ConvertHeaders turns single-valued headers into one-element value lists.
func ConvertHeaders(headers map[string]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for name, value := range headers {
		out[name] = []string{value}
	}
	return out
}

// ConvertInteraction translates one flat interaction into the nested schema.
// index is only used to label a SchemaError.
func ConvertInteraction(index int, in fixture.FlatInteraction) (fixture.NestedInteraction, error) {
	req, resp := in.Request, in.Response

	switch {
	case req.Method == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "request.method"}
	case req.URL == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "request.url"}
	case req.Headers == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "request.headers"}
	case resp.StatusCode == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "response.status_code"}
	case resp.Headers == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "response.headers"}
	case resp.Body == nil:
		return fixture.NestedInteraction{}, &fixture.SchemaError{Index: index, Field: "response.body"}
	}

	var body *string
	if req.Body != nil {
		b := *req.Body
		body = &b
	}

	var status string
	if resp.Status != nil {
		status = *resp.Status
	}

	return fixture.NestedInteraction{
		Request: fixture.NestedRequest{
			Body:    body,
			Form:    map[string][]string{},
			Headers: ConvertHeaders(req.Headers),
			Method:  *req.Method,
			URI:     *req.URL,
		},
		Response: fixture.NestedResponse{
			Body:    fixture.NestedBody{String: *resp.Body},
			Code:    *resp.StatusCode,
			Headers: ConvertHeaders(resp.Headers),
			Status:  status,
		},
	}, nil
}

// ConvertCassette converts every interaction in order. Any incomplete
// interaction fails the whole cassette.
func ConvertCassette(in *fixture.FlatCassette) (*fixture.NestedCassette, error) {
	if in == nil || in.Interactions == nil {
		return nil, &fixture.SchemaError{Index: -1, Field: "interactions"}
	}

	out := &fixture.NestedCassette{
		Interactions: make([]fixture.NestedInteraction, len(in.Interactions)),
	}
	for i, interaction := range in.Interactions {
		converted, err := ConvertInteraction(i, interaction)
		if err != nil {
			return nil, err
		}
		out.Interactions[i] = converted
	}
	return out, nil
}

// FileResult is the outcome of converting one file.
type FileResult struct {
	Input        string `json:"input"`
	Output       string `json:"output"`
	Interactions int    `json:"interactions"`
	Err          error  `json:"-"`
	Error        string `json:"error,omitempty"`
}

// BatchReport summarises a multi-file conversion.
type BatchReport struct {
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Aborted   bool         `json:"aborted"`
}

// Err combines every per-file error, or nil when all files converted.
func (r *BatchReport) Err() error {
	var err error
	for _, f := range r.Files {
		err = multierr.Append(err, f.Err)
	}
	return err
}

type Converter struct {
	format  string
	onError string
	logger  *zap.Logger
}

func NewConverter(cfg config.ConvertConfig, log *zap.Logger) *Converter {
	format := cfg.Format
	if format == "" {
		format = config.FormatYAML
	}
	onError := cfg.OnError
	if onError == "" {
		onError = config.PolicyContinue
	}
	return &Converter{
		format:  format,
		onError: onError,
		logger:  logger.OrNop(log).Named("convert"),
	}
}

func (c *Converter) outputFormat(outputPath string) fixture.Format {
	switch c.format {
	case config.FormatJSON:
		return fixture.FormatJSON
	case config.FormatAuto:
		return fixture.FormatForPath(outputPath)
	default:
		return fixture.FormatYAML
	}
}

// ConvertFile reads a flat cassette and writes its nested form to
// outputPath, or back to inputPath when outputPath is empty. Nothing is
// written unless the whole cassette converts.
func (c *Converter) ConvertFile(inputPath, outputPath string) (FileResult, error) {
	if outputPath == "" {
		outputPath = inputPath
	}
	result := FileResult{Input: inputPath, Output: outputPath}

	flat, err := fixture.ReadFlat(inputPath)
	if err != nil {
		return result, err
	}

	nested, err := ConvertCassette(flat)
	if err != nil {
		var schemaErr *fixture.SchemaError
		if errors.As(err, &schemaErr) {
			schemaErr.Path = inputPath
		}
		return result, err
	}

	data, err := fixture.EncodeNested(nested, c.outputFormat(outputPath))
	if err != nil {
		return result, fmt.Errorf("failed to encode %s: %w", outputPath, err)
	}

	if err := fixture.WriteFileAtomic(outputPath, data); err != nil {
		return result, err
	}

	result.Interactions = len(nested.Interactions)
	c.logger.Info("converted cassette",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("interactions", result.Interactions),
	)
	return result, nil
}

// ConvertFiles converts each path in place. With the continue policy a
// failing file is reported and the batch goes on; with abort the batch stops
// at the first failure.
func (c *Converter) ConvertFiles(paths []string) *BatchReport {
	report := &BatchReport{Files: make([]FileResult, 0, len(paths))}

	for _, path := range paths {
		result, err := c.ConvertFile(path, "")
		if err != nil {
			result.Err = err
			result.Error = err.Error()
			report.Failed++
			report.Files = append(report.Files, result)
			c.logger.Warn("failed to convert cassette", zap.String("path", path), zap.Error(err))

			if c.onError == config.PolicyAbort {
				report.Aborted = true
				break
			}
			continue
		}
		report.Succeeded++
		report.Files = append(report.Files, result)
	}

	return report
}
