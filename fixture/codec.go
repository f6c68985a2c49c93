package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"vcrkit/node"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension; anything that is
// not .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DetectFormat reports the encoding data is written in. Valid JSON is JSON
// and a YAML mapping is YAML, whatever the file is called; anything else
// keeps the hint so the parse error names the expected format.
func DetectFormat(data []byte, hint Format) Format {
	if gjson.ValidBytes(data) {
		return FormatJSON
	}
	if tree, err := node.ParseYAML(data); err == nil && tree.IsMapping() {
		return FormatYAML
	}
	return hint
}

// DetectFormatForPath is DetectFormat hinted by the file extension.
func DetectFormatForPath(path string, data []byte) Format {
	return DetectFormat(data, FormatForPath(path))
}

type Schema int

const (
	SchemaFlat Schema = iota
	SchemaNested
)

func (s Schema) String() string {
	if s == SchemaNested {
		return "nested"
	}
	return "flat"
}

func DecodeFlat(data []byte, format Format) (*FlatCassette, error) {
	var cassette FlatCassette
	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &cassette)
	} else {
		err = json.Unmarshal(data, &cassette)
	}
	if err != nil {
		return nil, err
	}
	return &cassette, nil
}

func ReadFlat(path string) (*FlatCassette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cassette %s: %w", path, err)
	}
	cassette, err := DecodeFlat(data, DetectFormatForPath(path, data))
	if err != nil {
		return nil, &FixtureParseError{Path: path, Err: err}
	}
	return cassette, nil
}

func DecodeNested(data []byte, format Format) (*NestedCassette, error) {
	var cassette NestedCassette
	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &cassette)
	} else {
		err = json.Unmarshal(data, &cassette)
	}
	if err != nil {
		return nil, err
	}
	return &cassette, nil
}

func ReadNested(path string) (*NestedCassette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cassette %s: %w", path, err)
	}
	cassette, err := DecodeNested(data, DetectFormatForPath(path, data))
	if err != nil {
		return nil, &FixtureParseError{Path: path, Err: err}
	}
	return cassette, nil
}

func EncodeNested(cassette *NestedCassette, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if format == FormatYAML {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cassette); err != nil {
			return nil, fmt.Errorf("failed to encode YAML cassette: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode YAML cassette: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cassette); err != nil {
		return nil, fmt.Errorf("failed to encode JSON cassette: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseTree parses a fixture into an order-preserving tree.
func ParseTree(data []byte, format Format) (*node.Node, error) {
	if format == FormatYAML {
		return node.ParseYAML(data)
	}
	return node.ParseJSON(data)
}

// EncodeTree is the inverse of ParseTree. JSON is indented by two spaces.
func EncodeTree(n *node.Node, format Format) ([]byte, error) {
	if format == FormatYAML {
		return node.EncodeYAML(n)
	}
	return node.EncodeJSON(n, "  ")
}

// DetectSchema inspects the first interaction of a parsed cassette.
// A cassette with no interactions is reported as nested.
func DetectSchema(tree *node.Node) (Schema, error) {
	interactions := tree.Get("interactions")
	if !interactions.IsSequence() {
		return 0, fmt.Errorf("%w: no interactions list", ErrUnknownSchema)
	}
	if len(interactions.Items) == 0 {
		return SchemaNested, nil
	}

	first := interactions.Items[0]
	req, resp := first.Get("request"), first.Get("response")
	switch {
	case req.Get("uri") != nil || resp.Get("code") != nil:
		return SchemaNested, nil
	case req.Get("url") != nil || resp.Get("status_code") != nil:
		return SchemaFlat, nil
	default:
		return 0, ErrUnknownSchema
	}
}

// WriteFileAtomic replaces path with data via a temporary sibling and a
// rename, so readers never observe a partially written fixture. The mode of
// an existing file is kept.
func WriteFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set mode on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
