package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatJSON = `{
  "name": "orgs.json",
  "recorded_at": "2024-05-01T10:00:00Z",
  "interactions": [
    {
      "request": {"method": "GET", "url": "https://api.example.com/org/13888/members", "headers": {"Accept": "application/json"}},
      "response": {"status_code": 200, "status": "200 OK", "headers": {"Content-Type": "application/json"}, "body": "{\"org_id\":13888}"},
      "timestamp": "2024-05-01T10:00:00Z"
    }
  ]
}`

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("a/b.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("B.YML"))
	assert.Equal(t, FormatJSON, FormatForPath("c.json"))
	assert.Equal(t, FormatJSON, FormatForPath("noext"))
}

func TestReadFlat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orgs.json")
	require.NoError(t, os.WriteFile(path, []byte(flatJSON), 0644))

	cassette, err := ReadFlat(path)
	require.NoError(t, err)
	require.Len(t, cassette.Interactions, 1)

	in := cassette.Interactions[0]
	assert.Equal(t, "GET", *in.Request.Method)
	assert.Nil(t, in.Request.Body)
	assert.Equal(t, 200, *in.Response.StatusCode)
	assert.Equal(t, "200 OK", *in.Response.Status)
	assert.Equal(t, `{"org_id":13888}`, *in.Response.Body)
}

func TestReadFlatParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := ReadFlat(path)
	var parseErr *FixtureParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, path, parseErr.Path)
}

func TestReadFlatMissingFile(t *testing.T) {
	_, err := ReadFlat(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNestedRoundTrip(t *testing.T) {
	cassette := &NestedCassette{Interactions: []NestedInteraction{{
		Request: NestedRequest{
			Form:    map[string][]string{},
			Headers: map[string][]string{"Accept": {"application/json"}},
			Method:  "GET",
			URI:     "https://api.example.com/x?a=<b>",
		},
		Response: NestedResponse{
			Body:    NestedBody{String: `{"ok":true}`},
			Code:    200,
			Headers: map[string][]string{"Content-Type": {"application/json"}},
		},
	}}}

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeNested(cassette, format)
			require.NoError(t, err)
			assert.Contains(t, string(data), "body")
			assert.NotContains(t, string(data), "status", "empty status text is omitted")

			back, err := DecodeNested(data, format)
			require.NoError(t, err)
			assert.Equal(t, cassette, back)
		})
	}
}

func TestNestedJSONShape(t *testing.T) {
	cassette := &NestedCassette{Interactions: []NestedInteraction{{
		Request:  NestedRequest{Form: map[string][]string{}, Headers: map[string][]string{}, Method: "GET", URI: "/"},
		Response: NestedResponse{Code: 204, Headers: map[string][]string{}},
	}}}
	data, err := EncodeNested(cassette, FormatJSON)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"body": null`)
	assert.Contains(t, string(data), `"form": {}`)
	assert.Contains(t, string(data), `"string": ""`)
}

func TestDetectSchema(t *testing.T) {
	flat, err := ParseTree([]byte(flatJSON), FormatJSON)
	require.NoError(t, err)
	schema, err := DetectSchema(flat)
	require.NoError(t, err)
	assert.Equal(t, SchemaFlat, schema)

	nested, err := ParseTree([]byte("interactions:\n- request: {uri: /x, method: GET}\n  response: {code: 200}\n"), FormatYAML)
	require.NoError(t, err)
	schema, err = DetectSchema(nested)
	require.NoError(t, err)
	assert.Equal(t, SchemaNested, schema)

	other, err := ParseTree([]byte(`{"foo": 1}`), FormatJSON)
	require.NoError(t, err)
	_, err = DetectSchema(other)
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestErrorMessages(t *testing.T) {
	err := &SchemaError{Path: "a.json", Index: 2, Field: "method"}
	assert.Equal(t, `a.json: interaction 2: missing required field "method"`, err.Error())

	err = &SchemaError{Index: -1, Field: "interactions"}
	assert.Equal(t, `cassette: missing required field "interactions"`, err.Error())

	inner := errors.New("boom")
	parseErr := &FixtureParseError{Path: "b.json", Err: inner}
	assert.ErrorIs(t, parseErr, inner)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat([]byte(flatJSON), FormatYAML))
	assert.Equal(t, FormatYAML, DetectFormat([]byte("interactions:\n- request: {uri: /x}\n"), FormatJSON))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("{not json"), FormatJSON))
	assert.Equal(t, FormatYAML, DetectFormat([]byte("interactions: [\n"), FormatYAML))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("just text"), FormatJSON))
}

func TestReadNestedYAMLInJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "members.json")
	yamlBody := "interactions:\n- request:\n    method: GET\n    uri: https://h/org/1/x\n  response:\n    code: 200\n    body:\n      string: ok\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0644))

	cassette, err := ReadNested(path)
	require.NoError(t, err)
	require.Len(t, cassette.Interactions, 1)
	assert.Equal(t, "https://h/org/1/x", cassette.Interactions[0].Request.URI)
	assert.Equal(t, "ok", cassette.Interactions[0].Response.Body.String)
}
