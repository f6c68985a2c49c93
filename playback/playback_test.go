package playback

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcrkit/config"
	"vcrkit/convert"
	"vcrkit/fixture"
)

const nestedCassette = `interactions:
- request:
    body: null
    form: {}
    headers: {}
    method: GET
    uri: https://api.example.com/org/12345/members?page=1
  response:
    body:
      string: '{"page":1}'
    code: 200
    headers:
      Content-Type:
      - application/json
- request:
    body: null
    form: {}
    headers: {}
    method: GET
    uri: https://api.example.com/org/12345/members?page=2
  response:
    body:
      string: '{"page":2}'
    code: 200
    headers:
      Content-Type:
      - application/json
- request:
    body: '{"name":"x"}'
    form: {}
    headers: {}
    method: POST
    uri: https://api.example.com/tasks/3f2504e0-4f89-11d3-9a0c-0305e82c3301
  response:
    body:
      string: ""
    code: 201
    status: 201 Created
    headers: {}
`

const flatCassette = `{"interactions": [{
  "request": {"method": "GET", "url": "https://api.example.com/health", "headers": {}},
  "response": {"status_code": 200, "headers": {"X-Test": "yes"}, "body": "ok"}
}]}`

func writeCassette(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newPlayer(t *testing.T, content string, cfg config.PlaybackConfig) *Player {
	t.Helper()
	cassette, err := LoadCassette(writeCassette(t, "cassette.yaml", content))
	require.NoError(t, err)
	return NewPlayer(cassette, cfg, nil)
}

func TestLoadCassetteFlat(t *testing.T) {
	path := writeCassette(t, "flat.json", flatCassette)

	cassette, err := LoadCassette(path)
	require.NoError(t, err)
	require.Len(t, cassette.Interactions, 1)
	assert.Equal(t, "https://api.example.com/health", cassette.Interactions[0].Request.URI)
	assert.Equal(t, []string{"yes"}, cassette.Interactions[0].Response.Headers["X-Test"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, flatCassette, string(data), "loading must not rewrite the file")
}

func TestLoadCassetteAfterInPlaceConvert(t *testing.T) {
	path := writeCassette(t, "health.json", flatCassette)
	report := convert.NewConverter(config.DefaultConfig().Convert, nil).ConvertFiles([]string{path})
	require.NoError(t, report.Err())

	cassette, err := LoadCassette(path)
	require.NoError(t, err)
	require.Len(t, cassette.Interactions, 1)
	assert.Equal(t, "https://api.example.com/health", cassette.Interactions[0].Request.URI)
	assert.Equal(t, "ok", cassette.Interactions[0].Response.Body.String)
}

func TestLoadCassetteErrors(t *testing.T) {
	_, err := LoadCassette(writeCassette(t, "bad.json", "{"))
	var parseErr *fixture.FixtureParseError
	assert.True(t, errors.As(err, &parseErr))

	_, err = LoadCassette(writeCassette(t, "other.json", `{"foo": 1}`))
	assert.ErrorIs(t, err, fixture.ErrUnknownSchema)

	_, err = LoadCassette(writeCassette(t, "incomplete.json", `{"interactions": [{"request": {"url": "/x"}, "response": {}}]}`))
	var schemaErr *fixture.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestTransportSequentialPlayback(t *testing.T) {
	player := newPlayer(t, nestedCassette, config.PlaybackConfig{MatchingStrategy: MatchExact})
	client := NewTransport(player).Client()

	var pages []string
	for i := 0; i < 3; i++ {
		resp, err := client.Get("https://api.example.com/org/12345/members")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		pages = append(pages, string(body))
	}

	assert.Equal(t, []string{`{"page":1}`, `{"page":2}`, `{"page":1}`}, pages)
}

func TestTransportMatchQuery(t *testing.T) {
	player := newPlayer(t, nestedCassette, config.PlaybackConfig{MatchQuery: true})
	client := NewTransport(player).Client()

	resp, err := client.Get("https://api.example.com/org/12345/members?page=2&extra=1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `{"page":2}`, string(body))

	_, err = client.Get("https://api.example.com/org/12345/members?page=3")
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestTransportFuzzyMatchesSanitizedIDs(t *testing.T) {
	exact := NewTransport(newPlayer(t, nestedCassette, config.PlaybackConfig{MatchingStrategy: MatchExact})).Client()
	_, err := exact.Get("https://api.example.com/org/13888/members")
	assert.Error(t, err)

	fuzzy := NewTransport(newPlayer(t, nestedCassette, config.PlaybackConfig{MatchingStrategy: MatchFuzzy})).Client()
	resp, err := fuzzy.Get("https://api.example.com/org/13888/members")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = fuzzy.Post("https://api.example.com/tasks/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "201 Created", resp.Status)
}

func TestFuzzyPathMatch(t *testing.T) {
	assert.True(t, fuzzyPathMatch("/org/1/members", "/org/2/members"))
	assert.False(t, fuzzyPathMatch("/org/1/members", "/org/2/teams"))
	assert.False(t, fuzzyPathMatch("/org/abc", "/org/1"))
	assert.False(t, fuzzyPathMatch("/org/1", "/org/1/x"))
	assert.False(t, fuzzyPathMatch("/org//x", "/org/1/x"))
}

func TestHandlerServesRecording(t *testing.T) {
	player := newPlayer(t, nestedCassette, config.PlaybackConfig{})
	server := httptest.NewServer(NewHandler(player))
	defer server.Close()

	resp, err := http.Get(server.URL + "/org/12345/members")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"page":1}`, string(body))
}

func TestHandlerNotFoundResponse(t *testing.T) {
	player := newPlayer(t, nestedCassette, config.PlaybackConfig{
		NotFoundResponse: config.NotFoundResponseConfig{
			Status: http.StatusTeapot,
			Body:   map[string]interface{}{"error": "nothing recorded"},
		},
	})

	rec := httptest.NewRecorder()
	NewHandler(player).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/org/12345/members", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nothing recorded", body["error"])
}

func TestResetSequenceState(t *testing.T) {
	player := newPlayer(t, nestedCassette, config.PlaybackConfig{})
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/org/12345/members", nil)

	first, err := player.Match(req)
	require.NoError(t, err)
	player.ResetSequenceState()
	again, err := player.Match(req)
	require.NoError(t, err)

	assert.Same(t, first, again)
}
