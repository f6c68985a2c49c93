package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONKeepsOrderAndNumbers(t *testing.T) {
	doc, err := ParseJSON([]byte(`{"zeta": 1, "alpha": {"big": 123456789012345678901, "f": 1.50, "e": 1e3}, "list": [true, null, "x"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "list"}, doc.Keys())

	alpha := doc.Get("alpha")
	require.True(t, alpha.IsMapping())
	assert.Equal(t, "123456789012345678901", alpha.Get("big").Text)
	assert.Equal(t, "1.50", alpha.Get("f").Text)

	_, ok := alpha.Get("big").Int()
	assert.False(t, ok, "overflowing integers are not ids")
	_, ok = alpha.Get("f").Int()
	assert.False(t, ok)
	_, ok = alpha.Get("e").Int()
	assert.False(t, ok)

	i, ok := doc.Get("zeta").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(1), i)

	list := doc.Get("list")
	require.True(t, list.IsSequence())
	require.Len(t, list.Items, 3)
	assert.Equal(t, Bool, list.Items[0].Type)
	assert.True(t, list.Items[1].IsNull())
	assert.True(t, list.Items[2].IsString())
}

func TestParseJSONRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "<html>Error</html>", `{"a":`, "plain text"} {
		_, err := ParseJSON([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidJSON, in)
	}
}

func TestEncodeJSONRoundTrip(t *testing.T) {
	in := `{"b":[1,2,{"c":"<a&b>"}],"a":{},"n":null,"t":false,"s":[],"u":"é\n"}`
	doc, err := ParseJSON([]byte(in))
	require.NoError(t, err)

	compact, err := EncodeJSON(doc, "")
	require.NoError(t, err)
	assert.Equal(t, in, string(compact))

	pretty, err := EncodeJSON(doc, "  ")
	require.NoError(t, err)
	assert.Equal(t, `{
  "b": [
    1,
    2,
    {
      "c": "<a&b>"
    }
  ],
  "a": {},
  "n": null,
  "t": false,
  "s": [],
  "u": "é\n"
}`, string(pretty))
}

func TestSetAndGet(t *testing.T) {
	m := NewMapping(Pair{Key: "a", Value: NewInt(1)})
	m.Set("a", NewString("x"))
	m.Set("b", NewNull())

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, "x", m.Get("a").Text)
	assert.Nil(t, m.Get("missing"))
	assert.Nil(t, NewString("s").Get("a"))
}

func TestYAMLRoundTrip(t *testing.T) {
	in := `interactions:
  - request:
      body: null
      form: {}
      headers:
        Accept:
          - application/json
      method: GET
      uri: https://example.com/org/1/
    response:
      body:
        string: '{"org_id":1}'
      code: 200
`
	doc, err := ParseYAML([]byte(in))
	require.NoError(t, err)

	interaction := doc.Get("interactions").Items[0]
	req := interaction.Get("request")
	assert.True(t, req.Get("body").IsNull())
	assert.True(t, req.Get("form").IsMapping())
	assert.Equal(t, "application/json", req.Get("headers").Get("Accept").Items[0].Text)

	code, ok := interaction.Get("response").Get("code").Int()
	require.True(t, ok)
	assert.Equal(t, int64(200), code)

	out, err := EncodeYAML(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `string: '{"org_id":1}'`)
	assert.Contains(t, string(out), "form: {}")

	again, err := ParseYAML(out)
	require.NoError(t, err)
	assert.Equal(t, doc.Get("interactions").Items[0].Get("request").Keys(),
		again.Get("interactions").Items[0].Get("request").Keys())
	assert.Equal(t, "https://example.com/org/1/",
		again.Get("interactions").Items[0].Get("request").Get("uri").Text)
}

func TestYAMLQuotesAmbiguousStrings(t *testing.T) {
	doc := NewMapping(
		Pair{Key: "id", Value: NewString("12345")},
		Pair{Key: "flag", Value: NewString("true")},
		Pair{Key: "n", Value: NewInt(7)},
	)
	out, err := EncodeYAML(doc)
	require.NoError(t, err)

	back, err := ParseYAML(out)
	require.NoError(t, err)
	assert.True(t, back.Get("id").IsString())
	assert.True(t, back.Get("flag").IsString())
	assert.Equal(t, Number, back.Get("n").Type)
}

func TestParseYAMLErrors(t *testing.T) {
	_, err := ParseYAML([]byte(""))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = ParseYAML([]byte("a: [1, 2"))
	assert.Error(t, err)
}

func TestParseYAMLAlias(t *testing.T) {
	doc, err := ParseYAML([]byte("base: &b {user_id: 7}\ncopy: *b\n"))
	require.NoError(t, err)

	id, ok := doc.Get("copy").Get("user_id").Int()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}
