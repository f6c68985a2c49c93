package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoverQuotedKeys(t *testing.T) {
	d := NewDiscoverer(DefaultRules())
	result := d.Discover([][]byte{
		[]byte(`{"org_id": 13888, "nested": {"org":42}, "owner_id" : 501}`),
	})

	assert.Equal(t, []int64{42, 13888}, result.OrgIDs())
	assert.Equal(t, []int64{501}, result.UserIDs())
	assert.True(t, result.HasOrg(13888))
	assert.True(t, result.HasUser(501))
	assert.False(t, result.HasOrg(501))
}

func TestDiscoverEscapedBodiesAndYAML(t *testing.T) {
	d := NewDiscoverer(DefaultRules())
	result := d.Discover([][]byte{
		[]byte(`{"response": {"body": "{\"assignee_id\":7001,\"org_id\":13888}"}}`),
		[]byte("interactions:\n- response:\n    meta:\n      user_id: 8002\norg: 77\n"),
	})

	assert.Equal(t, []int64{77, 13888}, result.OrgIDs())
	assert.Equal(t, []int64{7001, 8002}, result.UserIDs())
}

func TestDiscoverAcrossFiles(t *testing.T) {
	d := NewDiscoverer(DefaultRules())
	result := d.Discover([][]byte{
		[]byte(`{"org_id": 13888}`),
		[]byte(`{"org_id": 13888, "user_id": 5}`),
	})

	assert.Equal(t, []int64{13888}, result.OrgIDs())
	assert.Equal(t, []int64{5}, result.UserIDs())
}

func TestDiscoverIgnoresNonPositiveAndOddValues(t *testing.T) {
	d := NewDiscoverer(DefaultRules())
	result := d.Discover([][]byte{[]byte(`{
		"org_id": 0,
		"org": -5,
		"user_id": 99999999999999999999,
		"owner_id": 3.5,
		"assignee_id": "42",
		"parent_org_id": 9,
		"org_id_hash": 10
	}`)})

	assert.Empty(t, result.OrgIDs())
	assert.Empty(t, result.UserIDs())
}

func TestDiscoverSkipsSubstitutes(t *testing.T) {
	d := NewDiscoverer(DefaultRules())
	result := d.Discover([][]byte{[]byte(`{"org_id": 12345, "user_id": 99999}`)})

	assert.Empty(t, result.OrgIDs())
	assert.Empty(t, result.UserIDs())
}
