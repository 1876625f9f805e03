package reconcile_test

import (
	"encoding/json"
	"strconv"
	"testing"

	"content-history/core/reconcile"
	"content-history/core/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestChangeSet(t *testing.T) {
	cs := reconcile.NewChangeSet(
		storage.Ref{Type: "post", VpID: "P1"},
		storage.Ref{Type: "postmeta", VpID: "M1"},
		storage.Ref{Type: "post", VpID: "P2"},
	)
	cs.Add(storage.Ref{Type: "post", VpID: "P1"})
	cs.Add(storage.Ref{Type: "postmeta", VpID: "M1", ParentVpID: "P1"})

	assert.Equal(t, 3, cs.Len())
	assert.Equal(t, []string{"post", "postmeta"}, cs.Types())
	assert.Equal(t, []storage.Ref{{Type: "post", VpID: "P1"}, {Type: "post", VpID: "P2"}}, cs.ForType("post"))
	assert.Equal(t, "P1", cs.ForType("postmeta")[0].ParentVpID)
	assert.True(t, cs.Contains("post", "P2"))
	assert.False(t, cs.Contains("comment", "P2"))

	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"post","vp_id":"P1"},
		{"type":"postmeta","vp_id":"M1","parent":"P1"},
		{"type":"post","vp_id":"P2"}
	]`, string(data))

	var empty *reconcile.ChangeSet
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.ForType("post"))
}

func TestFingerprint(t *testing.T) {
	a := reconcile.Fingerprint(map[string]string{"a": "1", "b": "2"})
	b := reconcile.Fingerprint(map[string]string{"b": "2", "a": "1"})
	c := reconcile.Fingerprint(map[string]string{"a": "12"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestComparisonCache(t *testing.T) {
	c := reconcile.NewComparisonCache()
	c.Store("post", "P1", "x")
	assert.True(t, c.Matches("post", "P1", "x"))
	assert.False(t, c.Matches("post", "P1", "y"))

	c.Forget("post", "P1")
	assert.False(t, c.Matches("post", "P1", "x"))

	c.Store("post", "P1", "x")
	c.ResetType("post")
	assert.False(t, c.Matches("post", "P1", "x"))
}
