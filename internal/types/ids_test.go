package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDShape(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, NewID())
}

func TestEntityNodeIDDeterministic(t *testing.T) {
	a := EntityNodeID("Person", "alice")
	b := EntityNodeID("Person", "alice")
	require.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "ent:"))
	assert.Len(t, strings.TrimPrefix(a, "ent:"), 16)

	// Type participates in the hash.
	assert.NotEqual(t, a, EntityNodeID("Org", "alice"))
}

func TestMemoryNodeID(t *testing.T) {
	assert.Equal(t, "mem:abc123", MemoryNodeID("abc123"))
}

func TestEdgeIDDeterministic(t *testing.T) {
	a := EdgeID("mem:1", "MENTIONS", "ent:2", "", "")
	b := EdgeID("mem:1", "MENTIONS", "ent:2", "", "")
	require.Equal(t, a, b)
	assert.Len(t, a, 32)

	// Any field change produces a different id.
	assert.NotEqual(t, a, EdgeID("mem:1", "ABOUT", "ent:2", "", ""))
	assert.NotEqual(t, a, EdgeID("mem:1", "MENTIONS", "ent:3", "", ""))
	assert.NotEqual(t, a, EdgeID("mem:1", "MENTIONS", "ent:2", "2024-01-01", ""))
}

func TestCanonicalPayloadSortsKeys(t *testing.T) {
	a := CanonicalPayload(map[string]any{"b": 2, "a": 1})
	b := CanonicalPayload(map[string]any{"a": 1, "b": 2})
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":1,"b":2}`, a)
	assert.Equal(t, "{}", CanonicalPayload(nil))
}
