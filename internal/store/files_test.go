package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetFileState("/tmp/notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertFileState("/tmp/notes.txt", 123456789, 42, "abc"))
	fs, err := s.GetFileState("/tmp/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), fs.MtimeNS)
	assert.Equal(t, int64(42), fs.Size)
	assert.Equal(t, "abc", fs.SHA256)
	assert.False(t, fs.LastSeen.IsZero())

	// Upsert replaces the prior observation.
	require.NoError(t, s.UpsertFileState("/tmp/notes.txt", 987654321, 43, "def"))
	fs, err = s.GetFileState("/tmp/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(987654321), fs.MtimeNS)
	assert.Equal(t, "def", fs.SHA256)
}

func TestUpsertSourceDeduplicatesByURI(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.UpsertSource("filesystem", "file:///tmp/notes.txt")
	require.NoError(t, err)
	id2, err := s.UpsertSource("filesystem", "file:///tmp/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	src, err := s.GetSource(id1)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", src.SourceType)
}

func TestUpsertBlobDeduplicatesByHashAndPath(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.UpsertBlob("hash1", "/tmp/a.txt", "text/plain", 10)
	require.NoError(t, err)
	id2, err := s.UpsertBlob("hash1", "/tmp/a.txt", "text/plain", 10)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Same content at a different path is a distinct blob.
	id3, err := s.UpsertBlob("hash1", "/tmp/b.txt", "text/plain", 10)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	b, err := s.GetBlob(id1)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.txt", b.Path)
	assert.Equal(t, int64(10), b.Size)
}
