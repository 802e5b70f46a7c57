package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("new store is empty", func(t *testing.T) {
		s := NewMemoryStore()
		assert.Equal(t, 0, s.Len())

		_, err := s.Get("nonexistent")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("k", "v"))

		v, err := s.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("k", "v1"))
		require.NoError(t, s.Put("k", "v2"))

		v, err := s.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v2", v)
	})

	t.Run("empty string value is distinct from absence", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("k", ""))

		v, err := s.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "", v)

		_, err = s.Get("missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("delete then get is not found", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("k", "v"))
		require.NoError(t, s.Delete("k"))

		_, err := s.Get("k")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("delete of absent key is not found", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.Delete("absent")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("import merges and overwrites", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("a", "1"))

		require.NoError(t, s.Import(map[string]string{"a": "2", "b": "3"}))

		va, _ := s.Get("a")
		vb, _ := s.Get("b")
		assert.Equal(t, "2", va)
		assert.Equal(t, "3", vb)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put("a", "1"))

		snap := s.Snapshot()
		snap["a"] = "mutated"

		v, _ := s.Get("a")
		assert.Equal(t, "1", v, "mutating the returned snapshot must not affect the store")
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "5001.yaml")

	kv := map[string]string{"foo": "bar", "empty": "", "unicode": "héllo"}
	require.NoError(t, WriteSnapshot(path, kv))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, kv, loaded)
}

func TestReadSnapshotMissingFile(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
