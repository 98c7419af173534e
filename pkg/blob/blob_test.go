package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
	_, err = s.Head(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	md := map[string]string{"ChatId": "42", "Language": "en"}
	require.NoError(t, s.Put(ctx, "chats/42.json", []byte(`[{"role":"user"}]`), md))

	obj, err := s.Get(ctx, "chats/42.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"role":"user"}]`), obj.Body)
	assert.Equal(t, md, obj.Metadata)

	info, err := s.Head(ctx, "chats/42.json")
	require.NoError(t, err)
	assert.Equal(t, int64(len(`[{"role":"user"}]`)), info.Size)
	assert.Equal(t, "42", info.Metadata["ChatId"])

	require.NoError(t, s.Put(ctx, "chats/42.json", []byte(`[]`), nil))
	obj, err = s.Get(ctx, "chats/42.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), obj.Body)
	assert.Empty(t, obj.Metadata)

	for _, key := range []string{"", "/abs", "a/../b", "a//b", `a\b`} {
		assert.ErrorIs(t, s.Put(ctx, key, nil, nil), ErrInvalidKey, key)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	assert.Equal(t, 2, s.Puts())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

func TestFileStoreCompressed(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, WithCompression(true))
	require.NoError(t, err)
	testStore(t, s)

	ctx := context.Background()
	body := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, s.Put(ctx, "big", body, nil))
	raw, err := os.ReadFile(filepath.Join(dir, "big"))
	require.NoError(t, err)
	assert.Less(t, len(raw), len(body))

	// an uncompressed store reads compressed objects through the sidecar
	plain, err := NewFileStore(dir)
	require.NoError(t, err)
	obj, err := plain.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, body, obj.Body)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestFileStoreConfinesKeysToRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "history")
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../outside.json", "a/../../outside.json", "..", "../history-x/42.json"} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, key, []byte("x"), nil), ErrInvalidKey)
			_, err := s.Get(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey)
			_, err = s.Head(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "history", entries[0].Name())
}
