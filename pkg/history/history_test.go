package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/parley/pkg/blob"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	blob.Store
	err error
}

func (f failingStore) Get(context.Context, string) (*blob.Object, error) { return nil, f.err }

func TestLoadMissingIsEmpty(t *testing.T) {
	s := NewStore(blob.NewMemoryStore())
	l, err := s.Load(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	blobs := blob.NewMemoryStore()
	require.NoError(t, blobs.Put(context.Background(), "1.json", []byte("{not json"), nil))
	s := NewStore(blobs)
	l, err := s.Load(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestLoadPropagatesStorageErrors(t *testing.T) {
	s := NewStore(failingStore{Store: blob.NewMemoryStore(), err: errors.New("access denied")})
	_, err := s.Load(context.Background(), "1")
	assert.ErrorContains(t, err, "access denied")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	s := NewStore(blobs, WithKeyPrefix("history/"))

	l := turns.Log{
		{Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.ImageBlock{Format: "jpeg", Bytes: []byte{255, 216, 255}},
			turns.DocumentBlock{Format: "pdf", Name: "7", Bytes: []byte{37, 80, 68, 70}},
			turns.TextBlock{Text: "look"},
		}},
		turns.NewToolUseTurn("", []turns.ToolUseBlock{{ID: "t1", Name: "render", Input: map[string]any{"w": "10"}}}),
		turns.NewToolResultTurn([]turns.ToolResultBlock{{
			ToolUseID: "t1",
			Status:    turns.ToolResultError,
			Content:   []turns.ContentBlock{turns.ImageBlock{Format: "png", Bytes: []byte{1, 2}}},
		}}),
		turns.NewAssistantText("ok"),
	}
	md := NewMetadata("42", "1001", "en")
	require.NoError(t, s.Save(ctx, "42", l, md))

	obj, err := blobs.Get(ctx, "history/42.json")
	require.NoError(t, err)
	assert.Equal(t, "42", obj.Metadata[MetaChatID])
	assert.Equal(t, "1001", obj.Metadata[MetaMessageID])
	assert.Equal(t, "en", obj.Metadata[MetaLanguage])

	got, err := s.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, l, got)

	ok, err := s.Exists(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "43")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompactDelegates(t *testing.T) {
	s := NewStore(blob.NewMemoryStore())
	l := turns.Log{turns.NewUserText("1"), turns.NewAssistantText("1"), turns.NewUserText("2"), turns.NewAssistantText("2")}
	assert.Equal(t, l[2:], s.Compact(l, 2))
}

func TestConversationIDCannotEscapeFileStore(t *testing.T) {
	parent := t.TempDir()
	blobs, err := blob.NewFileStore(filepath.Join(parent, "history"))
	require.NoError(t, err)
	s := NewStore(blobs)
	ctx := context.Background()

	err = s.Save(ctx, "../x", turns.Log{turns.NewUserText("hi")}, NewMetadata("../x", "1", "en"))
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
	_, err = s.Load(ctx, "../x")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)

	_, err = os.Stat(filepath.Join(parent, "x.json"))
	assert.True(t, os.IsNotExist(err))
}
