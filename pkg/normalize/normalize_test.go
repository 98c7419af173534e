package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	files   map[string][]byte
	err     error
	fetched []string
}

func (f *fakeFetcher) FetchFile(_ context.Context, id string) ([]byte, error) {
	f.fetched = append(f.fetched, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.files[id], nil
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{files: map[string][]byte{
		"small": []byte("s"),
		"big":   []byte("BIG"),
		"doc":   []byte("%PDF"),
		"thumb": []byte("thumb"),
	}}
}

func TestNormalize(t *testing.T) {
	sent := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		msg  *channel.Message
		want turns.Turn
	}{
		{
			name: "start command discards everything else",
			msg:  &channel.Message{ID: "1", Text: "/start", Photo: []channel.File{{ID: "big"}}},
			want: turns.NewUserText("Hello"),
		},
		{
			name: "plain text",
			msg:  &channel.Message{ID: "1", Text: " hi there "},
			want: turns.NewUserText("hi there"),
		},
		{
			name: "photo uses largest size and caption",
			msg:  &channel.Message{ID: "7", Caption: "what is it", Photo: []channel.File{{ID: "small"}, {ID: "big"}}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "7", Bytes: []byte("BIG")},
				turns.TextBlock{Text: "what is it"},
			}},
		},
		{
			name: "photo caption wins over text",
			msg:  &channel.Message{ID: "7", Caption: "what is it", Text: "ignored", Photo: []channel.File{{ID: "big"}}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "7", Bytes: []byte("BIG")},
				turns.TextBlock{Text: "what is it"},
			}},
		},
		{
			name: "photo falls back to text",
			msg:  &channel.Message{ID: "7", Text: "and this?", Photo: []channel.File{{ID: "big"}}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "7", Bytes: []byte("BIG")},
				turns.TextBlock{Text: "and this?"},
			}},
		},
		{
			name: "photo default instruction",
			msg:  &channel.Message{ID: "7", Photo: []channel.File{{ID: "small"}}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "7", Bytes: []byte("s")},
				turns.TextBlock{Text: "analyze the image content"},
			}},
		},
		{
			name: "image document",
			msg:  &channel.Message{ID: "8", Document: &channel.Document{File: channel.File{ID: "big"}, FileName: "Cat.JPG"}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "8", Bytes: []byte("BIG")},
				turns.TextBlock{Text: "analyze the image content (the original file name is 'Cat.JPG')"},
			}},
		},
		{
			name: "pdf document",
			msg:  &channel.Message{ID: "9", Document: &channel.Document{File: channel.File{ID: "doc"}, FileName: "report.pdf"}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.DocumentBlock{Format: "pdf", Name: "9", Bytes: []byte("%PDF")},
				turns.TextBlock{Text: "extract essential information from file content (the original file name is 'report.pdf')"},
			}},
		},
		{
			name: "video document uses thumbnail",
			msg: &channel.Message{ID: "10", Document: &channel.Document{
				File: channel.File{ID: "video"}, FileName: "clip.mp4", Thumbnail: &channel.File{ID: "thumb"},
			}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "jpeg", Name: "10", Bytes: []byte("thumb")},
				turns.TextBlock{Text: "this is a video thumbnail, analyze the image content (the original file name is 'clip.mp4')"},
			}},
		},
		{
			name: "forwarded message",
			msg:  &channel.Message{ID: "11", Text: "meeting moved", Forward: &channel.ForwardOrigin{SenderName: "Bob", Date: sent}},
			want: turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.DocumentBlock{Format: "txt", Name: "11", Bytes: []byte("meeting moved")},
				turns.TextBlock{Text: "this is a forwarded message, the original sender is 'Bob', was sent on 'Fri May 17 2024'. " + forwardAsk},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(newFetcher())
			got, err := n.Normalize(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	tests := []struct {
		name string
		msg  *channel.Message
	}{
		{"exe document", &channel.Message{ID: "1", Document: &channel.Document{File: channel.File{ID: "x"}, FileName: "setup.exe"}}},
		{"no extension", &channel.Message{ID: "1", Document: &channel.Document{File: channel.File{ID: "x"}, FileName: "README"}}},
		{"video without thumbnail", &channel.Message{ID: "1", Video: &channel.Video{File: channel.File{ID: "v"}}}},
		{"empty message", &channel.Message{ID: "1"}},
		{"nil message", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFetcher()
			_, err := NewNormalizer(f).Normalize(context.Background(), tt.msg)
			require.Error(t, err)
			assert.True(t, IsUnsupported(err))
			assert.Empty(t, f.fetched)
		})
	}
}

func TestUnsupportedDocumentTypeError(t *testing.T) {
	_, err := NewNormalizer(newFetcher()).Normalize(context.Background(),
		&channel.Message{Document: &channel.Document{FileName: "a.EXE"}})
	var typed *UnsupportedDocumentTypeError
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "exe", typed.Extension)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestFetchErrorPropagatesUnmodified(t *testing.T) {
	boom := errors.New("network down")
	f := newFetcher()
	f.err = boom
	_, err := NewNormalizer(f).Normalize(context.Background(), &channel.Message{Photo: []channel.File{{ID: "big"}}})
	assert.Equal(t, boom, err)
}

func TestCustomStartCommand(t *testing.T) {
	n := NewNormalizer(nil, WithStartCommand("/new"), WithGreeting("Hi"))
	got, err := n.Normalize(context.Background(), &channel.Message{Text: "/new"})
	require.NoError(t, err)
	assert.Equal(t, turns.NewUserText("Hi"), got)
	assert.False(t, n.IsStart(&channel.Message{Text: "/start"}))
}
