// Package channel describes inbound messages and the messaging-channel
// operations the agent relies on, independent of any particular transport.
package channel

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrConversationBusy is returned by a Handler that cannot take a message
// because the conversation is still handling an earlier one. Callers may
// retry later.
var ErrConversationBusy = errors.New("conversation already has an active run")

// File references an attachment stored by the channel.
type File struct {
	ID       string
	Size     int64
	Width    int
	Height   int
	MimeType string
}

// Document is a generic file attachment.
type Document struct {
	File
	FileName  string
	Thumbnail *File
}

// Video is a native video attachment.
type Video struct {
	File
	FileName  string
	Duration  time.Duration
	Thumbnail *File
}

// ForwardOrigin describes who originally sent a forwarded message.
type ForwardOrigin struct {
	SenderName string
	Date       time.Time
}

// User is the author of a message.
type User struct {
	ID           string
	Name         string
	LanguageCode string
}

// Message is one inbound chat message.
type Message struct {
	ID             string
	ConversationID string
	From           User
	Date           time.Time
	Text           string
	Caption        string
	// Photo holds the available sizes of one image, smallest first.
	Photo    []File
	Document *Document
	Video    *Video
	Forward  *ForwardOrigin
}

// LargestPhoto returns the last photo size, which the channel orders by size.
func (m *Message) LargestPhoto() (File, bool) {
	if len(m.Photo) == 0 {
		return File{}, false
	}
	return m.Photo[len(m.Photo)-1], true
}

// Body returns the text, falling back to the caption.
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// FileFetcher downloads attachment contents.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

// TypingNotifier shows a "working" indicator in a conversation.
type TypingNotifier interface {
	SendTyping(ctx context.Context, conversationID string) error
}

// Sender delivers a reply. The text is HTML using the tags the channel renders.
type Sender interface {
	SendMessage(ctx context.Context, conversationID string, html string) error
}

// Channel is a full messaging transport.
type Channel interface {
	FileFetcher
	TypingNotifier
	Sender
}

// Handler processes one inbound message.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// NopTyping discards typing indicators.
type NopTyping struct{}

func (NopTyping) SendTyping(context.Context, string) error { return nil }
