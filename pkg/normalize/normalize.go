// Package normalize converts inbound channel messages into canonical user turns.
package normalize

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStartCommand = "/start"
	DefaultGreeting     = "Hello"

	analyzeImage = "analyze the image content"
	forwardAsk   = "Summarize the content of the message as concisely as possible, use a maximum of two sentences, do not use lists"
)

var (
	imageExtensions    = set("gif", "jpg", "jpeg", "png", "webp")
	videoExtensions    = set("mp4", "mov", "avi", "mkv", "webm", "m4v", "3gp")
	documentExtensions = set("pdf", "csv", "doc", "docx", "xls", "xlsx", "html", "txt", "md")
)

func set(values ...string) map[string]bool {
	ret := make(map[string]bool, len(values))
	for _, v := range values {
		ret[v] = true
	}
	return ret
}

// Normalizer turns a channel.Message into one user turn. Attachments are
// downloaded synchronously through the fetcher.
type Normalizer struct {
	fetcher      channel.FileFetcher
	startCommand string
	greeting     string
}

type Option func(*Normalizer)

func WithStartCommand(cmd string) Option {
	return func(n *Normalizer) { n.startCommand = cmd }
}

func WithGreeting(greeting string) Option {
	return func(n *Normalizer) { n.greeting = greeting }
}

func NewNormalizer(fetcher channel.FileFetcher, opts ...Option) *Normalizer {
	n := &Normalizer{
		fetcher:      fetcher,
		startCommand: DefaultStartCommand,
		greeting:     DefaultGreeting,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// IsStart reports whether msg is the start command that seeds a fresh conversation.
func (n *Normalizer) IsStart(msg *channel.Message) bool {
	return msg != nil && n.startCommand != "" && strings.TrimSpace(msg.Text) == n.startCommand
}

// Normalize applies, in order: start command, photo, document, video,
// forwarded message, plain text.
func (n *Normalizer) Normalize(ctx context.Context, msg *channel.Message) (turns.Turn, error) {
	if msg == nil {
		return turns.Turn{}, errors.Wrap(ErrUnsupportedInput, "no message")
	}
	switch {
	case n.IsStart(msg):
		return turns.NewUserText(n.greeting), nil
	case len(msg.Photo) > 0:
		return n.photo(ctx, msg)
	case msg.Document != nil:
		return n.document(ctx, msg)
	case msg.Video != nil:
		return n.video(ctx, msg, msg.Video.FileName, msg.Video.Thumbnail)
	case msg.Forward != nil:
		return forwarded(msg)
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return turns.Turn{}, errors.Wrap(ErrUnsupportedInput, "message has no text or attachment")
	}
	return turns.NewUserText(text), nil
}

func (n *Normalizer) photo(ctx context.Context, msg *channel.Message) (turns.Turn, error) {
	largest, _ := msg.LargestPhoto()
	data, err := n.fetch(ctx, msg, largest.ID)
	if err != nil {
		return turns.Turn{}, err
	}
	text := msg.Caption
	if text == "" {
		text = msg.Text
	}
	if text == "" {
		text = analyzeImage
	}
	return turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
		turns.ImageBlock{Format: "jpeg", Name: msg.ID, Bytes: data},
		turns.TextBlock{Text: text},
	}}, nil
}

func (n *Normalizer) document(ctx context.Context, msg *channel.Message) (turns.Turn, error) {
	doc := msg.Document
	ext := Extension(doc.FileName)

	switch {
	case imageExtensions[ext]:
		data, err := n.fetch(ctx, msg, doc.ID)
		if err != nil {
			return turns.Turn{}, err
		}
		return turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.ImageBlock{Format: ImageFormat(ext), Name: msg.ID, Bytes: data},
			turns.TextBlock{Text: withCaption(fmt.Sprintf("%s (the original file name is '%s')", analyzeImage, doc.FileName), msg.Caption)},
		}}, nil

	case videoExtensions[ext]:
		return n.video(ctx, msg, doc.FileName, doc.Thumbnail)

	case documentExtensions[ext]:
		data, err := n.fetch(ctx, msg, doc.ID)
		if err != nil {
			return turns.Turn{}, err
		}
		return turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.DocumentBlock{Format: ext, Name: msg.ID, Bytes: data},
			turns.TextBlock{Text: withCaption(fmt.Sprintf("extract essential information from file content (the original file name is '%s')", doc.FileName), msg.Caption)},
		}}, nil
	}

	return turns.Turn{}, &UnsupportedDocumentTypeError{Extension: ext, FileName: doc.FileName}
}

func (n *Normalizer) video(ctx context.Context, msg *channel.Message, fileName string, thumb *channel.File) (turns.Turn, error) {
	if thumb == nil {
		return turns.Turn{}, errors.Wrapf(ErrUnsupportedInput, "video %q has no thumbnail", fileName)
	}
	data, err := n.fetch(ctx, msg, thumb.ID)
	if err != nil {
		return turns.Turn{}, err
	}
	text := "this is a video thumbnail, " + analyzeImage
	if fileName != "" {
		text += fmt.Sprintf(" (the original file name is '%s')", fileName)
	}
	return turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
		turns.ImageBlock{Format: "jpeg", Name: msg.ID, Bytes: data},
		turns.TextBlock{Text: withCaption(text, msg.Caption)},
	}}, nil
}

func forwarded(msg *channel.Message) (turns.Turn, error) {
	body := msg.Body()
	if strings.TrimSpace(body) == "" {
		return turns.Turn{}, errors.Wrap(ErrUnsupportedInput, "forwarded message has no text")
	}
	origin := msg.Forward
	sender := origin.SenderName
	if sender == "" {
		sender = "unknown"
	}
	instruction := fmt.Sprintf(
		"this is a forwarded message, the original sender is '%s', was sent on '%s'. %s",
		sender, origin.Date.UTC().Format("Mon Jan 02 2006"), forwardAsk,
	)
	return turns.Turn{Role: turns.RoleUser, Content: []turns.ContentBlock{
		turns.DocumentBlock{Format: "txt", Name: msg.ID, Bytes: []byte(body)},
		turns.TextBlock{Text: instruction},
	}}, nil
}

func (n *Normalizer) fetch(ctx context.Context, msg *channel.Message, fileID string) ([]byte, error) {
	if n.fetcher == nil {
		return nil, errors.New("no file fetcher configured")
	}
	log.Debug().
		Str("conversation_id", msg.ConversationID).
		Str("message_id", msg.ID).
		Str("file_id", fileID).
		Msg("fetching attachment")
	return n.fetcher.FetchFile(ctx, fileID)
}

func withCaption(text, caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return text
	}
	return text + ". " + caption
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// ImageFormat maps an image extension to the format name providers expect.
func ImageFormat(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}
