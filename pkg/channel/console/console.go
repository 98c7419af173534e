// Package console is a channel over a terminal: lines typed by the user are
// messages, replies are printed as plain text.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/markup"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

var ErrNoFiles = errors.New("console channel has no files")

// Console implements channel.Channel for a single local conversation.
type Console struct {
	ui             *input.UI
	in             *eofReader
	out            io.Writer
	conversationID string
	user           channel.User
	prompt         string

	mu  sync.Mutex
	seq int
}

var _ channel.Channel = (*Console)(nil)

func New(in io.Reader, out io.Writer, conversationID string, user channel.User) *Console {
	r := &eofReader{r: in}
	return &Console{
		ui:             &input.UI{Reader: r, Writer: out},
		in:             r,
		out:            out,
		conversationID: conversationID,
		user:           user,
		prompt:         user.Name + ">",
	}
}

// eofReader remembers that the underlying reader is exhausted, since the
// prompt reports end of input as an empty line.
type eofReader struct {
	r   io.Reader
	mu  sync.Mutex
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.mu.Lock()
		e.eof = true
		e.mu.Unlock()
	}
	return n, err
}

func (e *eofReader) done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eof
}

func (c *Console) SendMessage(_ context.Context, _ string, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s\n\n", markup.StripTags(html))
	return err
}

func (c *Console) SendTyping(context.Context, string) error {
	return nil
}

func (c *Console) FetchFile(context.Context, string) ([]byte, error) {
	return nil, ErrNoFiles
}

// Run reads lines until /quit, end of input or ctx cancellation and hands
// each non-empty line to h.
func (c *Console) Run(ctx context.Context, h channel.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := c.ui.Ask(c.prompt, &input.Options{HideOrder: true})
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, input.ErrInterrupted) {
				return nil
			}
			return errors.Wrap(err, "reading input")
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			if c.in.done() {
				return nil
			}
			continue
		case "/quit", "/exit":
			return nil
		}

		c.mu.Lock()
		c.seq++
		id := strconv.Itoa(c.seq)
		c.mu.Unlock()

		msg := &channel.Message{
			ID:             id,
			ConversationID: c.conversationID,
			From:           c.user,
			Date:           time.Now().UTC(),
			Text:           line,
		}
		if err := h.HandleMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("conversation_id", c.conversationID).Str("message_id", id).Msg("console: handling message failed")
			c.mu.Lock()
			_, _ = fmt.Fprintf(c.out, "\nerror: %v\n\n", err)
			c.mu.Unlock()
		}
	}
}
