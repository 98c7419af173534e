// Package session drives the tool loop for incoming channel messages: it
// re-enters the loop for each tool round, keeps one run per conversation,
// and delivers the final answer back to the channel.
package session

import (
	"context"
	"sync"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/inference/toolloop"
	"github.com/go-go-golems/parley/pkg/markup"
	"github.com/go-go-golems/parley/pkg/normalize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrDriverNil            = errors.New("driver is nil")
	ErrRunnerNil            = errors.New("driver has no loop runner")
	ErrSessionAlreadyActive = channel.ErrConversationBusy
	ErrSessionNoActive      = errors.New("conversation has no active run")
	ErrConversationIDEmpty  = errors.New("message has empty conversation id")
	ErrToolRoundsExceeded   = errors.New("maximum tool rounds exceeded")
)

const (
	DefaultMaxToolRounds = 5

	DefaultUnsupportedReply = "Sorry, I can't handle this kind of message yet"
	DefaultFailureReply     = "Sorry, something went wrong while answering, please try again later"
)

// LoopRunner runs one orchestration cycle. *toolloop.Loop implements it.
type LoopRunner interface {
	Run(ctx context.Context, in toolloop.Input) (*toolloop.Outcome, error)
}

// Result is the outcome of handling one message.
type Result struct {
	Response string
	// ToolRounds counts the cycles that ended with tools pending.
	ToolRounds int
	Outcome    *toolloop.Outcome
}

// Driver handles channel messages. It owns the invariant that only one run
// is active per conversation at a time.
type Driver struct {
	runner           LoopRunner
	sender           channel.Sender
	maxToolRounds    int
	language         string
	unsupportedReply string
	failureReply     string

	mu     sync.Mutex
	active map[string]*ExecutionHandle
}

var _ channel.Handler = (*Driver)(nil)

type Option func(*Driver)

func WithSender(s channel.Sender) Option {
	return func(d *Driver) { d.sender = s }
}

func WithMaxToolRounds(n int) Option {
	return func(d *Driver) { d.maxToolRounds = n }
}

// WithLanguage forces the response language. Without it the sender's
// language code is used, and the model mirrors the user when that is empty.
func WithLanguage(lang string) Option {
	return func(d *Driver) { d.language = lang }
}

func WithReplies(unsupported, failure string) Option {
	return func(d *Driver) {
		d.unsupportedReply = unsupported
		d.failureReply = failure
	}
}

func NewDriver(runner LoopRunner, opts ...Option) *Driver {
	d := &Driver{
		runner:           runner,
		maxToolRounds:    DefaultMaxToolRounds,
		unsupportedReply: DefaultUnsupportedReply,
		failureReply:     DefaultFailureReply,
		active:           map[string]*ExecutionHandle{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.maxToolRounds <= 0 {
		d.maxToolRounds = DefaultMaxToolRounds
	}
	return d
}

// IsRunning reports whether the conversation currently has an active run.
func (d *Driver) IsRunning(conversationID string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.active[conversationID]
	return h != nil && h.IsRunning()
}

// Start handles msg asynchronously and returns an ExecutionHandle.
func (d *Driver) Start(ctx context.Context, msg *channel.Message) (*ExecutionHandle, error) {
	if d == nil {
		return nil, ErrDriverNil
	}
	if d.runner == nil {
		return nil, ErrRunnerNil
	}
	if msg == nil || msg.ConversationID == "" {
		return nil, ErrConversationIDEmpty
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(WithRunMeta(ctx, msg.ConversationID, runID))
	handle := newExecutionHandle(msg.ConversationID, msg.ID, runID, cancel)

	d.mu.Lock()
	if h := d.active[msg.ConversationID]; h != nil && h.IsRunning() {
		d.mu.Unlock()
		cancel()
		return nil, ErrSessionAlreadyActive
	}
	d.active[msg.ConversationID] = handle
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			if d.active[msg.ConversationID] == handle {
				delete(d.active, msg.ConversationID)
			}
			d.mu.Unlock()
			cancel()
		}()

		out, err := d.run(runCtx, msg)
		handle.setResult(out, err)
	}()

	return handle, nil
}

// CancelActive cancels the active run of a conversation, if any.
func (d *Driver) CancelActive(conversationID string) error {
	if d == nil {
		return ErrDriverNil
	}
	d.mu.Lock()
	h := d.active[conversationID]
	d.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrSessionNoActive
	}
	h.Cancel()
	return nil
}

// Process handles msg and waits for the final answer without delivering it.
func (d *Driver) Process(ctx context.Context, msg *channel.Message) (*Result, error) {
	h, err := d.Start(ctx, msg)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// HandleMessage processes msg and sends the answer to the configured sender.
// Unsupported input is answered with an apology and is not an error.
func (d *Driver) HandleMessage(ctx context.Context, msg *channel.Message) error {
	res, err := d.Process(ctx, msg)
	if err != nil {
		switch {
		case normalize.IsUnsupported(err):
			log.Info().Err(err).Str("conversation_id", msg.ConversationID).Str("message_id", msg.ID).Msg("unsupported input")
			return d.reply(ctx, msg.ConversationID, markup.Escape(d.unsupportedReply))
		case errors.Is(err, ErrSessionAlreadyActive), errors.Is(err, ErrConversationIDEmpty):
			return err
		}
		if d.failureReply != "" {
			if sendErr := d.reply(ctx, msg.ConversationID, markup.Escape(d.failureReply)); sendErr != nil {
				log.Warn().Err(sendErr).Str("conversation_id", msg.ConversationID).Msg("could not send failure reply")
			}
		}
		return err
	}

	html, err := markup.ToHTML(res.Response)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("rendering response markup")
		html = markup.Escape(res.Response)
	}
	return d.reply(ctx, msg.ConversationID, html)
}

func (d *Driver) reply(ctx context.Context, conversationID, html string) error {
	if d.sender == nil || html == "" {
		return nil
	}
	if err := d.sender.SendMessage(ctx, conversationID, html); err != nil {
		return errors.Wrapf(err, "sending reply to %s", conversationID)
	}
	return nil
}

// run re-enters the loop with the previous cycle's tool results until the
// model answers without tools, bounded by maxToolRounds.
func (d *Driver) run(ctx context.Context, msg *channel.Message) (*Result, error) {
	lang := d.language
	if lang == "" {
		lang = msg.From.LanguageCode
	}
	in := toolloop.Input{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserName:       msg.From.Name,
		Language:       lang,
		Message:        msg,
	}

	rounds := 0
	for {
		out, err := d.runner.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		if out.State != toolloop.StateAwaitingTools {
			log.Debug().
				Str("conversation_id", msg.ConversationID).
				Str("message_id", msg.ID).
				Str("run_id", RunIDFromContext(ctx)).
				Int("tool_rounds", rounds).
				Msg("message handled")
			return &Result{Response: out.Response, ToolRounds: rounds, Outcome: out}, nil
		}
		rounds++
		if rounds > d.maxToolRounds {
			return nil, errors.Wrapf(ErrToolRoundsExceeded, "conversation %s after %d rounds", msg.ConversationID, d.maxToolRounds)
		}
		in = toolloop.Input{
			ConversationID: in.ConversationID,
			MessageID:      in.MessageID,
			UserName:       in.UserName,
			Language:       in.Language,
			Resume:         out.Resume,
		}
	}
}
