// Package toolloop runs one orchestration cycle of a conversation: normalize
// the incoming message, invoke the model, and either persist the answer or
// dispatch the requested tools and hand the results back to the caller.
package toolloop

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/normalize"
	"github.com/go-go-golems/parley/pkg/prompts"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Loop struct {
	eng        engine.Engine
	history    *history.Store
	executor   *tools.Executor
	catalogue  *tools.Catalogue
	normalizer *normalize.Normalizer
	prompts    *prompts.Builder
	typing     channel.TypingNotifier
	loopCfg    LoopConfig
	clock      func() time.Time

	snapshotHook SnapshotHook
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.loopCfg = l.loopCfg.withDefaults()
	return l
}

func WithEngine(eng engine.Engine) Option {
	return func(l *Loop) { l.eng = eng }
}

func WithHistory(h *history.Store) Option {
	return func(l *Loop) { l.history = h }
}

func WithExecutor(exec *tools.Executor) Option {
	return func(l *Loop) { l.executor = exec }
}

// WithCatalogue sets the source of tool specs offered to the model.
func WithCatalogue(c *tools.Catalogue) Option {
	return func(l *Loop) { l.catalogue = c }
}

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(l *Loop) { l.normalizer = n }
}

func WithPrompts(b *prompts.Builder) Option {
	return func(l *Loop) { l.prompts = b }
}

func WithTyping(n channel.TypingNotifier) Option {
	return func(l *Loop) { l.typing = n }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

func WithSnapshotHook(h SnapshotHook) Option {
	return func(l *Loop) { l.snapshotHook = h }
}

// WithClock overrides the time source used for the prompt timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Input is one external invocation of the loop.
type Input struct {
	ConversationID string
	MessageID      string
	UserName       string
	Language       string
	// Message is the incoming channel message. Ignored when Resume is set.
	Message *channel.Message
	// Resume continues a cycle that ended with tool results pending.
	Resume *Resume
	// OnTextDelta receives response fragments when streaming.
	OnTextDelta engine.TextDeltaFunc
}

func (l *Loop) snapshot(ctx context.Context, lg turns.Log, phase string) {
	if l.snapshotHook != nil {
		l.snapshotHook(ctx, lg, phase)
		return
	}
	if h, ok := LogSnapshotHookFromContext(ctx); ok {
		h(ctx, lg, phase)
	}
}

// cycle tracks the state of one Run for logging and events.
type cycle struct {
	ctx   context.Context
	md    events.EventMetadata
	state State
}

func (c *cycle) transition(to State) {
	log.Debug().
		Str("conversation_id", c.md.ConversationID).
		Str("message_id", c.md.MessageID).
		Str("from", string(c.state)).
		Str("to", string(to)).
		Msg("toolloop: state transition")
	events.PublishEventToContext(c.ctx, events.NewStateEvent(c.md, string(c.state), string(to)))
	c.state = to
}

func (c *cycle) fail(err error) error {
	log.Warn().
		Err(err).
		Str("conversation_id", c.md.ConversationID).
		Str("message_id", c.md.MessageID).
		Str("state", string(c.state)).
		Msg("toolloop: cycle failed")
	c.transition(StateFailed)
	events.PublishEventToContext(c.ctx, events.NewErrorEvent(c.md, err))
	return err
}

// Run executes exactly one cycle. It ends in StateDone after persisting the
// answer, or in StateAwaitingTools with Outcome.Resume carrying the tool
// results; the caller re-invokes Run with that Resume to continue. On error
// the stored history is left untouched.
func (l *Loop) Run(ctx context.Context, in Input) (*Outcome, error) {
	if l == nil || l.eng == nil || l.history == nil {
		return nil, errors.Wrap(ErrNotConfigured, "engine and history are required")
	}
	if in.ConversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	md := events.EventMetadata{ConversationID: in.ConversationID, MessageID: in.MessageID}
	ctx = events.WithMetadata(ctx, md)
	ctx = tools.WithInvocation(ctx, tools.Invocation{
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		UserName:       in.UserName,
		Language:       in.Language,
	})
	c := &cycle{ctx: ctx, md: md}

	c.transition(StateNormalizing)
	lg, err := l.prepare(ctx, in)
	if err != nil {
		return nil, c.fail(err)
	}

	stopTyping := startTyping(ctx, l.typing, in.ConversationID, l.loopCfg.TypingInterval)
	defer stopTyping()

	c.transition(StateInvoking)
	req, err := l.request(ctx, in, lg)
	if err != nil {
		return nil, c.fail(err)
	}
	l.snapshot(ctx, lg, "pre_inference")
	res, err := l.invoke(ctx, in, req)
	if err != nil {
		return nil, c.fail(newInvocationError(err))
	}
	log.Debug().
		Str("conversation_id", in.ConversationID).
		Str("stop_reason", string(res.StopReason)).
		Int("input_tokens", res.Usage.InputTokens).
		Int("output_tokens", res.Usage.OutputTokens).
		Int("tool_calls", len(res.ToolCalls)).
		Msg("toolloop: model responded")
	l.snapshot(ctx, lg, "post_inference")

	if res.ToolsPending() {
		c.transition(StateAwaitingTools)
		for _, call := range res.ToolCalls {
			events.PublishEventToContext(ctx, events.NewToolCallEvent(md, events.ToolCall{
				ID:    call.ID,
				Name:  call.Name,
				Input: inputString(call.Input),
			}))
		}
		c.transition(StateDispatching)
		results := l.dispatch(ctx, res.ToolCalls)
		resume := &Resume{
			Log:              lg,
			AssistantText:    res.Text,
			PendingToolCalls: res.ToolCalls,
			ToolResults:      results,
		}
		l.snapshot(ctx, lg, "post_tools")
		return &Outcome{
			State:      StateAwaitingTools,
			StopReason: res.StopReason,
			Usage:      res.Usage,
			Resume:     resume,
			Log:        lg,
		}, nil
	}

	stopTyping()
	c.transition(StatePersisting)
	text := res.Text
	if strings.TrimSpace(text) == "" {
		log.Warn().Str("conversation_id", in.ConversationID).Str("stop_reason", string(res.StopReason)).Msg("toolloop: empty model response")
		text = EmptyResponsePlaceholder
	}
	lg = append(lg, turns.NewAssistantText(text))
	lg = l.history.Compact(lg, l.loopCfg.MaxHistoryLength)
	l.snapshot(ctx, lg, "pre_persist")
	if err := l.history.Save(ctx, in.ConversationID, lg, history.NewMetadata(in.ConversationID, in.MessageID, in.Language)); err != nil {
		return nil, c.fail(err)
	}

	c.transition(StateDone)
	events.PublishEventToContext(ctx, events.NewFinalEvent(md, text))
	return &Outcome{
		State:      StateDone,
		Response:   text,
		StopReason: res.StopReason,
		Usage:      res.Usage,
		Log:        lg,
	}, nil
}

// prepare builds the log sent to the model. Normalization happens before any
// storage access so unsupported input never touches the history.
func (l *Loop) prepare(ctx context.Context, in Input) (turns.Log, error) {
	if in.Resume != nil {
		return in.Resume.continuation()
	}
	if l.normalizer == nil {
		return nil, errors.Wrap(ErrNotConfigured, "normalizer is required")
	}
	if in.Message == nil {
		return nil, errors.New("message is required")
	}
	turn, err := l.normalizer.Normalize(ctx, in.Message)
	if err != nil {
		return nil, err
	}
	if l.normalizer.IsStart(in.Message) {
		return turns.Log{turn}, nil
	}
	lg, err := l.history.Load(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	return append(lg, turn), nil
}

func (l *Loop) request(ctx context.Context, in Input, lg turns.Log) (engine.Request, error) {
	req := engine.Request{Log: lg}
	if l.catalogue != nil {
		specs, err := l.catalogue.Load(ctx)
		if err != nil {
			return req, errors.Wrap(err, "loading tool catalogue")
		}
		req.Tools = specs
	}
	if l.prompts != nil {
		prompt, err := l.prompts.Build(prompts.Context{
			Now:            l.clock(),
			UserName:       in.UserName,
			Language:       in.Language,
			ToolDirectives: l.loopCfg.ToolDirectives,
		})
		if err != nil {
			return req, err
		}
		req.SystemPrompt = prompt
	}
	return req, nil
}

func (l *Loop) invoke(ctx context.Context, in Input, req engine.Request) (*engine.Result, error) {
	se, ok := l.eng.(engine.StreamingEngine)
	if !l.loopCfg.Stream || !ok {
		return l.eng.Invoke(ctx, req)
	}
	md := events.MetadataFromContext(ctx)
	var completion strings.Builder
	return se.InvokeStream(ctx, req, func(delta string) {
		completion.WriteString(delta)
		events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(md, delta, completion.String()))
		if in.OnTextDelta != nil {
			in.OnTextDelta(delta)
		}
	})
}

func (l *Loop) dispatch(ctx context.Context, calls []turns.ToolUseBlock) []turns.ToolResultBlock {
	if l.executor == nil {
		results := make([]turns.ToolResultBlock, len(calls))
		for i, call := range calls {
			results[i] = turns.NewToolError(call.ID, errors.Wrapf(tools.ErrToolNotFound, "%s", call.Name))
		}
		return results
	}
	return l.executor.Dispatch(ctx, calls)
}

func inputString(input map[string]any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(b)
}
