package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// DefaultTopic is the topic conversation events are published on.
const DefaultTopic = "conversation"

// EventRouter wires an in-process pub/sub with a watermill router so
// handlers can consume events published through a WatermillSink.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router
	return ret, nil
}

// Sink returns an EventSink publishing into this router on topic.
func (e *EventRouter) Sink(topic string) *WatermillSink {
	return NewWatermillSink(e.Publisher, topic)
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// AddEventHandler decodes messages on topic and passes typed events to f.
// Undecodable messages are logged and acknowledged.
func (e *EventRouter) AddEventHandler(name string, topic string, f func(ctx context.Context, ev Event) error) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("handler", name).Str("message_uuid", msg.UUID).Msg("dropping undecodable event")
			return nil
		}
		return f(msg.Context(), ev)
	})
}

// LogEvent writes an event to the global logger at debug level.
func LogEvent(_ context.Context, ev Event) error {
	l := log.Debug().Str("type", string(ev.Type())).Object("meta", ev.Metadata())
	switch e := ev.(type) {
	case *EventState:
		l = l.Str("from", e.From).Str("to", e.To)
	case *EventPartialCompletion:
		l = l.Int("completion_len", len(e.Completion))
	case *EventFinal:
		l = l.Int("text_len", len(e.Text))
	case *EventError:
		l = l.Str("error", e.ErrorString)
	case *EventToolCall:
		l = l.Object("tool_call", e.ToolCall)
	case *EventToolCallExecute:
		l = l.Object("tool_call", e.ToolCall)
	case *EventToolCallExecutionResult:
		l = l.Object("tool_result", e.ToolResult)
	}
	l.Msg("event")
	return nil
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	return nil
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Run runs the router until ctx is cancelled or Close is called. The
// watermill router only stops on its own once a handler has stopped, so a
// router without handlers is closed explicitly when ctx ends.
func (e *EventRouter) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := e.router.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close router")
			}
		case <-done:
		}
	}()
	return e.router.Run(ctx)
}
