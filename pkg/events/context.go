package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EventSink receives published events.
type EventSink interface {
	PublishEvent(event Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(event Event) error

func (f SinkFunc) PublishEvent(event Event) error { return f(event) }

type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
	ctxKeyMetadata
)

// WithEventSinks attaches one or more EventSink instances to the context.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := append([]EventSink{}, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

// GetEventSinks returns the list of EventSinks attached to the context.
func GetEventSinks(ctx context.Context) []EventSink {
	if v := ctx.Value(ctxKeyEventSinks); v != nil {
		if sinks, ok := v.([]EventSink); ok {
			return sinks
		}
	}
	return nil
}

// WithMetadata sets the correlation metadata used by MetadataFromContext.
func WithMetadata(ctx context.Context, md EventMetadata) context.Context {
	return context.WithValue(ctx, ctxKeyMetadata, md)
}

// MetadataFromContext returns the correlation metadata of the context with a zero event id.
func MetadataFromContext(ctx context.Context) EventMetadata {
	if md, ok := ctx.Value(ctxKeyMetadata).(EventMetadata); ok {
		return md
	}
	return EventMetadata{}
}

// PublishEventToContext publishes the provided event to all EventSinks stored in the context.
// If no sinks are present, this is a no-op.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		return
	}
	for _, sink := range sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("event sink failed")
		}
	}
}
