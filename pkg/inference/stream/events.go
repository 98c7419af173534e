// Package stream reduces incremental model output into a complete engine.Result.
package stream

import (
	"context"

	"github.com/go-go-golems/parley/pkg/inference/engine"
)

type EventType string

const (
	// EventBlockStart opens a tool call. Text block starts carry no tool identity and are ignored.
	EventBlockStart EventType = "block_start"
	// EventTextDelta carries a fragment of response text.
	EventTextDelta EventType = "text_delta"
	// EventToolInputDelta carries a raw JSON fragment of the last opened tool call's input.
	EventToolInputDelta EventType = "tool_input_delta"
	// EventMetadata carries usage statistics.
	EventMetadata EventType = "metadata"
	// EventMessageStop carries the stop reason.
	EventMessageStop EventType = "message_stop"
)

// Event is one incremental unit of a streamed response.
type Event struct {
	Type       EventType
	ToolCallID string
	ToolName   string
	Text       string
	Usage      *engine.Usage
	StopReason engine.StopReason
}

func BlockStart(id, name string) Event {
	return Event{Type: EventBlockStart, ToolCallID: id, ToolName: name}
}

func TextDelta(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

func ToolInputDelta(fragment string) Event {
	return Event{Type: EventToolInputDelta, Text: fragment}
}

func Metadata(usage engine.Usage) Event {
	return Event{Type: EventMetadata, Usage: &usage}
}

func MessageStop(reason engine.StopReason) Event {
	return Event{Type: EventMessageStop, StopReason: reason}
}

// Source is a pull-based, single-pass event sequence. Next returns ok=false
// once the stream is exhausted.
type Source interface {
	Next(ctx context.Context) (ev Event, ok bool, err error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}
	if s.pos >= len(s.events) {
		return Event{}, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true, nil
}
