package claude

import (
	"context"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/stream"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// apiEventSource yields Claude streaming events.
type apiEventSource interface {
	Next(ctx context.Context) (api.StreamingEvent, bool, error)
}

// ContentBlockMerger turns Claude streaming events into provider-neutral
// stream events. It implements stream.Source.
//
// message_start carries the input token count, message_delta the output
// token count and stop reason; both are reported as one metadata event
// followed by the message stop event.
type ContentBlockMerger struct {
	src     apiEventSource
	pending []stream.Event
	usage   engine.Usage
	model   string
}

var _ stream.Source = (*ContentBlockMerger)(nil)

func NewContentBlockMerger(src apiEventSource) *ContentBlockMerger {
	return &ContentBlockMerger{src: src}
}

func (m *ContentBlockMerger) Next(ctx context.Context) (stream.Event, bool, error) {
	for len(m.pending) == 0 {
		ev, ok, err := m.src.Next(ctx)
		if err != nil {
			return stream.Event{}, false, err
		}
		if !ok {
			return stream.Event{}, false, nil
		}
		if err := m.add(ev); err != nil {
			return stream.Event{}, false, err
		}
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	return ev, true, nil
}

func (m *ContentBlockMerger) add(event api.StreamingEvent) error {
	switch event.Type {
	case api.PingType, api.ContentBlockStopType, api.MessageStopType:

	case api.MessageStartType:
		if event.Message == nil {
			return errors.New("message_start event must have a message")
		}
		m.model = event.Message.Model
		m.usage.InputTokens = event.Message.Usage.InputTokens
		m.usage.OutputTokens = event.Message.Usage.OutputTokens

	case api.ContentBlockStartType:
		if event.ContentBlock == nil {
			return errors.New("content_block_start event must have a content block")
		}
		switch event.ContentBlock.Type {
		case api.ContentTypeToolUse:
			m.emit(stream.BlockStart(event.ContentBlock.ID, event.ContentBlock.Name))
		case api.ContentTypeText:
			if event.ContentBlock.Text != "" {
				m.emit(stream.TextDelta(event.ContentBlock.Text))
			}
		}

	case api.ContentBlockDeltaType:
		if event.Delta == nil {
			return errors.New("content_block_delta event must have a delta")
		}
		switch event.Delta.Type {
		case api.TextDeltaType:
			m.emit(stream.TextDelta(event.Delta.Text))
		case api.InputJSONDeltaType:
			m.emit(stream.ToolInputDelta(event.Delta.PartialJSON))
		default:
			log.Debug().Str("delta_type", string(event.Delta.Type)).Msg("ignoring claude delta")
		}

	case api.MessageDeltaType:
		if event.Usage != nil {
			m.usage.OutputTokens = event.Usage.OutputTokens
			if event.Usage.InputTokens > 0 {
				m.usage.InputTokens = event.Usage.InputTokens
			}
		}
		m.emit(stream.Metadata(m.usage))
		if event.Delta != nil && event.Delta.StopReason != "" {
			m.emit(stream.MessageStop(engine.StopReason(event.Delta.StopReason)))
		}

	case api.ErrorType:
		if event.Error != nil {
			return errors.Errorf("claude stream error (%s): %s", event.Error.Type, event.Error.Message)
		}
		return errors.New("claude stream error")

	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("ignoring unknown claude event")
	}
	return nil
}

func (m *ContentBlockMerger) emit(ev stream.Event) {
	m.pending = append(m.pending, ev)
}
