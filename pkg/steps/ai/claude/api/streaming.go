package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
)

type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *Error             `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))

	if s.Message != nil {
		e.Object("message", s.Message)
	}

	if s.Delta != nil {
		e.Object("delta", s.Delta)
	}

	if s.Error != nil {
		e.Object("error", s.Error)
	}

	if s.Index != 0 {
		e.Int("index", s.Index)
	}

	if s.Usage != nil {
		e.Object("usage", s.Usage)
	}

	if s.ContentBlock != nil {
		e.Object("content_block", s.ContentBlock)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

type ContentBlock struct {
	Type  ContentType `json:"type"`
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
	Input interface{} `json:"input,omitempty"` // Can be string for text or object for tool_use
	Text  string      `json:"text,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type         StreamingDeltaType `json:"type,omitempty"`
	Text         string             `json:"text,omitempty"`
	PartialJSON  string             `json:"partial_json,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

func (cb ContentBlock) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(cb.Type))
	if cb.ID != "" {
		e.Str("id", cb.ID)
	}
	if cb.Name != "" {
		e.Str("name", cb.Name)
	}
	if cb.Input != nil {
		e.Interface("input", cb.Input)
	}
	if cb.Text != "" {
		e.Str("text", cb.Text)
	}
}

func (err Error) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", err.Type)
	e.Str("message", err.Message)
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(d.Type))
	if d.Text != "" {
		e.Str("text", d.Text)
	}
	e.Str("partial_json", d.PartialJSON)
	if d.StopReason != "" {
		e.Str("stop_reason", d.StopReason)
	}
	if d.StopSequence != "" {
		e.Str("stop_sequence", d.StopSequence)
	}
}

// Stream reads server-sent events from a streaming Messages response. It is
// pull based: nothing is read until Next is called.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	count  int
	done   bool
}

func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, reader: bufio.NewReader(body)}
}

// Next returns the next event. ok is false once the stream has ended.
// Events that fail to parse are logged and skipped.
func (s *Stream) Next(ctx context.Context) (StreamingEvent, bool, error) {
	var eventLines [][]byte
	for !s.done {
		if err := ctx.Err(); err != nil {
			return StreamingEvent{}, false, err
		}
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return StreamingEvent{}, false, errors.Wrap(err, "reading claude stream")
		}
		if err == io.EOF {
			s.done = true
			if len(bytes.TrimSpace(line)) > 0 {
				eventLines = append(eventLines, line)
			}
		} else if len(bytes.TrimSpace(line)) > 0 {
			eventLines = append(eventLines, line)
			continue
		}
		if len(eventLines) == 0 {
			continue
		}

		// empty line terminates an event
		var event StreamingEvent
		ok, parseErr := parseSSEEvent(eventLines, &event)
		eventLines = eventLines[:0]
		if parseErr != nil {
			log.Debug().Err(parseErr).Msg("Failed to parse SSE event")
			continue
		}
		if !ok {
			continue
		}
		s.count++
		log.Trace().Int("event_number", s.count).Object("event", event).Msg("Parsed streaming event")
		return event, true, nil
	}
	log.Debug().Int("total_events_processed", s.count).Msg("Streaming reader finished")
	return StreamingEvent{}, false, nil
}

func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}

// parseSSEEvent parses an SSE event from multiple lines. Events without a
// data field report ok=false.
func parseSSEEvent(lines [][]byte, event *StreamingEvent) (bool, error) {
	var data []string
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r\n")
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		if string(field) == "data" {
			data = append(data, string(bytes.TrimPrefix(value, []byte(" "))))
		}
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(strings.Join(data, "\n")), event); err != nil {
		return false, err
	}
	return true, nil
}
