package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeState marks an orchestration state transition.
	EventTypeState EventType = "state"
	// EventTypePartialCompletion carries a streamed text delta.
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"

	// Model requested a tool call
	EventTypeToolCall EventType = "tool-call"
	// Execution-phase events (we are actually executing tools locally)
	EventTypeToolCallExecute         EventType = "tool-call-execute"
	EventTypeToolCallExecutionResult EventType = "tool-call-execution-result"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

// EventMetadata correlates an event with the conversation it belongs to.
type EventMetadata struct {
	ID             uuid.UUID      `json:"event_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.MessageID != "" {
		e.Str("message_id", em.MessageID)
	}
	if len(em.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(em.Extra))
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }

func newImpl(t EventType, md EventMetadata) EventImpl {
	if md.ID == uuid.Nil {
		md.ID = uuid.New()
	}
	return EventImpl{Type_: t, Metadata_: md}
}

type EventState struct {
	EventImpl
	From string `json:"from"`
	To   string `json:"to"`
}

func NewStateEvent(md EventMetadata, from, to string) *EventState {
	return &EventState{EventImpl: newImpl(EventTypeState, md), From: from, To: to}
}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the text received so far, including Delta.
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(md EventMetadata, delta, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{EventImpl: newImpl(EventTypePartialCompletion, md), Delta: delta, Completion: completion}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(md EventMetadata, text string) *EventFinal {
	return &EventFinal{EventImpl: newImpl(EventTypeFinal, md), Text: text}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error"`
}

func NewErrorEvent(md EventMetadata, err error) *EventError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &EventError{EventImpl: newImpl(EventTypeError, md), ErrorString: msg}
}

type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

func (tc ToolCall) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", tc.ID).Str("name", tc.Name).Str("input", tc.Input)
}

type ToolResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result"`
}

func (tr ToolResult) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", tr.ID).Str("status", tr.Status).Str("result", tr.Result)
}

type EventToolCall struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallEvent(md EventMetadata, call ToolCall) *EventToolCall {
	return &EventToolCall{EventImpl: newImpl(EventTypeToolCall, md), ToolCall: call}
}

type EventToolCallExecute struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallExecuteEvent(md EventMetadata, call ToolCall) *EventToolCallExecute {
	return &EventToolCallExecute{EventImpl: newImpl(EventTypeToolCallExecute, md), ToolCall: call}
}

type EventToolCallExecutionResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolCallExecutionResultEvent(md EventMetadata, res ToolResult) *EventToolCallExecutionResult {
	return &EventToolCallExecutionResult{EventImpl: newImpl(EventTypeToolCallExecutionResult, md), ToolResult: res}
}

// NewEventFromJson decodes an event serialized by a sink.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "decoding event header")
	}
	var ev Event
	switch hdr.Type {
	case EventTypeState:
		ev = &EventState{}
	case EventTypePartialCompletion:
		ev = &EventPartialCompletion{}
	case EventTypeFinal:
		ev = &EventFinal{}
	case EventTypeError:
		ev = &EventError{}
	case EventTypeToolCall:
		ev = &EventToolCall{}
	case EventTypeToolCallExecute:
		ev = &EventToolCallExecute{}
	case EventTypeToolCallExecutionResult:
		ev = &EventToolCallExecutionResult{}
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, errors.Wrapf(err, "decoding %s event", hdr.Type)
	}
	return ev, nil
}
