package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEventToContext(t *testing.T) {
	var got []Event
	sink := SinkFunc(func(e Event) error { got = append(got, e); return nil })
	failing := SinkFunc(func(Event) error { return errors.New("boom") })

	ctx := WithEventSinks(context.Background(), failing, sink)
	ctx = WithMetadata(ctx, EventMetadata{ConversationID: "42"})

	PublishEventToContext(ctx, NewFinalEvent(MetadataFromContext(ctx), "hi"))
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].Metadata().ConversationID)
	assert.NotEmpty(t, got[0].Metadata().ID)

	// no sinks is a no-op
	PublishEventToContext(context.Background(), NewFinalEvent(EventMetadata{}, "x"))
}

func TestEventJSONRoundTrip(t *testing.T) {
	md := EventMetadata{ConversationID: "c", MessageID: "m"}
	evs := []Event{
		NewStateEvent(md, "INVOKING", "PERSISTING"),
		NewPartialCompletionEvent(md, "lo", "hello"),
		NewFinalEvent(md, "hello"),
		NewErrorEvent(md, errors.New("bad")),
		NewToolCallEvent(md, ToolCall{ID: "t1", Name: "datetime", Input: "{}"}),
		NewToolCallExecuteEvent(md, ToolCall{ID: "t1", Name: "datetime"}),
		NewToolCallExecutionResultEvent(md, ToolResult{ID: "t1", Status: "success", Result: "noon"}),
	}
	for _, ev := range evs {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		back, err := NewEventFromJson(b)
		require.NoError(t, err)
		assert.Equal(t, ev, back)
	}

	_, err := NewEventFromJson([]byte(`{"type":"nope"}`))
	assert.Error(t, err)
}

func TestToolEventAggregator(t *testing.T) {
	a := NewToolEventAggregator()
	md := EventMetadata{}
	a.Handle(NewToolCallEvent(md, ToolCall{ID: "t1", Name: "datetime", Input: "{}"}))
	a.Handle(NewToolCallExecuteEvent(md, ToolCall{ID: "t1"}))
	a.Handle(NewToolCallExecutionResultEvent(md, ToolResult{ID: "t1", Status: "success", Result: "noon"}))
	a.Handle(NewFinalEvent(md, "ignored"))

	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "datetime", entries[0].Name)
	assert.True(t, entries[0].Requested)
	assert.True(t, entries[0].ExecStarted)
	assert.Equal(t, []string{"→ datetime  ↳ exec  ← success: noon  {}"}, a.Lines())

	a.Reset()
	assert.Empty(t, a.Entries())
}

func TestEventRouterDeliversToHandlers(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var mu sync.Mutex
	var got []EventType
	done := make(chan struct{})
	router.AddEventHandler("collect", DefaultTopic, func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type())
		if ev.Type() == EventTypeFinal {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewPartialCompletionEvent(EventMetadata{}, "a", "a")))
	require.NoError(t, sink.PublishEvent(NewFinalEvent(EventMetadata{}, "a")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	assert.Equal(t, []EventType{EventTypePartialCompletion, EventTypeFinal}, got)
	mu.Unlock()
	require.NoError(t, router.Close())
}

func TestEventRouterWithoutHandlersStopsOnCancel(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()
	<-router.Running()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop")
	}
	require.NoError(t, router.Close())
}
