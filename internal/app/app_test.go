package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/config"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/session"
	"github.com/go-go-golems/parley/pkg/inference/toolloop"
	"github.com/go-go-golems/parley/pkg/toolbox"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEngine struct {
	mu       sync.Mutex
	results  []*engine.Result
	requests []engine.Request
}

func (e *scriptedEngine) Invoke(_ context.Context, req engine.Request) (*engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if len(e.results) == 0 {
		return nil, errors.New("no scripted result left")
	}
	res := e.results[0]
	e.results = e.results[1:]
	return res, nil
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []string
	typing int
}

func (c *fakeChannel) FetchFile(context.Context, string) ([]byte, error) {
	return nil, errors.New("no files")
}

func (c *fakeChannel) SendTyping(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing++
	return nil
}

func (c *fakeChannel) SendMessage(_ context.Context, _ string, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, html)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Model:    config.ModelConfig{Name: "claude-3-5-haiku-latest"},
		Prompt:   config.PromptConfig{Instructions: "Be brief", StartCommand: "/start", Greeting: "Hello"},
		History:  config.HistoryConfig{Store: config.StoreMemory},
		Loop:     toolloop.DefaultLoopConfig(),
		Session:  config.SessionConfig{MaxToolRounds: 3, FailureReply: session.DefaultFailureReply},
		Schedule: config.ScheduleConfig{Enabled: true, Path: ":memory:", PollInterval: time.Hour},
		Memory:   config.MemoryConfig{Enabled: true, Path: ":memory:"},
		Timezone: "UTC",
	}
}

func newApp(t *testing.T, eng engine.Engine, opts ...Option) (*App, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	a, err := New(testConfig(), ch, append([]Option{WithEngine(eng)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, ch
}

func message(text string) *channel.Message {
	return &channel.Message{ID: "1", ConversationID: "42", From: channel.User{Name: "Ada"}, Text: text}
}

func TestAnswerIsSentAndPersisted(t *testing.T) {
	eng := &scriptedEngine{results: []*engine.Result{
		{Text: "Hi **Ada**", StopReason: engine.StopReasonEndTurn},
	}}
	a, ch := newApp(t, eng)

	require.NoError(t, a.Driver.HandleMessage(context.Background(), message("hello")))
	assert.Equal(t, []string{"Hi <b>Ada</b>"}, ch.sent)

	lg, err := a.History.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, lg, 2)
	assert.Equal(t, "hello", lg[0].Text())

	require.Len(t, eng.requests, 1)
	assert.Contains(t, eng.requests[0].SystemPrompt, "Be brief")
	names := []string{}
	for _, s := range eng.requests[0].Tools {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{toolbox.DateTimeToolName, toolbox.MemoryToolName, toolbox.ScheduleToolName}, names)
}

func TestToolsAreWired(t *testing.T) {
	eng := &scriptedEngine{results: []*engine.Result{
		{
			StopReason: engine.StopReasonToolUse,
			ToolCalls: []turns.ToolUseBlock{
				{ID: "t1", Name: toolbox.ScheduleToolName, Input: map[string]any{"action": "create", "expression": "rate(1 day)", "text": "water the plants", "recurring": true}},
				{ID: "t2", Name: toolbox.MemoryToolName, Input: map[string]any{"action": "save", "text": "Ada has plants"}},
			},
		},
		{Text: "Done, I'll remind you daily.", StopReason: engine.StopReasonEndTurn},
	}}
	a, ch := newApp(t, eng)
	ctx := context.Background()

	res, err := a.Driver.Process(ctx, message("remind me to water the plants every day"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ToolRounds)
	assert.Empty(t, ch.sent)

	list, err := a.Scheduler.List(ctx, "42")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "water the plants", list[0].Text)

	facts, err := a.Knowledge.Search(ctx, "42", "plants", 0)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	lg, err := a.History.Load(ctx, "42")
	require.NoError(t, err)
	require.Len(t, lg, 4)
	results := lg[2].ToolResults()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, turns.ToolResultSuccess, r.Status)
	}
}

func TestEventsReachSinks(t *testing.T) {
	eng := &scriptedEngine{results: []*engine.Result{{Text: "ok", StopReason: engine.StopReasonEndTurn}}}
	var mu sync.Mutex
	var types []events.EventType
	sink := events.SinkFunc(func(ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type())
		return nil
	})
	a, _ := newApp(t, eng, WithEventSinks(sink))

	_, err := a.Driver.Process(a.Context(context.Background()), message("hi"))
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, events.EventTypeFinal)
}

func TestRunStopsWhenFrontEnds(t *testing.T) {
	errFront := errors.New("front failed")
	tests := []struct {
		name     string
		eventLog bool
		front    func(ctx context.Context) error
		cancel   bool
		wantErr  error
	}{
		{name: "front returns", front: func(context.Context) error { return nil }},
		{name: "front returns with log handler", eventLog: true, front: func(context.Context) error { return nil }},
		{name: "front fails", front: func(context.Context) error { return errFront }, wantErr: errFront},
		{name: "parent cancelled", cancel: true, front: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Events.Log = tt.eventLog
			a, err := New(cfg, &fakeChannel{}, WithEngine(&scriptedEngine{}))
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			called := make(chan struct{})
			done := make(chan error, 1)
			go func() {
				done <- a.Run(ctx, func(ctx context.Context) error {
					close(called)
					return tt.front(ctx)
				})
			}()

			select {
			case <-called:
			case <-time.After(5 * time.Second):
				t.Fatal("front was not started")
			}
			if tt.cancel {
				cancel()
			}
			select {
			case err := <-done:
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				} else {
					require.NoError(t, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return")
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.History.Store = "s3"
	_, err := New(cfg, &fakeChannel{}, WithEngine(&scriptedEngine{}))
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}
