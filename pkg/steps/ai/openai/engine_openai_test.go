package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*OpenAIEngine, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(data, &body))
		bodies = append(bodies, body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := MakeClient("key", srv.URL+"/v1", security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true})
	require.NoError(t, err)
	return NewOpenAIEngine(client, Settings{Model: "gpt-test"}), &bodies
}

func testRequest() engine.Request {
	use := turns.NewToolUseTurn("", []turns.ToolUseBlock{{ID: "t0", Name: "datetime", Input: map[string]any{}}})
	res := turns.NewToolResultTurn([]turns.ToolResultBlock{{
		ToolUseID: "t0", Status: turns.ToolResultSuccess,
		Content: []turns.ContentBlock{turns.JSONBlock{Value: map[string]any{"hour": float64(9)}}},
	}})
	return engine.Request{
		SystemPrompt: "be brief",
		Log:          turns.Log{turns.NewUserText("what time is it"), use, res},
		Tools:        []tools.ToolSpec{{Name: "datetime", Description: "current time"}},
	}
}

func TestMakeCompletionRequest(t *testing.T) {
	req, err := MakeCompletionRequest(Settings{Model: "m"}, testRequest())
	require.NoError(t, err)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "what time is it", req.Messages[1].Content)
	assert.Equal(t, "t0", req.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, "{}", req.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", req.Messages[3].Role)
	assert.Equal(t, "t0", req.Messages[3].ToolCallID)
	assert.Equal(t, `{"hour":9}`, req.Messages[3].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "datetime", req.Tools[0].Function.Name)
}

func TestImageUsesMultiContent(t *testing.T) {
	req, err := MakeCompletionRequest(Settings{Model: "m"}, engine.Request{Log: turns.Log{{
		Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.ImageBlock{Format: "png", Bytes: []byte{1}},
			turns.TextBlock{Text: "what is it"},
		},
	}}})
	require.NoError(t, err)
	parts := req.Messages[0].MultiContent
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0].ImageURL.URL, "data:image/png;base64,"))
	assert.Equal(t, "what is it", parts[1].Text)
}

func TestInvoke(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"c","object":"chat.completion","model":"gpt-test","choices":[{"index":0,
			"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"datetime","arguments":"{\"tz\":\"UTC\"}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`)
	})
	res, err := e.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, engine.StopReasonToolUse, res.StopReason)
	assert.Equal(t, engine.Usage{InputTokens: 9, OutputTokens: 4}, res.Usage)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, turns.ToolUseBlock{ID: "call_1", Name: "datetime", Input: map[string]any{"tz": "UTC"}}, res.ToolCalls[0])
}

func TestInvokeStream(t *testing.T) {
	chunks := []string{
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"It is "}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"nine."}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"datetime","arguments":""}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"tz\""}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"UTC\"}"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":30,"completion_tokens":8,"total_tokens":38}}`,
	}
	e, bodies := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	res, err := e.InvokeStream(context.Background(), testRequest(), func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "It is nine", res.Text)
	assert.Equal(t, res.Text, strings.Join(deltas, ""))
	assert.Equal(t, engine.StopReasonToolUse, res.StopReason)
	assert.Equal(t, engine.Usage{InputTokens: 30, OutputTokens: 8}, res.Usage)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "call_9", res.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"tz": "UTC"}, res.ToolCalls[0].Input)

	opts := (*bodies)[0]["stream_options"].(map[string]any)
	assert.Equal(t, true, opts["include_usage"])
}

func TestStopReasonFromFinish(t *testing.T) {
	assert.Equal(t, engine.StopReasonEndTurn, StopReasonFromFinish("stop"))
	assert.Equal(t, engine.StopReasonToolUse, StopReasonFromFinish("tool_calls"))
	assert.Equal(t, engine.StopReasonMaxTokens, StopReasonFromFinish("length"))
	assert.Equal(t, engine.StopReason("content_filter"), StopReasonFromFinish("content_filter"))
}
