package claude

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
	"github.com/go-go-golems/parley/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*ClaudeEngine, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(data, &body))
		bodies = append(bodies, body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client := api.NewClient("secret", srv.URL, api.WithURLOptions(security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}))
	return NewClaudeEngine(client, Settings{Model: "claude-test", MaxTokens: 256}), &bodies
}

func testRequest() engine.Request {
	return engine.Request{
		SystemPrompt: "be brief",
		Log: turns.Log{
			{Role: turns.RoleUser, Content: []turns.ContentBlock{
				turns.DocumentBlock{Format: "pdf", Name: "1", Bytes: []byte("%PDF")},
				turns.TextBlock{Text: "summarize"},
			}},
		},
		Tools: []tools.ToolSpec{{Name: "datetime", Description: "current time"}},
	}
}

func TestInvoke(t *testing.T) {
	e, bodies := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"id":"m","type":"message","role":"assistant","model":"claude-test","stop_reason":"tool_use",
			"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":"t1","name":"datetime","input":{"tz":"UTC"}}],
			"usage":{"input_tokens":12,"output_tokens":7}}`)
	})

	res, err := e.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Let me check", res.Text)
	assert.Equal(t, engine.StopReasonToolUse, res.StopReason)
	assert.Equal(t, engine.Usage{InputTokens: 12, OutputTokens: 7}, res.Usage)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, turns.ToolUseBlock{ID: "t1", Name: "datetime", Input: map[string]any{"tz": "UTC"}}, res.ToolCalls[0])

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, "be brief", body["system"])
	assert.Equal(t, false, body["stream"])
	toolsSent := body["tools"].([]any)
	assert.Equal(t, "datetime", toolsSent[0].(map[string]any)["name"])
	content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	doc := content[0].(map[string]any)
	assert.Equal(t, "document", doc["type"])
	assert.Equal(t, "application/pdf", doc["source"].(map[string]any)["media_type"])
}

func TestInvokeAPIError(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})
	_, err := e.Invoke(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func sse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		var probe struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(e), &probe)
		b.WriteString("event: " + probe.Type + "\n")
		b.WriteString("data: " + e + "\n\n")
	}
	return b.String()
}

func TestInvokeStream(t *testing.T) {
	e, bodies := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, sse(
			`{"type":"message_start","message":{"id":"m","type":"message","role":"assistant","content":[],"model":"claude-test","usage":{"input_tokens":20,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"datetime","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"tz\":"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"UTC\"}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"t2","name":"noargs","input":{}}}`,
			`{"type":"content_block_stop","index":2}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":15}}`,
			`{"type":"message_stop"}`,
		))
	})

	var deltas []string
	res, err := e.InvokeStream(context.Background(), testRequest(), func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "Hello there", res.Text)
	assert.Equal(t, "Hello there", strings.Join(deltas, ""))
	assert.Equal(t, engine.StopReasonToolUse, res.StopReason)
	assert.Equal(t, engine.Usage{InputTokens: 20, OutputTokens: 15}, res.Usage)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, map[string]any{"tz": "UTC"}, res.ToolCalls[0].Input)
	assert.Equal(t, map[string]any{}, res.ToolCalls[1].Input)
	assert.Equal(t, true, (*bodies)[0]["stream"])
}

func TestInvokeStreamError(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, sse(
			`{"type":"message_start","message":{"id":"m","type":"message","role":"assistant","content":[],"model":"x","usage":{"input_tokens":1,"output_tokens":0}}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		))
	})
	_, err := e.InvokeStream(context.Background(), testRequest(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
}

func TestMessagesFromLogDocuments(t *testing.T) {
	msgs, err := MessagesFromLog(turns.Log{{Role: turns.RoleUser, Content: []turns.ContentBlock{
		turns.DocumentBlock{Format: "txt", Name: "5", Bytes: []byte("forwarded text")},
		turns.DocumentBlock{Format: "docx", Name: "6", Bytes: []byte{1, 2}},
	}}})
	require.NoError(t, err)
	require.Len(t, msgs[0].Content, 2)
	doc := msgs[0].Content[0].(api.DocumentContent)
	assert.Equal(t, "text", doc.Source.Type)
	assert.Equal(t, "forwarded text", doc.Source.Data)
	assert.Contains(t, msgs[0].Content[1].(api.TextContent).Text, "docx")
}
