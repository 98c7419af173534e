package serde

import (
	"testing"

	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLog() turns.Log {
	return turns.Log{
		{Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.ImageBlock{Format: "jpeg", Name: "cat", Bytes: []byte{0, 1, 127, 128, 255}},
			turns.TextBlock{Text: "what is this?"},
		}},
		turns.NewAssistantText("a cat"),
		{Role: turns.RoleUser, Content: []turns.ContentBlock{
			turns.DocumentBlock{Format: "pdf", Name: "42", Bytes: []byte("%PDF-1.4")},
			turns.TextBlock{Text: "Extract information from the document report.pdf"},
		}},
		turns.NewToolUseTurn("let me look", []turns.ToolUseBlock{
			{ID: "t1", Name: "lookup", Input: map[string]any{"q": "x", "n": float64(2)}},
		}),
		turns.NewToolResultTurn([]turns.ToolResultBlock{{
			ToolUseID: "t1",
			Status:    turns.ToolResultSuccess,
			Content: []turns.ContentBlock{
				turns.ImageBlock{Format: "png", Bytes: []byte{9, 8, 7}},
				turns.JSONBlock{Value: map[string]any{"year": float64(2024)}},
			},
		}}),
		turns.NewAssistantText("done"),
	}
}

func TestRoundTrip(t *testing.T) {
	l := sampleLog()
	data, err := MarshalLog(l)
	require.NoError(t, err)

	got, err := UnmarshalLog(data)
	require.NoError(t, err)
	assert.Equal(t, l, got)
}

func TestBytesAreNumberArrays(t *testing.T) {
	l := turns.Log{{Role: turns.RoleUser, Content: []turns.ContentBlock{
		turns.ImageBlock{Format: "png", Bytes: []byte{1, 200, 3}},
	}}}
	data, err := MarshalLog(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bytes":[1,200,3]`)
}

func TestDecodeAcceptsBase64(t *testing.T) {
	data := []byte(`[{"role":"user","content":[{"document":{"format":"txt","source":{"bytes":"aGVsbG8="}}}]}]`)
	got, err := UnmarshalLog(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0].Content[0].(turns.DocumentBlock).Bytes)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"empty block", `[{"role":"user","content":[{}]}]`},
		{"byte out of range", `[{"role":"user","content":[{"image":{"format":"png","source":{"bytes":[256]}}}]}]`},
		{"empty turn", `[{"role":"user","content":[]}]`},
		{"tool_use in user turn", `[{"role":"user","content":[{"toolUse":{"toolUseId":"t","name":"n","input":{}}}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalLog([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
