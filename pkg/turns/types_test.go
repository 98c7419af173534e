package turns

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnValidate(t *testing.T) {
	tests := []struct {
		name    string
		turn    Turn
		wantErr error
	}{
		{"user text", NewUserText("hi"), nil},
		{"empty", Turn{Role: RoleUser}, ErrEmptyTurn},
		{"bad role", Turn{Role: "system", Content: []ContentBlock{TextBlock{Text: "x"}}}, ErrInvalidRole},
		{"tool_use in user turn", Turn{Role: RoleUser, Content: []ContentBlock{ToolUseBlock{ID: "t1"}}}, ErrMisplacedBlock},
		{"tool_result in assistant turn", Turn{Role: RoleAssistant, Content: []ContentBlock{ToolResultBlock{ToolUseID: "t1"}}}, ErrMisplacedBlock},
		{"json at top level", Turn{Role: RoleUser, Content: []ContentBlock{JSONBlock{Value: 1}}}, ErrMisplacedBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.turn.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRealUser(t *testing.T) {
	results := NewToolResultTurn([]ToolResultBlock{NewToolResult("t1", ToolResultSuccess, "ok")})
	assert.True(t, NewUserText("hi").IsRealUser())
	assert.False(t, results.IsRealUser())
	assert.False(t, NewAssistantText("yo").IsRealUser())

	l := Log{NewUserText("a"), NewAssistantText("b"), NewUserText("c")}
	assert.Equal(t, 2, l.RealUserCount())
}

func TestLogValidatePairing(t *testing.T) {
	use := NewToolUseTurn("", []ToolUseBlock{{ID: "t1", Name: "echo", Input: map[string]any{}}})
	res := NewToolResultTurn([]ToolResultBlock{NewToolResult("t1", ToolResultSuccess, "ok")})

	require.NoError(t, Log{NewUserText("q"), use, res, NewAssistantText("done")}.Validate())
	assert.ErrorIs(t, Log{NewUserText("q"), res}.Validate(), ErrUnpairedResult)

	other := NewToolResultTurn([]ToolResultBlock{NewToolResult("t2", ToolResultSuccess, "ok")})
	assert.ErrorIs(t, Log{NewUserText("q"), use, other}.Validate(), ErrUnpairedResult)
}

func TestLogCloneIsDeep(t *testing.T) {
	l := Log{
		{Role: RoleUser, Content: []ContentBlock{ImageBlock{Format: "png", Bytes: []byte{1, 2, 3}}}},
		NewToolUseTurn("checking", []ToolUseBlock{{ID: "t1", Name: "echo", Input: map[string]any{"a": "b"}}}),
	}
	c := l.Clone()
	require.Equal(t, l, c)

	c[0].Content[0].(ImageBlock).Bytes[0] = 9
	c[1].Content[1].(ToolUseBlock).Input["a"] = "z"

	assert.Equal(t, byte(1), l[0].Content[0].(ImageBlock).Bytes[0])
	assert.Equal(t, "b", l[1].Content[1].(ToolUseBlock).Input["a"])
}

func TestFprintLog(t *testing.T) {
	l := Log{
		NewUserText("hello"),
		NewToolUseTurn("", []ToolUseBlock{{ID: "t1", Name: "datetime", Input: map[string]any{}}}),
		NewToolResultTurn([]ToolResultBlock{NewToolResult("t1", ToolResultSuccess, "noon")}),
	}
	var buf bytes.Buffer
	FprintLog(&buf, l)
	out := buf.String()
	assert.Contains(t, out, "[00] user:")
	assert.Contains(t, out, "text: hello")
	assert.Contains(t, out, "tool_use: name=datetime id=t1")
	assert.Contains(t, out, "tool_result: id=t1 status=success")
	assert.Contains(t, out, "text: noon")
}
