package engine

import "github.com/go-go-golems/parley/pkg/turns"

// StopReason is the provider's signal for why generation ended.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is a complete model response.
type Result struct {
	Text       string
	StopReason StopReason
	Usage      Usage
	ToolCalls  []turns.ToolUseBlock
}

// ToolsPending reports whether the caller has tool calls to dispatch.
func (r *Result) ToolsPending() bool {
	return r != nil && len(r.ToolCalls) > 0
}
