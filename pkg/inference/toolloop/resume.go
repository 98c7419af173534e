package toolloop

import (
	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/huandu/go-clone"
)

// Resume is the state handed back to the caller when a cycle ends with
// tool results pending. Passing it back as Input.Resume continues the
// conversation where the cycle stopped.
type Resume struct {
	// Log is the conversation before the assistant's tool request.
	Log              turns.Log               `json:"log"`
	AssistantText    string                  `json:"assistant_text,omitempty"`
	PendingToolCalls []turns.ToolUseBlock    `json:"pending_tool_calls"`
	ToolResults      []turns.ToolResultBlock `json:"tool_results"`
}

// Clone returns a deep copy, so a caller may retain or mutate its Resume.
func (r *Resume) Clone() *Resume {
	if r == nil {
		return nil
	}
	return clone.Clone(r).(*Resume)
}

// continuation appends the tool request and its results to the saved log.
func (r *Resume) continuation() (turns.Log, error) {
	if len(r.PendingToolCalls) == 0 {
		return nil, ErrInvalidResume
	}
	c := r.Clone()
	l := append(c.Log,
		turns.NewToolUseTurn(c.AssistantText, c.PendingToolCalls),
		turns.NewToolResultTurn(c.ToolResults),
	)
	if err := l.Validate(); err != nil {
		return nil, &resumeError{err}
	}
	return l, nil
}

// Outcome is the result of one cycle.
type Outcome struct {
	State State
	// Response is the persisted assistant text when State is StateDone.
	Response   string
	StopReason engine.StopReason
	Usage      engine.Usage
	// Resume is set when State is StateAwaitingTools.
	Resume *Resume
	// Log is the log as persisted, or as sent to the model when tools are pending.
	Log turns.Log
}
