package engine

import (
	"testing"

	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"Hello.":       "Hello",
		"  Hello.  \n": "Hello",
		"Wait...":      "Wait..",
		"No period":    "No period",
		"":             "",
		"3.14":         "3.14",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeText(in), in)
	}
}

func TestToolsPending(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.ToolsPending())
	assert.False(t, (&Result{StopReason: StopReasonToolUse}).ToolsPending())
	assert.True(t, (&Result{ToolCalls: []turns.ToolUseBlock{{ID: "t1"}}}).ToolsPending())
}
