// Package engine defines the model invocation contract shared by providers.
package engine

import (
	"context"
	"strings"

	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/turns"
)

// Request is everything a provider needs for one model call.
type Request struct {
	SystemPrompt string
	Log          turns.Log
	Tools        []tools.ToolSpec
}

// Engine performs a whole-response model call.
type Engine interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// TextDeltaFunc receives response text fragments in arrival order.
type TextDeltaFunc func(delta string)

// StreamingEngine additionally supports incremental responses. The fragments
// passed to onTextDelta concatenate to the returned Result.Text.
type StreamingEngine interface {
	Engine
	InvokeStream(ctx context.Context, req Request, onTextDelta TextDeltaFunc) (*Result, error)
}

// NormalizeText trims surrounding whitespace and strips one trailing period.
func NormalizeText(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".")
}
