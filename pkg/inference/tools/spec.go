package tools

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// ToolSpec is what the model sees of a tool.
type ToolSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema" yaml:"input_schema"`
}

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrToolNotAllowed = errors.New("tool not allowed")
	ErrInvalidInput   = errors.New("invalid tool input")
	// ErrToolExecution wraps failures raised by a tool handler.
	ErrToolExecution = errors.New("tool execution failed")
)

// Invocation describes the conversation a tool call is made for.
type Invocation struct {
	ConversationID string
	MessageID      string
	UserName       string
	Language       string
}

type invocationKey struct{}

func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom returns the invocation attached to ctx.
func InvocationFrom(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}

// sortSpecs orders specs by name so catalogues are stable across calls.
func sortSpecs(specs []ToolSpec) {
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
}
