package session

import "context"

type sessionMetaContextKey string

const (
	conversationIDContextKey sessionMetaContextKey = "conversation_id"
	runIDContextKey          sessionMetaContextKey = "run_id"
)

// WithRunMeta stores conversation and run identifiers in context so
// tools and sinks can correlate work for a single handled message.
func WithRunMeta(ctx context.Context, conversationID, runID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if conversationID != "" {
		ctx = context.WithValue(ctx, conversationIDContextKey, conversationID)
	}
	if runID != "" {
		ctx = context.WithValue(ctx, runIDContextKey, runID)
	}
	return ctx
}

// ConversationIDFromContext returns the conversation identifier attached with
// WithRunMeta, or "" when unavailable.
func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(conversationIDContextKey).(string)
	return id
}

// RunIDFromContext returns the run identifier attached with WithRunMeta,
// or "" when unavailable.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDContextKey).(string)
	return id
}
