package toolloop

import (
	"context"

	"github.com/go-go-golems/parley/pkg/turns"
)

// SnapshotHook captures the conversation log at defined phases
// ("pre_inference", "post_inference", "post_tools", "pre_persist").
type SnapshotHook func(ctx context.Context, l turns.Log, phase string)

type snapshotHookKey struct{}

// WithLogSnapshotHook attaches a snapshot hook to the context.
func WithLogSnapshotHook(ctx context.Context, hook SnapshotHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, snapshotHookKey{}, hook)
}

// LogSnapshotHookFromContext returns the snapshot hook attached to the context, if any.
func LogSnapshotHookFromContext(ctx context.Context) (SnapshotHook, bool) {
	v := ctx.Value(snapshotHookKey{})
	if v == nil {
		return nil, false
	}
	h, ok := v.(SnapshotHook)
	return h, ok && h != nil
}
