// Package toolbox provides the built-in tools offered to the model.
package toolbox

import (
	"context"
	"time"

	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/knowledge"
	"github.com/go-go-golems/parley/pkg/schedule"
	"github.com/pkg/errors"
)

const (
	DateTimeToolName = "datetime"
	ScheduleToolName = "schedule"
	MemoryToolName   = "memory"
)

var ErrNoConversation = errors.New("tool call has no conversation")

// Options selects the tools to build. Tools whose backing store is nil are skipped.
type Options struct {
	Scheduler *schedule.Scheduler
	Knowledge *knowledge.Store
	// Location is the zone reported by the datetime tool. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// New returns a registry holding the configured built-in tools.
func New(opts Options) (*tools.InMemoryToolRegistry, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var defs []*tools.ToolDefinition
	def, err := NewDateTimeTool(opts.Location, opts.Now)
	if err != nil {
		return nil, err
	}
	defs = append(defs, def)

	if opts.Scheduler != nil {
		def, err := NewScheduleTool(opts.Scheduler)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if opts.Knowledge != nil {
		def, err := NewMemoryTool(opts.Knowledge)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	reg := tools.NewInMemoryToolRegistry()
	if err := tools.Register(reg, defs...); err != nil {
		return nil, err
	}
	return reg, nil
}

func conversationID(ctx context.Context) (string, error) {
	inv, ok := tools.InvocationFrom(ctx)
	if !ok || inv.ConversationID == "" {
		return "", ErrNoConversation
	}
	return inv.ConversationID, nil
}
