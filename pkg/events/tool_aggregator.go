package events

import "strings"

// ToolEventEntry aggregates tool activity across the model's request, local
// execution and the result. It is keyed by the tool call ID.
type ToolEventEntry struct {
	ID          string
	Name        string
	Input       string
	Requested   bool
	ExecStarted bool
	Status      string
	Result      string
}

// ToolEventAggregator collects tool-related events into compact entries per tool call ID.
type ToolEventAggregator struct {
	index   map[string]int
	entries []ToolEventEntry
}

func NewToolEventAggregator() *ToolEventAggregator {
	return &ToolEventAggregator{
		index:   make(map[string]int),
		entries: make([]ToolEventEntry, 0, 4),
	}
}

func (a *ToolEventAggregator) Reset() {
	a.index = make(map[string]int)
	a.entries = a.entries[:0]
}

// Entries returns a snapshot of current entries in insertion order.
func (a *ToolEventAggregator) Entries() []ToolEventEntry {
	out := make([]ToolEventEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// PublishEvent lets the aggregator be used directly as an EventSink.
func (a *ToolEventAggregator) PublishEvent(e Event) error {
	a.Handle(e)
	return nil
}

// Handle consumes an Event and updates entries when it is tool-related.
func (a *ToolEventAggregator) Handle(e Event) {
	switch ev := e.(type) {
	case *EventToolCall:
		if ev.ToolCall.ID == "" {
			return
		}
		idx := a.ensure(ev.ToolCall.ID)
		a.entries[idx].Requested = true
		a.entries[idx].Name = ev.ToolCall.Name
		if ev.ToolCall.Input != "" {
			a.entries[idx].Input = ev.ToolCall.Input
		}
	case *EventToolCallExecute:
		if ev.ToolCall.ID == "" {
			return
		}
		idx := a.ensure(ev.ToolCall.ID)
		a.entries[idx].ExecStarted = true
		if ev.ToolCall.Name != "" {
			a.entries[idx].Name = ev.ToolCall.Name
		}
		if ev.ToolCall.Input != "" && a.entries[idx].Input == "" {
			a.entries[idx].Input = ev.ToolCall.Input
		}
	case *EventToolCallExecutionResult:
		if ev.ToolResult.ID == "" {
			return
		}
		idx := a.ensure(ev.ToolResult.ID)
		a.entries[idx].Status = ev.ToolResult.Status
		a.entries[idx].Result = ev.ToolResult.Result
	}
}

// Lines returns a compact, plain-text representation for each entry.
func (a *ToolEventAggregator) Lines() []string {
	lines := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		parts := make([]string, 0, 4)
		if e.Requested {
			parts = append(parts, "→ "+name)
		}
		if e.ExecStarted {
			parts = append(parts, "↳ exec")
		}
		if e.Result != "" {
			parts = append(parts, "← "+e.Status+": "+e.Result)
		}
		if e.Input != "" {
			parts = append(parts, e.Input)
		}
		lines = append(lines, strings.Join(parts, "  "))
	}
	return lines
}

func (a *ToolEventAggregator) ensure(id string) int {
	if idx, ok := a.index[id]; ok {
		return idx
	}
	idx := len(a.entries)
	a.index[id] = idx
	a.entries = append(a.entries, ToolEventEntry{ID: id})
	return idx
}
