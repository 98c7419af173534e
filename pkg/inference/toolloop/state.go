package toolloop

// State is a phase of one orchestration cycle.
type State string

const (
	StateNormalizing   State = "NORMALIZING"
	StateInvoking      State = "INVOKING"
	StateAwaitingTools State = "AWAITING_TOOLS"
	StateDispatching   State = "DISPATCHING"
	StatePersisting    State = "PERSISTING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Terminal reports whether a cycle in state s has returned to its caller.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateAwaitingTools:
		return true
	default:
		return false
	}
}
