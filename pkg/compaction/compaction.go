// Package compaction bounds the length of a conversation log without breaking
// turn pairing.
package compaction

import "github.com/go-go-golems/parley/pkg/turns"

// Compact trims log to at most maxLength turns by removing turns from the front.
//
// With several real-user turns it drops whole rounds (a real-user turn and
// everything up to the next one), always keeping the last round. Once a single
// real-user turn is left, that turn is kept and the turns after it are removed
// unit by unit, where a tool_use turn and its tool_result turn form one unit.
// The most recent unit is never removed, so the result can exceed maxLength by
// at most one pair. The input is never modified.
func Compact(log turns.Log, maxLength int) turns.Log {
	if maxLength < 0 {
		maxLength = 0
	}
	if len(log) <= maxLength {
		return copyLog(log)
	}

	rounds := roundStarts(log)
	start := 0
	if len(rounds) >= 2 {
		// the leading prefix before the first real-user turn counts as a round
		if rounds[0] > 0 {
			rounds = append([]int{0}, rounds...)
		}
		for i := 1; i < len(rounds) && len(log)-start > maxLength; i++ {
			start = rounds[i]
		}
		if len(log)-start <= maxLength {
			return copyLog(log[start:])
		}
		log = log[start:]
	}

	return trimTail(log, maxLength)
}

// trimTail handles logs with at most one real-user turn.
func trimTail(log turns.Log, maxLength int) turns.Log {
	var head turns.Log
	rest := log
	for i, t := range log {
		if t.IsRealUser() {
			head = turns.Log{t}
			rest = log[i+1:]
			break
		}
	}

	units := splitUnits(rest)
	size := len(head) + len(rest)
	for len(units) > 0 {
		// a leading tool_result without its tool_use goes regardless of budget
		if !isOrphan(units[0]) && (len(units) == 1 || size <= maxLength) {
			break
		}
		size -= len(units[0])
		units = units[1:]
	}

	out := make(turns.Log, 0, size)
	out = append(out, head...)
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}

// roundStarts returns the indices of real-user turns.
func roundStarts(log turns.Log) []int {
	var ret []int
	for i, t := range log {
		if t.IsRealUser() {
			ret = append(ret, i)
		}
	}
	return ret
}

// splitUnits groups turns into removable units, keeping tool_use/tool_result pairs together.
func splitUnits(log turns.Log) []turns.Log {
	var ret []turns.Log
	for i := 0; i < len(log); i++ {
		if i+1 < len(log) && log[i+1].Answers(log[i]) {
			ret = append(ret, log[i:i+2])
			i++
			continue
		}
		ret = append(ret, log[i:i+1])
	}
	return ret
}

func isOrphan(unit turns.Log) bool {
	return len(unit) == 1 && unit[0].IsToolResult()
}

func copyLog(log turns.Log) turns.Log {
	out := make(turns.Log, len(log))
	copy(out, log)
	return out
}
