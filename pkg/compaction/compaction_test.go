package compaction

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(text string) turns.Turn      { return turns.NewUserText(text) }
func assistant(text string) turns.Turn { return turns.NewAssistantText(text) }

func toolPair(id string) []turns.Turn {
	return []turns.Turn{
		turns.NewToolUseTurn("", []turns.ToolUseBlock{{ID: id, Name: "echo", Input: map[string]any{}}}),
		turns.NewToolResultTurn([]turns.ToolResultBlock{turns.NewToolResult(id, turns.ToolResultSuccess, "ok")}),
	}
}

func build(parts ...any) turns.Log {
	var l turns.Log
	for _, p := range parts {
		switch v := p.(type) {
		case turns.Turn:
			l = append(l, v)
		case []turns.Turn:
			l = append(l, v...)
		}
	}
	return l
}

func texts(l turns.Log) []string {
	var ret []string
	for _, t := range l {
		switch {
		case t.IsToolResult():
			ret = append(ret, "result:"+t.ToolResults()[0].ToolUseID)
		case len(t.ToolUses()) > 0:
			ret = append(ret, "use:"+t.ToolUses()[0].ID)
		default:
			ret = append(ret, string(t.Role)+":"+t.Text())
		}
	}
	return ret
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name      string
		log       turns.Log
		maxLength int
		want      []string
	}{
		{
			name:      "under budget",
			log:       build(user("a"), assistant("b")),
			maxLength: 4,
			want:      []string{"user:a", "assistant:b"},
		},
		{
			name:      "drops whole rounds",
			log:       build(user("1"), assistant("1"), user("2"), assistant("2"), user("3"), toolPair("t1"), assistant("3")),
			maxLength: 4,
			want:      []string{"user:3", "use:t1", "result:t1", "assistant:3"},
		},
		{
			name:      "drops just enough rounds",
			log:       build(user("1"), assistant("1"), user("2"), assistant("2"), user("3"), assistant("3")),
			maxLength: 5,
			want:      []string{"user:2", "assistant:2", "user:3", "assistant:3"},
		},
		{
			name:      "leading prefix goes first",
			log:       build(assistant("stray"), user("1"), assistant("1"), user("2"), assistant("2")),
			maxLength: 4,
			want:      []string{"user:1", "assistant:1", "user:2", "assistant:2"},
		},
		{
			name:      "single user keeps first turn and trims pairs",
			log:       build(user("q"), toolPair("t1"), toolPair("t2"), assistant("a")),
			maxLength: 3,
			want:      []string{"user:q", "assistant:a"},
		},
		{
			name:      "single user keeps latest unit",
			log:       build(user("q"), toolPair("t1"), toolPair("t2"), assistant("a")),
			maxLength: 1,
			want:      []string{"user:q", "assistant:a"},
		},
		{
			name:      "pair is never split",
			log:       build(user("q"), assistant("thinking"), toolPair("t1")),
			maxLength: 2,
			want:      []string{"user:q", "use:t1", "result:t1"},
		},
		{
			name:      "last round too long falls back to tail trimming",
			log:       build(user("1"), assistant("1"), user("2"), toolPair("t1"), toolPair("t2"), assistant("2")),
			maxLength: 4,
			want:      []string{"user:2", "use:t2", "result:t2", "assistant:2"},
		},
		{
			name:      "orphaned result dropped",
			log:       build(user("q"), toolPair("t1")[1], assistant("a"), assistant("b")),
			maxLength: 2,
			want:      []string{"user:q", "assistant:b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compact(tt.log, tt.maxLength)
			assert.Equal(t, tt.want, texts(got))
		})
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	l := build(user("1"), assistant("1"), user("2"), toolPair("t1"), assistant("2"))
	before := texts(l)
	out := Compact(l, 2)
	out[0] = assistant("changed")
	assert.Equal(t, before, texts(l))
}

// randomLog builds a well-formed log of rounds; rounds <= 1 yields a single real-user log.
func randomLog(r *rand.Rand, rounds int) turns.Log {
	var l turns.Log
	id := 0
	for i := 0; i < rounds; i++ {
		l = append(l, user(fmt.Sprintf("u%d", i)))
		for j := r.Intn(4); j > 0; j-- {
			id++
			l = append(l, toolPair(fmt.Sprintf("t%d", id))...)
		}
		if r.Intn(5) > 0 {
			l = append(l, assistant(fmt.Sprintf("a%d", i)))
		}
	}
	return l
}

func assertPaired(t *testing.T, l turns.Log) {
	t.Helper()
	for i, turn := range l {
		if turn.IsToolResult() {
			require.Greater(t, i, 0, "tool_result turn at start")
			require.True(t, turn.Answers(l[i-1]), "tool_result at %d without its tool_use", i)
		}
	}
}

func TestCompactProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		l := randomLog(r, 1+r.Intn(6))
		require.NoError(t, l.Validate())
		for n := 0; n <= len(l)+1; n++ {
			once := Compact(l, n)
			twice := Compact(once, n)
			require.Equal(t, texts(once), texts(twice), "not idempotent for n=%d", n)
			assertPaired(t, once)
			require.NoError(t, once.Validate())
			if len(once) > n {
				// only the single-round fallback may overshoot, by at most one pair
				require.Equal(t, 1, once.RealUserCount())
				require.LessOrEqual(t, len(once), max(n, 1)+2)
			}
		}
	}
}

func TestCompactPreservesLoneUser(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		l := randomLog(r, 1)
		k := len(l) - 1
		for m := 0; m < k+1; m++ {
			out := Compact(l, m)
			require.NotEmpty(t, out)
			assert.Equal(t, l[0], out[0])
		}
	}
}
