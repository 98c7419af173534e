package stream

import (
	"encoding/json"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/pkg/errors"
)

// Decompose turns a complete result into the event sequence a provider would
// stream for it, splitting text and tool inputs into chunks of at most
// chunkSize bytes.
func Decompose(res *engine.Result, chunkSize int) ([]Event, error) {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	var events []Event
	for _, chunk := range chunks(res.Text, chunkSize) {
		events = append(events, TextDelta(chunk))
	}
	for _, call := range res.ToolCalls {
		events = append(events, BlockStart(call.ID, call.Name))
		input := call.Input
		if input == nil {
			input = map[string]any{}
		}
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding input of %s", call.ID)
		}
		for _, chunk := range chunks(string(raw), chunkSize) {
			events = append(events, ToolInputDelta(chunk))
		}
	}
	events = append(events, MessageStop(res.StopReason), Metadata(res.Usage))
	return events, nil
}

func chunks(s string, size int) []string {
	var ret []string
	for len(s) > size {
		ret = append(ret, s[:size])
		s = s[size:]
	}
	if s != "" {
		ret = append(ret, s)
	}
	return ret
}
