package stream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
)

var (
	ErrNoOpenToolCall   = errors.New("tool input delta without an open tool call")
	ErrInvalidToolInput = errors.New("tool input is not a JSON object")
	ErrFinished         = errors.New("aggregator already finished")
)

type pendingCall struct {
	id    string
	name  string
	input strings.Builder
}

// Aggregator accumulates stream events. Text deltas are forwarded verbatim to
// the callback; tool inputs are parsed once, in Result.
type Aggregator struct {
	onTextDelta engine.TextDeltaFunc
	text        strings.Builder
	calls       []*pendingCall
	usage       engine.Usage
	stopReason  engine.StopReason
	finished    bool
}

func NewAggregator(onTextDelta engine.TextDeltaFunc) *Aggregator {
	return &Aggregator{onTextDelta: onTextDelta}
}

// Add applies one event.
func (a *Aggregator) Add(ev Event) error {
	if a.finished {
		return ErrFinished
	}
	switch ev.Type {
	case EventBlockStart:
		if ev.ToolCallID == "" {
			return nil
		}
		a.calls = append(a.calls, &pendingCall{id: ev.ToolCallID, name: ev.ToolName})
	case EventTextDelta:
		if ev.Text == "" {
			return nil
		}
		a.text.WriteString(ev.Text)
		if a.onTextDelta != nil {
			a.onTextDelta(ev.Text)
		}
	case EventToolInputDelta:
		if len(a.calls) == 0 {
			return ErrNoOpenToolCall
		}
		a.calls[len(a.calls)-1].input.WriteString(ev.Text)
	case EventMetadata:
		if ev.Usage != nil {
			a.usage = *ev.Usage
		}
	case EventMessageStop:
		a.stopReason = ev.StopReason
	default:
		return errors.Errorf("unknown stream event type %q", ev.Type)
	}
	return nil
}

// Result parses the accumulated tool inputs and returns the complete response.
// The text is returned as received.
func (a *Aggregator) Result() (*engine.Result, error) {
	a.finished = true
	res := &engine.Result{
		Text:       a.text.String(),
		StopReason: a.stopReason,
		Usage:      a.usage,
	}
	for _, c := range a.calls {
		input, err := ParseToolInput(c.input.String())
		if err != nil {
			return nil, errors.Wrapf(err, "tool call %s (%s)", c.id, c.name)
		}
		res.ToolCalls = append(res.ToolCalls, turns.ToolUseBlock{ID: c.id, Name: c.name, Input: input})
	}
	return res, nil
}

// ParseToolInput parses an accumulated input. Blank input is an empty object.
func ParseToolInput(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errors.Wrap(ErrInvalidToolInput, err.Error())
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidToolInput, "got %T", v)
	}
	return m, nil
}

// Aggregate drains src and returns the normalized result. Deltas reach
// onTextDelta with trailing periods and whitespace held back, so their
// concatenation always equals the normalized Result.Text.
func Aggregate(ctx context.Context, src Source, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
	var deltas *DeltaNormalizer
	var forward engine.TextDeltaFunc
	if onTextDelta != nil {
		deltas = NewDeltaNormalizer(onTextDelta)
		forward = deltas.Write
	}
	agg := NewAggregator(forward)
	for {
		ev, ok, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := agg.Add(ev); err != nil {
			return nil, err
		}
	}
	res, err := agg.Result()
	if err != nil {
		return nil, err
	}
	res.Text = engine.NormalizeText(res.Text)
	if deltas != nil {
		deltas.Flush(res.Text)
	}
	return res, nil
}
