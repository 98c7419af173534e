// Package openai implements the model invocation contract for
// OpenAI-compatible chat completion endpoints.
package openai

import (
	"context"
	"io"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/stream"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type Settings struct {
	Model       string   `mapstructure:"model"`
	MaxTokens   int      `mapstructure:"max-tokens"`
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top-p"`
}

// OpenAIEngine implements engine.StreamingEngine.
type OpenAIEngine struct {
	client   *go_openai.Client
	settings Settings
}

var _ engine.StreamingEngine = (*OpenAIEngine)(nil)

func NewOpenAIEngine(client *go_openai.Client, settings Settings) *OpenAIEngine {
	return &OpenAIEngine{client: client, settings: settings}
}

func (e *OpenAIEngine) Invoke(ctx context.Context, req engine.Request) (*engine.Result, error) {
	chatReq, err := MakeCompletionRequest(e.settings, req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("model", chatReq.Model).Strs("tools", specNames(req.Tools)).Msg("OpenAI request")
	resp, err := e.client.CreateChatCompletion(ctx, *chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "openai request failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai response has no choices")
	}
	choice := resp.Choices[0]
	res := &engine.Result{
		Text:       engine.NormalizeText(choice.Message.Content),
		StopReason: StopReasonFromFinish(choice.FinishReason),
		Usage:      engine.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	for _, tc := range choice.Message.ToolCalls {
		input, err := stream.ParseToolInput(tc.Function.Arguments)
		if err != nil {
			return nil, errors.Wrapf(err, "tool call %s (%s)", tc.ID, tc.Function.Name)
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		res.ToolCalls = append(res.ToolCalls, turns.ToolUseBlock{ID: id, Name: tc.Function.Name, Input: input})
	}
	return res, nil
}

func (e *OpenAIEngine) InvokeStream(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
	chatReq, err := MakeCompletionRequest(e.settings, req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	chatReq.StreamOptions = &go_openai.StreamOptions{IncludeUsage: true}

	s, err := e.client.CreateChatCompletionStream(ctx, *chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "openai streaming request failed")
	}
	defer func() {
		_ = s.Close()
	}()

	res, err := stream.Aggregate(ctx, NewToolCallMerger(s), onTextDelta)
	if err != nil {
		return nil, errors.Wrap(err, "openai stream failed")
	}
	log.Debug().
		Str("stop_reason", string(res.StopReason)).
		Int("tool_calls", len(res.ToolCalls)).
		Msg("OpenAI stream completed")
	return res, nil
}

type chunkReceiver interface {
	Recv() (go_openai.ChatCompletionStreamResponse, error)
}

// ToolCallMerger translates streamed chat completion chunks into stream
// events. OpenAI identifies tool call fragments by index; the first fragment
// of an index opens the call.
type ToolCallMerger struct {
	recv    chunkReceiver
	pending []stream.Event
	opened  map[int]bool
	done    bool
}

var _ stream.Source = (*ToolCallMerger)(nil)

func NewToolCallMerger(recv chunkReceiver) *ToolCallMerger {
	return &ToolCallMerger{recv: recv, opened: map[int]bool{}}
}

func (m *ToolCallMerger) Next(ctx context.Context) (stream.Event, bool, error) {
	for len(m.pending) == 0 {
		if m.done {
			return stream.Event{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			return stream.Event{}, false, err
		}
		chunk, err := m.recv.Recv()
		if errors.Is(err, io.EOF) {
			m.done = true
			continue
		}
		if err != nil {
			return stream.Event{}, false, err
		}
		m.add(chunk)
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	return ev, true, nil
}

func (m *ToolCallMerger) add(chunk go_openai.ChatCompletionStreamResponse) {
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			m.pending = append(m.pending, stream.TextDelta(choice.Delta.Content))
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			if !m.opened[idx] {
				m.opened[idx] = true
				id := tc.ID
				if id == "" {
					id = uuid.NewString()
				}
				m.pending = append(m.pending, stream.BlockStart(id, tc.Function.Name))
			}
			if tc.Function.Arguments != "" {
				m.pending = append(m.pending, stream.ToolInputDelta(tc.Function.Arguments))
			}
		}
		if choice.FinishReason != "" {
			m.pending = append(m.pending, stream.MessageStop(StopReasonFromFinish(choice.FinishReason)))
		}
	}
	if chunk.Usage != nil {
		m.pending = append(m.pending, stream.Metadata(engine.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}))
	}
}
