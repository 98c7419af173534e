// Package claude implements the model invocation contract on top of the
// Anthropic Messages API.
package claude

import (
	"context"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/stream"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultMaxTokens = 4096

type Settings struct {
	Model       string   `mapstructure:"model"`
	MaxTokens   int      `mapstructure:"max-tokens"`
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top-p"`
}

// ClaudeEngine implements engine.StreamingEngine.
type ClaudeEngine struct {
	client   *api.Client
	settings Settings
}

var _ engine.StreamingEngine = (*ClaudeEngine)(nil)

func NewClaudeEngine(client *api.Client, settings Settings) *ClaudeEngine {
	return &ClaudeEngine{client: client, settings: settings}
}

func (e *ClaudeEngine) Invoke(ctx context.Context, req engine.Request) (*engine.Result, error) {
	msgReq, err := MakeMessageRequest(e.settings, req)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.SendMessage(ctx, msgReq)
	if err != nil {
		return nil, errors.Wrap(err, "claude request failed")
	}
	log.Debug().Object("response", resp).Msg("claude response")
	return ResultFromResponse(resp)
}

func (e *ClaudeEngine) InvokeStream(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
	msgReq, err := MakeMessageRequest(e.settings, req)
	if err != nil {
		return nil, err
	}
	s, err := e.client.StreamMessage(ctx, msgReq)
	if err != nil {
		return nil, errors.Wrap(err, "claude streaming request failed")
	}
	defer func() {
		_ = s.Close()
	}()

	res, err := stream.Aggregate(ctx, NewContentBlockMerger(s), onTextDelta)
	if err != nil {
		return nil, errors.Wrap(err, "claude stream failed")
	}
	log.Debug().
		Str("stop_reason", string(res.StopReason)).
		Int("tool_calls", len(res.ToolCalls)).
		Int("input_tokens", res.Usage.InputTokens).
		Int("output_tokens", res.Usage.OutputTokens).
		Msg("claude stream completed")
	return res, nil
}
