package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"
)

// Executor runs the tool calls of one model response against a registry.
// Every call yields exactly one result; failures become error-status results.
type Executor struct {
	registry ToolRegistry
	config   ToolConfig
}

func NewExecutor(registry ToolRegistry, config ToolConfig) *Executor {
	return &Executor{registry: registry, config: config}
}

// Dispatch runs calls concurrently and returns their results in call order.
func (e *Executor) Dispatch(ctx context.Context, calls []turns.ToolUseBlock) []turns.ToolResultBlock {
	results := make([]turns.ToolResultBlock, len(calls))
	if len(calls) == 0 {
		return results
	}
	var g errgroup.Group
	limit := e.config.MaxParallelTools
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.Execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Execute runs a single call, retrying failed executions per RetryConfig.
func (e *Executor) Execute(ctx context.Context, call turns.ToolUseBlock) (result turns.ToolResultBlock) {
	start := time.Now()
	md := events.MetadataFromContext(ctx)
	input := marshalInput(call.Input)

	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrapf(ErrToolExecution, "panic: %v", r)
			log.Error().Str("tool", call.Name).Str("tool_use_id", call.ID).Interface("panic", r).Msg("tool panicked")
			result = turns.NewToolError(call.ID, err)
		}
		events.PublishEventToContext(ctx, events.NewToolCallExecutionResultEvent(md, events.ToolResult{
			ID:     call.ID,
			Status: string(result.Status),
			Result: summarize(result.Content),
		}))
		log.Debug().
			Str("conversation_id", md.ConversationID).
			Str("tool", call.Name).
			Str("tool_use_id", call.ID).
			Str("status", string(result.Status)).
			Dur("duration", time.Since(start)).
			Msg("tool call finished")
	}()

	events.PublishEventToContext(ctx, events.NewToolCallExecuteEvent(md, events.ToolCall{ID: call.ID, Name: call.Name, Input: input}))

	if !e.config.IsToolAllowed(call.Name) {
		return turns.NewToolError(call.ID, errors.Wrap(ErrToolNotAllowed, call.Name))
	}
	def, err := e.registry.GetTool(call.Name)
	if err != nil {
		return turns.NewToolError(call.ID, err)
	}
	if err := validateInput(def, call.Input); err != nil {
		return turns.NewToolError(call.ID, err)
	}

	var out interface{}
	for attempt := 0; ; attempt++ {
		out, err = e.executeOnce(ctx, def, input)
		if err == nil || errors.Is(err, ErrInvalidInput) || attempt >= e.config.RetryConfig.MaxRetries {
			break
		}
		backoff := e.config.RetryConfig.backoff(attempt)
		log.Debug().Err(err).Str("tool", call.Name).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("retrying tool call")
		select {
		case <-ctx.Done():
			return turns.NewToolError(call.ID, errors.Wrap(ctx.Err(), "cancelled during retry backoff"))
		case <-time.After(backoff):
		}
	}
	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", md.ConversationID).
			Str("message_id", md.MessageID).
			Str("tool", call.Name).
			Str("tool_use_id", call.ID).
			Msg("tool call failed")
		if !errors.Is(err, ErrInvalidInput) {
			err = errors.Wrap(ErrToolExecution, err.Error())
		}
		return turns.NewToolError(call.ID, err)
	}
	return turns.ToolResultBlock{ToolUseID: call.ID, Status: turns.ToolResultSuccess, Content: ToContent(out)}
}

func (e *Executor) executeOnce(ctx context.Context, def *ToolDefinition, input string) (interface{}, error) {
	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
		defer cancel()
	}
	return def.Function.Execute(ctx, []byte(input))
}

func validateInput(def *ToolDefinition, input map[string]any) error {
	spec, err := def.Spec()
	if err != nil {
		return err
	}
	if input == nil {
		input = map[string]any{}
	}
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(spec.InputSchema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return errors.Wrapf(err, "validating input of %s", def.Name)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return errors.Wrap(ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return nil
}

// ToContent converts a tool's return value into tool_result content.
// Strings become text, content blocks pass through, anything else becomes
// a JSON block holding its JSON-decoded form.
func ToContent(v interface{}) []turns.ContentBlock {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		return []turns.ContentBlock{turns.TextBlock{Text: r}}
	case turns.ContentBlock:
		return []turns.ContentBlock{r}
	case []turns.ContentBlock:
		return r
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []turns.ContentBlock{turns.TextBlock{Text: fmt.Sprintf("%v", v)}}
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return []turns.ContentBlock{turns.TextBlock{Text: string(b)}}
	}
	return []turns.ContentBlock{turns.JSONBlock{Value: decoded}}
}

func marshalInput(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func summarize(content []turns.ContentBlock) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch b := c.(type) {
		case turns.TextBlock:
			parts = append(parts, b.Text)
		case turns.JSONBlock:
			raw, _ := json.Marshal(b.Value)
			parts = append(parts, string(raw))
		default:
			parts = append(parts, string(c.Kind()))
		}
	}
	return strings.Join(parts, " ")
}
