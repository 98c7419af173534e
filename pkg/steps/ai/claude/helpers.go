package claude

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
)

// textDocumentFormats are sent as plain-text document sources.
var textDocumentFormats = map[string]bool{
	"txt": true, "md": true, "csv": true, "html": true,
}

// MakeMessageRequest builds a Claude MessageRequest from settings and an engine request.
func MakeMessageRequest(s Settings, req engine.Request) (*api.MessageRequest, error) {
	if s.Model == "" {
		return nil, errors.New("no claude model specified")
	}
	msgs, err := MessagesFromLog(req.Log)
	if err != nil {
		return nil, err
	}
	claudeTools, err := ToolsFromSpecs(req.Tools)
	if err != nil {
		return nil, err
	}
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &api.MessageRequest{
		Model:       s.Model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		Tools:       claudeTools,
	}, nil
}

// MessagesFromLog converts a conversation log into Claude messages.
func MessagesFromLog(log turns.Log) ([]api.Message, error) {
	ret := make([]api.Message, 0, len(log))
	for i, t := range log {
		content, err := contentFromBlocks(t.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		ret = append(ret, api.Message{Role: string(t.Role), Content: content})
	}
	return ret, nil
}

func contentFromBlocks(blocks []turns.ContentBlock) ([]api.Content, error) {
	ret := make([]api.Content, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case turns.TextBlock:
			ret = append(ret, api.NewTextContent(v.Text))
		case turns.ImageBlock:
			ret = append(ret, api.NewImageContent("image/"+v.Format, base64.StdEncoding.EncodeToString(v.Bytes)))
		case turns.DocumentBlock:
			ret = append(ret, documentContent(v))
		case turns.ToolUseBlock:
			input, err := json.Marshal(nonNil(v.Input))
			if err != nil {
				return nil, errors.Wrapf(err, "encoding input of tool call %s", v.ID)
			}
			ret = append(ret, api.NewToolUseContent(v.ID, v.Name, input))
		case turns.ToolResultBlock:
			nested, err := contentFromBlocks(v.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "tool result %s", v.ToolUseID)
			}
			ret = append(ret, api.NewToolResultContent(v.ToolUseID, nested, v.Status == turns.ToolResultError))
		case turns.JSONBlock:
			data, err := json.Marshal(v.Value)
			if err != nil {
				return nil, errors.Wrap(err, "encoding json block")
			}
			ret = append(ret, api.NewTextContent(string(data)))
		default:
			return nil, errors.Wrapf(turns.ErrUnknownBlock, "%T", b)
		}
	}
	return ret, nil
}

// documentContent maps a document block onto what the Messages API accepts:
// PDFs as base64, text-like formats inline, and a note for everything else.
func documentContent(d turns.DocumentBlock) api.Content {
	title := d.Name
	switch {
	case d.Format == "pdf":
		return api.NewBase64DocumentContent("application/pdf", base64.StdEncoding.EncodeToString(d.Bytes), title)
	case textDocumentFormats[d.Format]:
		return api.NewTextDocumentContent(string(d.Bytes), title)
	}
	return api.NewTextContent(fmt.Sprintf("[attached %s document %q of %d bytes cannot be read in this format]", d.Format, d.Name, len(d.Bytes)))
}

// ToolsFromSpecs converts the tool catalogue to Claude tools.
func ToolsFromSpecs(specs []tools.ToolSpec) ([]api.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	ret := make([]api.Tool, 0, len(specs))
	for _, s := range specs {
		schema := s.InputSchema
		if len(schema) == 0 {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding schema of tool %s", s.Name)
		}
		ret = append(ret, api.Tool{Name: s.Name, Description: s.Description, InputSchema: raw})
	}
	return ret, nil
}

// ResultFromResponse converts a complete Claude response.
func ResultFromResponse(resp *api.MessageResponse) (*engine.Result, error) {
	res := &engine.Result{
		StopReason: engine.StopReason(resp.StopReason),
		Usage:      engine.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	var text string
	for _, c := range resp.Content {
		switch v := c.(type) {
		case api.TextContent:
			text += v.Text
		case api.ToolUseContent:
			input := map[string]any{}
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &input); err != nil {
					return nil, errors.Wrapf(err, "decoding input of tool call %s", v.ID)
				}
			}
			res.ToolCalls = append(res.ToolCalls, turns.ToolUseBlock{ID: v.ID, Name: v.Name, Input: input})
		}
	}
	res.Text = engine.NormalizeText(text)
	return res, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
