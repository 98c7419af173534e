package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

var textDocumentFormats = map[string]bool{
	"txt": true, "md": true, "csv": true, "html": true,
}

// MakeClient builds a go-openai client for an OpenAI-compatible endpoint.
func MakeClient(apiKey, baseURL string, urlOptions security.OutboundURLOptions) (*go_openai.Client, error) {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		if err := security.ValidateOutboundURL(baseURL, urlOptions); err != nil {
			return nil, errors.Wrap(err, "invalid openai base URL")
		}
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return go_openai.NewClientWithConfig(config), nil
}

// MakeCompletionRequest builds a chat completion request from an engine request.
func MakeCompletionRequest(s Settings, req engine.Request) (*go_openai.ChatCompletionRequest, error) {
	if s.Model == "" {
		return nil, errors.New("no openai model specified")
	}
	var msgs []go_openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for i, t := range req.Log {
		converted, err := messagesFromTurn(t)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		msgs = append(msgs, converted...)
	}

	ret := &go_openai.ChatCompletionRequest{
		Model:     s.Model,
		Messages:  msgs,
		MaxTokens: s.MaxTokens,
	}
	if s.Temperature != nil {
		ret.Temperature = float32(*s.Temperature)
	}
	if s.TopP != nil {
		ret.TopP = float32(*s.TopP)
	}
	for _, spec := range req.Tools {
		schema := spec.InputSchema
		if len(schema) == 0 {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		ret.Tools = append(ret.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return ret, nil
}

// messagesFromTurn maps one turn to chat messages. A tool_result turn becomes
// one tool message per result.
func messagesFromTurn(t turns.Turn) ([]go_openai.ChatCompletionMessage, error) {
	if t.Role == turns.RoleAssistant {
		msg := go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleAssistant, Content: t.Text()}
		for _, call := range t.ToolUses() {
			args, err := json.Marshal(nonNil(call.Input))
			if err != nil {
				return nil, errors.Wrapf(err, "encoding input of tool call %s", call.ID)
			}
			msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
				ID:       call.ID,
				Type:     go_openai.ToolTypeFunction,
				Function: go_openai.FunctionCall{Name: call.Name, Arguments: string(args)},
			})
		}
		return []go_openai.ChatCompletionMessage{msg}, nil
	}

	if t.IsToolResult() {
		var ret []go_openai.ChatCompletionMessage
		for _, r := range t.ToolResults() {
			text, err := flattenText(r.Content)
			if err != nil {
				return nil, err
			}
			if r.Status == turns.ToolResultError {
				text = "Error: " + text
			}
			ret = append(ret, go_openai.ChatCompletionMessage{
				Role:       go_openai.ChatMessageRoleTool,
				Content:    text,
				ToolCallID: r.ToolUseID,
			})
		}
		return ret, nil
	}

	var parts []go_openai.ChatMessagePart
	hasMedia := false
	for _, b := range t.Content {
		switch v := b.(type) {
		case turns.TextBlock:
			parts = append(parts, go_openai.ChatMessagePart{Type: go_openai.ChatMessagePartTypeText, Text: v.Text})
		case turns.ImageBlock:
			hasMedia = true
			url := fmt.Sprintf("data:image/%s;base64,%s", v.Format, base64.StdEncoding.EncodeToString(v.Bytes))
			parts = append(parts, go_openai.ChatMessagePart{
				Type:     go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{URL: url, Detail: go_openai.ImageURLDetailAuto},
			})
		case turns.DocumentBlock:
			parts = append(parts, go_openai.ChatMessagePart{Type: go_openai.ChatMessagePartTypeText, Text: documentText(v)})
		default:
			return nil, errors.Wrapf(turns.ErrMisplacedBlock, "%T in user turn", b)
		}
	}
	msg := go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser}
	if hasMedia {
		msg.MultiContent = parts
	} else {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		msg.Content = strings.Join(texts, "\n\n")
	}
	return []go_openai.ChatCompletionMessage{msg}, nil
}

func documentText(d turns.DocumentBlock) string {
	if textDocumentFormats[d.Format] {
		return fmt.Sprintf("<document name=%q format=%q>\n%s\n</document>", d.Name, d.Format, string(d.Bytes))
	}
	return fmt.Sprintf("[attached %s document %q of %d bytes cannot be read in this format]", d.Format, d.Name, len(d.Bytes))
}

func flattenText(blocks []turns.ContentBlock) (string, error) {
	var texts []string
	for _, b := range blocks {
		switch v := b.(type) {
		case turns.TextBlock:
			texts = append(texts, v.Text)
		case turns.JSONBlock:
			data, err := json.Marshal(v.Value)
			if err != nil {
				return "", errors.Wrap(err, "encoding json block")
			}
			texts = append(texts, string(data))
		case turns.ImageBlock:
			texts = append(texts, fmt.Sprintf("[image %s]", v.Format))
		case turns.DocumentBlock:
			texts = append(texts, documentText(v))
		}
	}
	return strings.Join(texts, "\n"), nil
}

// StopReasonFromFinish maps OpenAI finish reasons onto engine stop reasons.
func StopReasonFromFinish(reason go_openai.FinishReason) engine.StopReason {
	switch reason {
	case go_openai.FinishReasonToolCalls, go_openai.FinishReasonFunctionCall:
		return engine.StopReasonToolUse
	case go_openai.FinishReasonLength:
		return engine.StopReasonMaxTokens
	case go_openai.FinishReasonStop:
		return engine.StopReasonEndTurn
	}
	return engine.StopReason(reason)
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// specNames is used for debug logging.
func specNames(specs []tools.ToolSpec) []string {
	ret := make([]string, 0, len(specs))
	for _, s := range specs {
		ret = append(ret, s.Name)
	}
	return ret
}
