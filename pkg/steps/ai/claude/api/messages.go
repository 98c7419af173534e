package api

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// MessageRequest represents the Messages API request payload.
type MessageRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Metadata      *Metadata `json:"metadata,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	TopK          *int      `json:"top_k,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
}

// Metadata represents the metadata object for Claude API requests.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Tool represents a tool that the model can use.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := unmarshalContents(raw.Content)
	if err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = content
	return nil
}

// MessageResponse represents the Messages API response payload.
type MessageResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Content      []Content `json:"content"`
	Model        string    `json:"model"`
	StopReason   string    `json:"stop_reason,omitempty"`
	StopSequence string    `json:"stop_sequence,omitempty"`
	Usage        Usage     `json:"usage"`
}

func (m *MessageResponse) UnmarshalJSON(data []byte) error {
	type alias MessageResponse
	var raw struct {
		alias
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := unmarshalContents(raw.Content)
	if err != nil {
		return err
	}
	*m = MessageResponse(raw.alias)
	m.Content = content
	return nil
}

func (m MessageResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID).Str("model", m.Model).Str("stop_reason", m.StopReason).Int("content_blocks", len(m.Content))
	e.Object("usage", m.Usage)
}

// Usage represents token usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("input_tokens", u.InputTokens).Int("output_tokens", u.OutputTokens)
}
