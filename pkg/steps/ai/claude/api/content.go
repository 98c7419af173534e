package api

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeDocument   ContentType = "document"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

type Content interface {
	Type() ContentType
}

type BaseContent struct {
	Type_ ContentType `json:"type"`
}

type TextContent struct {
	BaseContent
	Text string `json:"text"`
}

func (t TextContent) Type() ContentType {
	return ContentTypeText
}

type ImageContent struct {
	BaseContent
	Source MediaSource `json:"source"`
}

func (i ImageContent) Type() ContentType {
	return ContentTypeImage
}

// MediaSource is either base64 data or, for documents, inline text.
type MediaSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type DocumentContent struct {
	BaseContent
	Source MediaSource `json:"source"`
	Title  string      `json:"title,omitempty"`
}

func (d DocumentContent) Type() ContentType {
	return ContentTypeDocument
}

type ToolUseContent struct {
	BaseContent
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (t ToolUseContent) Type() ContentType {
	return ContentTypeToolUse
}

type ToolResultContent struct {
	BaseContent
	ToolUseID string    `json:"tool_use_id"`
	Content   []Content `json:"content"`
	IsError   bool      `json:"is_error,omitempty"`
}

func (t ToolResultContent) Type() ContentType {
	return ContentTypeToolResult
}

func NewTextContent(text string) Content {
	return TextContent{BaseContent: BaseContent{Type_: ContentTypeText}, Text: text}
}

func NewImageContent(mediaType, base64Data string) Content {
	return ImageContent{
		BaseContent: BaseContent{Type_: ContentTypeImage},
		Source:      MediaSource{Type: "base64", MediaType: mediaType, Data: base64Data},
	}
}

func NewBase64DocumentContent(mediaType, base64Data, title string) Content {
	return DocumentContent{
		BaseContent: BaseContent{Type_: ContentTypeDocument},
		Source:      MediaSource{Type: "base64", MediaType: mediaType, Data: base64Data},
		Title:       title,
	}
}

func NewTextDocumentContent(text, title string) Content {
	return DocumentContent{
		BaseContent: BaseContent{Type_: ContentTypeDocument},
		Source:      MediaSource{Type: "text", MediaType: "text/plain", Data: text},
		Title:       title,
	}
}

func NewToolUseContent(toolID, toolName string, toolInput json.RawMessage) Content {
	return ToolUseContent{
		BaseContent: BaseContent{Type_: ContentTypeToolUse},
		ID:          toolID,
		Name:        toolName,
		Input:       toolInput,
	}
}

func NewToolResultContent(toolUseID string, content []Content, isError bool) Content {
	return ToolResultContent{
		BaseContent: BaseContent{Type_: ContentTypeToolResult},
		ToolUseID:   toolUseID,
		Content:     content,
		IsError:     isError,
	}
}

// UnmarshalContent decodes one content block by its type tag.
func UnmarshalContent(data []byte) (Content, error) {
	var base BaseContent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}
	var (
		c   Content
		err error
	)
	switch base.Type_ {
	case ContentTypeText:
		var v TextContent
		err = json.Unmarshal(data, &v)
		c = v
	case ContentTypeImage:
		var v ImageContent
		err = json.Unmarshal(data, &v)
		c = v
	case ContentTypeDocument:
		var v DocumentContent
		err = json.Unmarshal(data, &v)
		c = v
	case ContentTypeToolUse:
		var v ToolUseContent
		err = json.Unmarshal(data, &v)
		c = v
	case ContentTypeToolResult:
		var raw struct {
			BaseContent
			ToolUseID string            `json:"tool_use_id"`
			Content   []json.RawMessage `json:"content"`
			IsError   bool              `json:"is_error"`
		}
		if err = json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		nested, err := unmarshalContents(raw.Content)
		if err != nil {
			return nil, err
		}
		c = ToolResultContent{BaseContent: raw.BaseContent, ToolUseID: raw.ToolUseID, Content: nested, IsError: raw.IsError}
	default:
		return nil, errors.Errorf("unknown content type %q", base.Type_)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshalContents(raws []json.RawMessage) ([]Content, error) {
	ret := make([]Content, 0, len(raws))
	for _, r := range raws {
		c, err := UnmarshalContent(r)
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}
