// Package serde encodes conversation logs for blob storage.
//
// The wire format is JSON. Binary payloads are written as arrays of byte values
// so stored histories stay plain JSON text.
package serde

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/pkg/errors"
)

type wireTurn struct {
	Role    turns.Role  `json:"role"`
	Content []wireBlock `json:"content"`
}

// wireBlock holds exactly one non-nil field.
type wireBlock struct {
	Text       *string         `json:"text,omitempty"`
	Image      *wireBinary     `json:"image,omitempty"`
	Document   *wireBinary     `json:"document,omitempty"`
	ToolUse    *wireToolUse    `json:"toolUse,omitempty"`
	ToolResult *wireToolResult `json:"toolResult,omitempty"`
	JSON       json.RawMessage `json:"json,omitempty"`
}

type wireBinary struct {
	Format string     `json:"format"`
	Name   string     `json:"name,omitempty"`
	Source wireSource `json:"source"`
}

type wireSource struct {
	Bytes byteArray `json:"bytes"`
}

type wireToolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type wireToolResult struct {
	ToolUseID string                 `json:"toolUseId"`
	Content   []wireBlock            `json:"content"`
	Status    turns.ToolResultStatus `json:"status"`
}

// byteArray marshals as [1,2,3] instead of base64 and accepts both forms on decode.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeUint8(&buf, v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeUint8(buf *bytes.Buffer, v byte) {
	if v >= 100 {
		buf.WriteByte('0' + v/100)
	}
	if v >= 10 {
		buf.WriteByte('0' + (v/10)%10)
	}
	buf.WriteByte('0' + v%10)
}

func (b *byteArray) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return errors.Wrap(err, "decoding base64 bytes")
		}
		*b = decoded
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return errors.Wrap(err, "decoding byte array")
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return errors.Errorf("byte value %d out of range at %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// MarshalLog encodes a log to its stored JSON form.
func MarshalLog(l turns.Log) ([]byte, error) {
	wire := make([]wireTurn, 0, len(l))
	for i, t := range l {
		blocks, err := encodeBlocks(t.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		wire = append(wire, wireTurn{Role: t.Role, Content: blocks})
	}
	return json.Marshal(wire)
}

// UnmarshalLog decodes a stored log, restoring binary payloads at every nesting level.
func UnmarshalLog(data []byte) (turns.Log, error) {
	var wire []wireTurn
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrap(err, "decoding log")
	}
	l := make(turns.Log, 0, len(wire))
	for i, wt := range wire {
		content, err := decodeBlocks(wt.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		t := turns.Turn{Role: wt.Role, Content: content}
		if err := t.Validate(); err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
		l = append(l, t)
	}
	return l, nil
}

func encodeBlocks(blocks []turns.ContentBlock) ([]wireBlock, error) {
	ret := make([]wireBlock, 0, len(blocks))
	for _, c := range blocks {
		var wb wireBlock
		switch b := c.(type) {
		case turns.TextBlock:
			text := b.Text
			wb.Text = &text
		case turns.ImageBlock:
			wb.Image = &wireBinary{Format: b.Format, Name: b.Name, Source: wireSource{Bytes: b.Bytes}}
		case turns.DocumentBlock:
			wb.Document = &wireBinary{Format: b.Format, Name: b.Name, Source: wireSource{Bytes: b.Bytes}}
		case turns.ToolUseBlock:
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			wb.ToolUse = &wireToolUse{ToolUseID: b.ID, Name: b.Name, Input: input}
		case turns.ToolResultBlock:
			nested, err := encodeBlocks(b.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "tool_result %s", b.ToolUseID)
			}
			wb.ToolResult = &wireToolResult{ToolUseID: b.ToolUseID, Content: nested, Status: b.Status}
		case turns.JSONBlock:
			raw, err := json.Marshal(b.Value)
			if err != nil {
				return nil, errors.Wrap(err, "encoding json block")
			}
			wb.JSON = raw
		default:
			return nil, errors.Wrapf(turns.ErrUnknownBlock, "%T", c)
		}
		ret = append(ret, wb)
	}
	return ret, nil
}

func decodeBlocks(blocks []wireBlock) ([]turns.ContentBlock, error) {
	ret := make([]turns.ContentBlock, 0, len(blocks))
	for i, wb := range blocks {
		switch {
		case wb.Text != nil:
			ret = append(ret, turns.TextBlock{Text: *wb.Text})
		case wb.Image != nil:
			ret = append(ret, turns.ImageBlock{Format: wb.Image.Format, Name: wb.Image.Name, Bytes: []byte(wb.Image.Source.Bytes)})
		case wb.Document != nil:
			ret = append(ret, turns.DocumentBlock{Format: wb.Document.Format, Name: wb.Document.Name, Bytes: []byte(wb.Document.Source.Bytes)})
		case wb.ToolUse != nil:
			input := wb.ToolUse.Input
			if input == nil {
				input = map[string]any{}
			}
			ret = append(ret, turns.ToolUseBlock{ID: wb.ToolUse.ToolUseID, Name: wb.ToolUse.Name, Input: input})
		case wb.ToolResult != nil:
			nested, err := decodeBlocks(wb.ToolResult.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "tool_result %s", wb.ToolResult.ToolUseID)
			}
			status := wb.ToolResult.Status
			if status == "" {
				status = turns.ToolResultSuccess
			}
			ret = append(ret, turns.ToolResultBlock{ToolUseID: wb.ToolResult.ToolUseID, Content: nested, Status: status})
		case len(wb.JSON) > 0:
			var v any
			if err := json.Unmarshal(wb.JSON, &v); err != nil {
				return nil, errors.Wrap(err, "decoding json block")
			}
			ret = append(ret, turns.JSONBlock{Value: v})
		default:
			return nil, errors.Wrapf(turns.ErrUnknownBlock, "block %d", i)
		}
	}
	return ret, nil
}
