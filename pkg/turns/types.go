package turns

import (
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKind enumerates the variants of ContentBlock.
type ContentKind string

const (
	ContentKindText       ContentKind = "text"
	ContentKindImage      ContentKind = "image"
	ContentKindDocument   ContentKind = "document"
	ContentKindToolUse    ContentKind = "tool_use"
	ContentKindToolResult ContentKind = "tool_result"
	// ContentKindJSON only appears nested inside a ToolResultBlock.
	ContentKindJSON ContentKind = "json"
)

// ContentBlock is one typed unit of turn content. The set of implementations is
// closed: TextBlock, ImageBlock, DocumentBlock, ToolUseBlock, ToolResultBlock and JSONBlock.
type ContentBlock interface {
	Kind() ContentKind
	isContentBlock()
}

type TextBlock struct {
	Text string
}

// ImageBlock carries raw image bytes. Format is the short image type (jpeg, png, gif, webp).
type ImageBlock struct {
	Format string
	Name   string
	Bytes  []byte
}

// DocumentBlock carries a raw document. Format is the file extension (pdf, csv, txt, ...).
type DocumentBlock struct {
	Format string
	Name   string
	Bytes  []byte
}

// ToolUseBlock is a model-issued tool call.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResultBlock is the outcome of a ToolUseBlock, paired by ToolUseID.
type ToolResultBlock struct {
	ToolUseID string
	Content   []ContentBlock
	Status    ToolResultStatus
}

// JSONBlock holds structured tool output.
type JSONBlock struct {
	Value any
}

func (TextBlock) Kind() ContentKind       { return ContentKindText }
func (ImageBlock) Kind() ContentKind      { return ContentKindImage }
func (DocumentBlock) Kind() ContentKind   { return ContentKindDocument }
func (ToolUseBlock) Kind() ContentKind    { return ContentKindToolUse }
func (ToolResultBlock) Kind() ContentKind { return ContentKindToolResult }
func (JSONBlock) Kind() ContentKind       { return ContentKindJSON }

func (TextBlock) isContentBlock()       {}
func (ImageBlock) isContentBlock()      {}
func (DocumentBlock) isContentBlock()   {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}
func (JSONBlock) isContentBlock()       {}

// Turn is one role-tagged entry of a conversation.
type Turn struct {
	Role    Role
	Content []ContentBlock
}

// Log is the ordered turn history of one conversation.
type Log []Turn

var (
	ErrEmptyTurn       = errors.New("turn has no content")
	ErrInvalidRole     = errors.New("invalid turn role")
	ErrMisplacedBlock  = errors.New("content block not valid for turn role")
	ErrUnknownBlock    = errors.New("unknown content block")
	ErrUnpairedResult  = errors.New("tool_result without matching tool_use")
	ErrMixedToolResult = errors.New("tool_result turn mixed with other content")
)

// Validate checks the structural rules of a single turn.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return errors.Wrapf(ErrInvalidRole, "role %q", t.Role)
	}
	if len(t.Content) == 0 {
		return ErrEmptyTurn
	}
	for i, c := range t.Content {
		switch c.(type) {
		case TextBlock, ImageBlock, DocumentBlock:
		case ToolUseBlock:
			if t.Role != RoleAssistant {
				return errors.Wrapf(ErrMisplacedBlock, "block %d: tool_use in %s turn", i, t.Role)
			}
		case ToolResultBlock:
			if t.Role != RoleUser {
				return errors.Wrapf(ErrMisplacedBlock, "block %d: tool_result in %s turn", i, t.Role)
			}
		case JSONBlock:
			return errors.Wrapf(ErrMisplacedBlock, "block %d: json outside tool_result", i)
		default:
			return errors.Wrapf(ErrUnknownBlock, "block %d: %T", i, c)
		}
	}
	return nil
}

// IsToolResult reports whether the turn carries tool results.
func (t Turn) IsToolResult() bool {
	for _, c := range t.Content {
		if _, ok := c.(ToolResultBlock); ok {
			return true
		}
	}
	return false
}

// IsRealUser reports whether the turn was authored by the user rather than
// being a tool_result carrier.
func (t Turn) IsRealUser() bool {
	return t.Role == RoleUser && !t.IsToolResult()
}

// ToolUses returns the tool calls held by the turn, in order.
func (t Turn) ToolUses() []ToolUseBlock {
	var ret []ToolUseBlock
	for _, c := range t.Content {
		if tu, ok := c.(ToolUseBlock); ok {
			ret = append(ret, tu)
		}
	}
	return ret
}

// ToolResults returns the tool results held by the turn, in order.
func (t Turn) ToolResults() []ToolResultBlock {
	var ret []ToolResultBlock
	for _, c := range t.Content {
		if tr, ok := c.(ToolResultBlock); ok {
			ret = append(ret, tr)
		}
	}
	return ret
}

// Text concatenates the text blocks of the turn.
func (t Turn) Text() string {
	var s string
	for _, c := range t.Content {
		if tb, ok := c.(TextBlock); ok {
			s += tb.Text
		}
	}
	return s
}

// Answers reports whether t is a tool_result turn that answers every tool call of prev.
func (t Turn) Answers(prev Turn) bool {
	if prev.Role != RoleAssistant || !t.IsToolResult() {
		return false
	}
	uses := prev.ToolUses()
	if len(uses) == 0 {
		return false
	}
	ids := map[string]bool{}
	for _, r := range t.ToolResults() {
		ids[r.ToolUseID] = true
	}
	for _, u := range uses {
		if !ids[u.ID] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the log, including byte payloads and tool inputs.
func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	return clone.Clone(l).(Log)
}

// Validate checks every turn and the adjacency of tool_use/tool_result pairs.
func (l Log) Validate() error {
	for i, t := range l {
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "turn %d", i)
		}
		if t.IsToolResult() {
			for _, c := range t.Content {
				if _, ok := c.(ToolResultBlock); !ok {
					return errors.Wrapf(ErrMixedToolResult, "turn %d", i)
				}
			}
			if i == 0 || !t.Answers(l[i-1]) {
				return errors.Wrapf(ErrUnpairedResult, "turn %d", i)
			}
		}
	}
	return nil
}

// RealUserCount counts turns for which IsRealUser holds.
func (l Log) RealUserCount() int {
	n := 0
	for _, t := range l {
		if t.IsRealUser() {
			n++
		}
	}
	return n
}
