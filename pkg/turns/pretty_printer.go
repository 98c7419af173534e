package turns

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrettyPrinter renders a Log in a configurable human-friendly way.
type PrettyPrinter struct {
	IncludeIndex      bool
	IncludeToolDetail bool
	IndentSpaces      int
	MaxTextLines      int // 0 => unlimited
}

// PrintOption configures a PrettyPrinter.
type PrintOption func(*PrettyPrinter)

// WithIndex toggles the [NN] turn index prefix.
func WithIndex(include bool) PrintOption { return func(p *PrettyPrinter) { p.IncludeIndex = include } }

// WithToolDetail toggles inclusion of tool inputs and result content.
func WithToolDetail(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeToolDetail = include }
}

// WithIndent sets the number of spaces used for indentation.
func WithIndent(spaces int) PrintOption { return func(p *PrettyPrinter) { p.IndentSpaces = spaces } }

// WithMaxTextLines limits how many lines of text to print per block (0 = unlimited).
func WithMaxTextLines(n int) PrintOption { return func(p *PrettyPrinter) { p.MaxTextLines = n } }

func NewPrettyPrinter(opts ...PrintOption) *PrettyPrinter {
	p := &PrettyPrinter{
		IncludeIndex:      true,
		IncludeToolDetail: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FprintLog prints the log using an ephemeral PrettyPrinter configured via options.
func FprintLog(w io.Writer, l Log, opts ...PrintOption) {
	NewPrettyPrinter(opts...).FprintLog(w, l)
}

func (p *PrettyPrinter) FprintLog(w io.Writer, l Log) {
	for i, t := range l {
		prefix := strings.Repeat(" ", p.IndentSpaces)
		if p.IncludeIndex {
			prefix = fmt.Sprintf("%s[%02d] ", prefix, i)
		}
		fmt.Fprintf(w, "%s%s:\n", prefix, t.Role)
		p.fprintBlocks(w, t.Content, p.IndentSpaces+2)
	}
}

func (p *PrettyPrinter) fprintBlocks(w io.Writer, blocks []ContentBlock, indent int) {
	pad := strings.Repeat(" ", indent)
	for _, c := range blocks {
		switch b := c.(type) {
		case TextBlock:
			p.fprintText(w, pad+"text:", b.Text)
		case ImageBlock:
			fmt.Fprintf(w, "%simage: format=%s name=%s bytes=%d\n", pad, b.Format, b.Name, len(b.Bytes))
		case DocumentBlock:
			fmt.Fprintf(w, "%sdocument: format=%s name=%s bytes=%d\n", pad, b.Format, b.Name, len(b.Bytes))
		case ToolUseBlock:
			fmt.Fprintf(w, "%stool_use: name=%s id=%s\n", pad, b.Name, b.ID)
			if p.IncludeToolDetail && b.Input != nil {
				fmt.Fprintf(w, "%s  input: %s\n", pad, toOneLineJSON(b.Input))
			}
		case ToolResultBlock:
			fmt.Fprintf(w, "%stool_result: id=%s status=%s\n", pad, b.ToolUseID, b.Status)
			if p.IncludeToolDetail {
				p.fprintBlocks(w, b.Content, indent+2)
			}
		case JSONBlock:
			fmt.Fprintf(w, "%sjson: %s\n", pad, toOneLineJSON(b.Value))
		default:
			fmt.Fprintf(w, "%s%T\n", pad, c)
		}
	}
}

func (p *PrettyPrinter) fprintText(w io.Writer, head string, text string) {
	if p.MaxTextLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > p.MaxTextLines {
			text = strings.Join(lines[:p.MaxTextLines], "\n") + " ..."
		}
	}
	fmt.Fprintf(w, "%s %s\n", head, text)
}

func toOneLineJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.ReplaceAll(string(b), "\n", " ")
}
