// Package markup renders model output into the HTML subset understood by
// Telegram (b, i, u, s, code, pre, a, blockquote).
package markup

import (
	"bytes"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var allowedTags = map[string]bool{
	"b": true, "strong": true, "i": true, "em": true, "u": true, "ins": true,
	"s": true, "strike": true, "del": true, "code": true, "pre": true, "a": true,
	"blockquote": true, "tg-spoiler": true,
}

var (
	tagPattern     = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)\b[^>]*>`)
	anyTagPattern  = regexp.MustCompile(`<[^>]*>`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
	escapeReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	quoteReplacer  = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// Escape escapes text for inclusion in Telegram HTML.
func Escape(s string) string {
	return escapeReplacer.Replace(s)
}

// Sanitize keeps supported tags in raw HTML and escapes everything else.
func Sanitize(raw string) string {
	var out strings.Builder
	last := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(raw, -1) {
		out.WriteString(Escape(raw[last:m[0]]))
		tag := raw[m[0]:m[1]]
		if allowedTags[strings.ToLower(raw[m[2]:m[3]])] {
			out.WriteString(tag)
		} else {
			out.WriteString(Escape(tag))
		}
		last = m[1]
	}
	out.WriteString(Escape(raw[last:]))
	return out.String()
}

// StripTags removes all tags and unescapes entities, producing plain text.
func StripTags(s string) string {
	return html.UnescapeString(anyTagPattern.ReplaceAllString(s, ""))
}

type renderer struct {
	source []byte
	buf    bytes.Buffer
}

// ToHTML converts markdown (possibly mixed with inline HTML) to Telegram HTML.
func ToHTML(markdown string) (string, error) {
	r := &renderer{source: []byte(markdown)}
	doc := md.Parser().Parse(text.NewReader(r.source))
	if err := ast.Walk(doc, r.walk); err != nil {
		return "", err
	}
	out := blankLines.ReplaceAllString(r.buf.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func (r *renderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch v := n.(type) {
	case *ast.Heading:
		if entering {
			r.buf.WriteString("<b>")
		} else {
			r.buf.WriteString("</b>\n\n")
		}

	case *ast.Paragraph:
		if !entering {
			if _, inItem := v.Parent().(*ast.ListItem); inItem {
				r.buf.WriteString("\n")
			} else {
				r.buf.WriteString("\n\n")
			}
		}

	case *ast.TextBlock:
		if !entering {
			r.buf.WriteString("\n")
		}

	case *ast.ThematicBreak:
		if entering {
			r.buf.WriteString("\n")
		}

	case *ast.Blockquote:
		if entering {
			r.buf.WriteString("<blockquote>")
		} else {
			r.trimNewlines()
			r.buf.WriteString("</blockquote>\n\n")
		}

	case *ast.List:
		if !entering {
			if _, nested := v.Parent().(*ast.ListItem); !nested {
				r.buf.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			r.buf.WriteString(strings.Repeat("  ", listDepth(v)-1))
			r.buf.WriteString(itemMarker(v))
		}

	case *ast.FencedCodeBlock:
		lang := string(v.Language(r.source))
		r.codeBlock(v, lang)
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		r.codeBlock(v, "")
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		var raw strings.Builder
		for i := 0; i < v.Lines().Len(); i++ {
			seg := v.Lines().At(i)
			raw.Write(seg.Value(r.source))
		}
		if v.HasClosure() {
			raw.Write(v.ClosureLine.Value(r.source))
		}
		r.buf.WriteString(Sanitize(raw.String()))
		r.buf.WriteString("\n")
		return ast.WalkSkipChildren, nil

	case *ast.CodeSpan:
		r.buf.WriteString("<code>")
		for c := v.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				r.buf.WriteString(Escape(string(t.Segment.Value(r.source))))
			case *ast.String:
				r.buf.WriteString(Escape(string(t.Value)))
			}
		}
		r.buf.WriteString("</code>")
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		tag := "i"
		if v.Level >= 2 {
			tag = "b"
		}
		r.tag(tag, entering)

	case *east.Strikethrough:
		r.tag("s", entering)

	case *ast.Link:
		if entering {
			r.buf.WriteString(`<a href="` + quoteReplacer.Replace(string(v.Destination)) + `">`)
		} else {
			r.buf.WriteString("</a>")
		}

	case *ast.Image:
		if entering {
			r.buf.WriteString(`<a href="` + quoteReplacer.Replace(string(v.Destination)) + `">`)
		} else {
			r.buf.WriteString("</a>")
		}

	case *ast.AutoLink:
		if entering {
			url := string(v.URL(r.source))
			r.buf.WriteString(`<a href="` + quoteReplacer.Replace(url) + `">` + Escape(string(v.Label(r.source))) + "</a>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.RawHTML:
		if entering {
			for i := 0; i < v.Segments.Len(); i++ {
				seg := v.Segments.At(i)
				r.buf.WriteString(Sanitize(string(seg.Value(r.source))))
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.Text:
		if entering {
			r.buf.WriteString(Escape(unescape(v.Segment.Value(r.source))))
			if (v.SoftLineBreak() || v.HardLineBreak()) && v.NextSibling() != nil {
				r.buf.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			r.buf.WriteString(Escape(string(v.Value)))
		}
	}
	return ast.WalkContinue, nil
}

func (r *renderer) tag(name string, entering bool) {
	if entering {
		r.buf.WriteString("<" + name + ">")
	} else {
		r.buf.WriteString("</" + name + ">")
	}
}

func (r *renderer) codeBlock(n ast.Node, lang string) {
	var code strings.Builder
	for i := 0; i < n.Lines().Len(); i++ {
		seg := n.Lines().At(i)
		code.Write(seg.Value(r.source))
	}
	if lang != "" {
		r.buf.WriteString(`<pre><code class="language-` + quoteReplacer.Replace(lang) + `">`)
	} else {
		r.buf.WriteString("<pre><code>")
	}
	r.buf.WriteString(Escape(strings.TrimRight(code.String(), "\n")))
	r.buf.WriteString("</code></pre>\n\n")
}

func (r *renderer) trimNewlines() {
	b := r.buf.Bytes()
	n := len(b)
	for n > 0 && b[n-1] == '\n' {
		n--
	}
	r.buf.Truncate(n)
}

func unescape(b []byte) string {
	b = util.UnescapePunctuations(b)
	b = util.ResolveNumericReferences(b)
	b = util.ResolveEntityNames(b)
	return string(b)
}

func listDepth(n ast.Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	return depth
}

func itemMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	idx := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		idx++
	}
	return strconv.Itoa(list.Start+idx) + ". "
}
