// Package prompts assembles the system prompt sent with every model call.
package prompts

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// FormattingTags lists the HTML tags the messaging channel renders.
var FormattingTags = []string{"<b>", "<i>", "<u>", "<s>", "<code>", "<pre>", "<a href>"}

// Context is the per-call data available to prompt templates.
type Context struct {
	Now      time.Time
	UserName string
	// Language is a language code; empty means mirror the user's language.
	Language       string
	ToolDirectives []string
}

const (
	timestampTemplate = `Current timestamp is {{ .Now.Format "Mon, 02 Jan 2006 15:04:05 MST" }}`
	userTemplate      = `{{ if .UserName }}The user you're chatting with is named {{ .UserName }}{{ end }}`
	languageTemplate  = `{{ if .Language }}Regardless of the language of the system or user prompt, your response MUST BE in the language code '{{ .Language | lower }}'{{ else }}Respond in the language the user writes in{{ end }}`
)

// Builder renders system prompts. Static instructions may themselves use
// template syntax and sprig functions.
type Builder struct {
	instructions *template.Template
	parts        []*template.Template
}

func NewBuilder(instructions string) (*Builder, error) {
	parse := func(name, text string) (*template.Template, error) {
		t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s template", name)
		}
		return t, nil
	}
	b := &Builder{}
	var err error
	if b.instructions, err = parse("instructions", instructions); err != nil {
		return nil, err
	}
	for _, p := range []struct{ name, text string }{
		{"timestamp", timestampTemplate},
		{"user", userTemplate},
		{"formatting", formattingText()},
		{"language", languageTemplate},
	} {
		t, err := parse(p.name, p.text)
		if err != nil {
			return nil, err
		}
		b.parts = append(b.parts, t)
	}
	return b, nil
}

func formattingText() string {
	return "You can use the following HTML tags to highlight the response text: " +
		strings.Join(FormattingTags, ", ") +
		"; use formatting only when absolutely necessary to highlight information in long text; never use Markdown"
}

// Build renders the prompt for one call. Sections are joined with ". " and
// empty sections are skipped.
func (b *Builder) Build(c Context) (string, error) {
	if c.Now.IsZero() {
		c.Now = time.Now().UTC()
	}
	var sections []string
	render := func(t *template.Template) error {
		var buf bytes.Buffer
		if err := t.Execute(&buf, c); err != nil {
			return errors.Wrapf(err, "rendering %s", t.Name())
		}
		if s := strings.TrimRight(strings.TrimSpace(buf.String()), "."); s != "" {
			sections = append(sections, s)
		}
		return nil
	}
	if err := render(b.instructions); err != nil {
		return "", err
	}
	for _, t := range b.parts {
		if err := render(t); err != nil {
			return "", err
		}
	}
	for _, d := range c.ToolDirectives {
		if d = strings.TrimRight(strings.TrimSpace(d), "."); d != "" {
			sections = append(sections, d)
		}
	}
	return strings.Join(sections, ". "), nil
}
