package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"emphasis", "Hello **world** and *you*", "Hello <b>world</b> and <i>you</i>"},
		{"strikethrough", "~~old~~ new", "<s>old</s> new"},
		{"heading", "# Title\n\nBody", "<b>Title</b>\n\nBody"},
		{"bullets", "- a\n- b", "• a\n• b"},
		{"ordered", "1. x\n2. y", "1. x\n2. y"},
		{"code span escapes", "Use `a<b`", "Use <code>a&lt;b</code>"},
		{"fenced code", "```go\nfmt.Println(1 < 2)\n```", `<pre><code class="language-go">fmt.Println(1 &lt; 2)</code></pre>`},
		{"link", "[site](https://x.io?a=1&b=2)", `<a href="https://x.io?a=1&amp;b=2">site</a>`},
		{"inline html kept and unknown escaped", "<b>bold</b> & <script>x</script>", "<b>bold</b> &amp; &lt;script&gt;x&lt;/script&gt;"},
		{"escaped punctuation", `not \*emphasis\*`, "not *emphasis*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHTML(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `<a href="x">l</a> &lt;div&gt;`, Sanitize(`<a href="x">l</a> <div>`))
	assert.Equal(t, "1 &lt; 2", Sanitize("1 < 2"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "bold & <raw>", StripTags("<b>bold</b> &amp; &lt;raw&gt;"))
}
