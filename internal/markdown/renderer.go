// Package markdown renders the markdown fields of records to HTML.
package markdown

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

// DefaultStyle is the chroma style used for fenced code blocks.
const DefaultStyle = "github"

type options struct {
	style     string
	hardWraps bool
}

// Option configures a Renderer.
type Option func(*options)

// WithStyle sets the chroma style name for code blocks.
func WithStyle(name string) Option {
	return func(o *options) { o.style = name }
}

// WithoutHardWraps keeps single newlines inside paragraphs as spaces.
func WithoutHardWraps() Option {
	return func(o *options) { o.hardWraps = false }
}

// Renderer converts record descriptions to HTML. Raw HTML in the source is
// omitted from the output.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer(opts ...Option) *Renderer {
	o := options{style: DefaultStyle, hardWraps: true}
	for _, opt := range opts {
		opt(&o)
	}

	htmlOpts := []renderer.Option{html.WithXHTML()}
	if o.hardWraps {
		htmlOpts = append(htmlOpts, html.WithHardWraps())
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(o.style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(htmlOpts...),
	)
	return &Renderer{md: md}
}

// RenderString converts src to HTML. Empty input renders to "".
func (r *Renderer) RenderString(src string) (string, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
