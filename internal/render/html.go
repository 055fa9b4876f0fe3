// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// =============================================================================
// HTML RENDERER
// =============================================================================

// Renderer turns markdown into display output.
type Renderer interface {
	Render(markdown string) (string, error)
}

// HTMLRenderer renders markdown to sanitized HTML wrapped in
// <div class="markdown-body">.
type HTMLRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// hrParagraph matches a rule that the markdown parser left as a paragraph.
var hrParagraph = regexp.MustCompile(`<p>\s*(---|\*\*\*|___)\s*</p>`)

// NewHTMLRenderer creates a renderer with GFM, hard line breaks and chroma
// highlighting of fenced code.
func NewHTMLRenderer() *HTMLRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithUnsafe(), // raw HTML passes through to the sanitizer
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{}, 100)),
		),
	)
	return &HTMLRenderer{md: md, policy: NewPolicy()}
}

// NewPolicy returns the HTML allow-list: user-generated-content markup,
// GFM task list checkboxes and chroma class names.
func NewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).OnElements("pre", "code", "span", "div")
	p.AllowElements("input")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Render converts markdown to sanitized HTML.
func (r *HTMLRenderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	out := hrParagraph.ReplaceAllString(buf.String(), "<hr>")
	return `<div class="markdown-body">` + r.policy.Sanitize(out) + `</div>`, nil
}

// RenderReply renders text as markdown when it looks like markdown and as
// an escaped paragraph otherwise.
func (r *HTMLRenderer) RenderReply(text string) (string, error) {
	clean := SanitizeText(text)
	if !LooksLikeMarkdown(clean) {
		return PlainHTML(clean), nil
	}
	return r.Render(NormalizeFences(clean))
}

// PlainHTML escapes text into a paragraph, keeping line breaks.
func PlainHTML(text string) string {
	escaped := html.EscapeString(text)
	return `<div class="markdown-body"><p>` + strings.ReplaceAll(escaped, "\n", "<br>\n") + `</p></div>`
}

// =============================================================================
// FENCED CODE
// =============================================================================

// codeBlockRenderer replaces goldmark's fenced code output with chroma's.
type codeBlockRenderer struct{}

func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCodeBlock)
}

func (c *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}
	lang := string(n.Language(source))

	highlighted, err := HighlightHTML(code.String(), lang)
	if err != nil {
		w.WriteString("<pre><code>")
		w.WriteString(html.EscapeString(code.String()))
		w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}
	w.WriteString(highlighted)
	return ast.WalkSkipChildren, nil
}
