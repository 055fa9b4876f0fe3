// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRenderer_Render(t *testing.T) {
	r := NewHTMLRenderer()

	tests := []struct {
		name     string
		in       string
		contains []string
		excludes []string
	}{
		{
			name:     "wrapper and emphasis",
			in:       "**hi** there",
			contains: []string{`<div class="markdown-body">`, "<strong>hi</strong>"},
		},
		{
			name:     "hard line breaks",
			in:       "line one\nline two",
			contains: []string{"<br"},
		},
		{
			name:     "script stripped",
			in:       "hello <script>alert(1)</script> **x**",
			excludes: []string{"<script", "alert(1)"},
		},
		{
			name:     "event handler stripped",
			in:       `<img src="x.png" onerror="alert(1)"> *y*`,
			excludes: []string{"onerror"},
		},
		{
			name:     "horizontal rule",
			in:       "above\n\n***\n\nbelow",
			contains: []string{"<hr"},
		},
		{
			name:     "table",
			in:       "| a | b |\n|---|---|\n| 1 | 2 |",
			contains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:     "highlighted code",
			in:       "```go\nfunc main() {}\n```",
			contains: []string{`class="chroma"`, "main"},
			excludes: []string{"```"},
		},
		{
			name:     "links",
			in:       "[docs](https://example.com)",
			contains: []string{`href="https://example.com"`, "noreferrer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(tt.in)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(out, "</div>"))
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestHTMLRenderer_HRParagraphFix(t *testing.T) {
	assert.Equal(t, "<hr>", hrParagraph.ReplaceAllString("<p>---</p>", "<hr>"))
	assert.Equal(t, "<hr>", hrParagraph.ReplaceAllString("<p> ___ </p>", "<hr>"))
}

func TestHTMLRenderer_RenderReply(t *testing.T) {
	r := NewHTMLRenderer()

	out, err := r.RenderReply("a < b\nc")
	require.NoError(t, err)
	assert.Equal(t, "<div class=\"markdown-body\"><p>a &lt; b<br>\nc</p></div>", out)

	out, err = r.RenderReply("Here:```go\nx := 1\n```")
	require.NoError(t, err)
	assert.Contains(t, out, `class="chroma"`)
}

func TestTermRenderer(t *testing.T) {
	r, err := NewTermRenderer("dark", "monokai", 60)
	require.NoError(t, err)

	out, err := r.Render("# Title\n\nsome **bold** text\n\n```go\nx := 1\n```")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "```")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestHighlightCSS(t *testing.T) {
	css, err := HighlightCSS("monokai")
	require.NoError(t, err)
	assert.Contains(t, css, ".chroma")
}
