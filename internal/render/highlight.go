// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// DefaultCodeStyle is the chroma style used when none is configured.
const DefaultCodeStyle = "monokai"

func lexerFor(code, lang string) chroma.Lexer {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func styleFor(name string) *chroma.Style {
	if name == "" {
		name = DefaultCodeStyle
	}
	return chromaStyles.Get(name)
}

// Highlight colors code for a 256-color terminal. Unknown languages are
// guessed from the content; on failure the code is returned unchanged.
func Highlight(code, lang, style string) string {
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexerFor(code, lang).Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, styleFor(style), iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightBlocks fills in Highlighted for each block.
func HighlightBlocks(blocks []CodeBlock, style string) []CodeBlock {
	out := make([]CodeBlock, len(blocks))
	for i, b := range blocks {
		b.Highlighted = Highlight(b.Code, b.Lang, style)
		out[i] = b
	}
	return out
}

// htmlFormatter emits class names; the page supplies the CSS from HighlightCSS.
var htmlFormatter = chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(4))

// HighlightHTML renders code as a <pre class="chroma"> block.
func HighlightHTML(code, lang string) (string, error) {
	iterator, err := lexerFor(code, lang).Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := htmlFormatter.Format(&buf, styleFor(""), iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// HighlightCSS returns the stylesheet for HighlightHTML output in style.
func HighlightCSS(style string) (string, error) {
	var buf strings.Builder
	if err := htmlFormatter.WriteCSS(&buf, styleFor(style)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
