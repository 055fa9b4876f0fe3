// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	glamourStyles "github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// =============================================================================
// TERMINAL RENDERER
// =============================================================================

// TermRenderer renders markdown for the terminal with glamour.
type TermRenderer struct {
	mu sync.Mutex
	tr *glamour.TermRenderer
}

// NewTermRenderer creates a renderer wrapping at width columns. theme is
// "dark", "light" or "auto"; codeStyle names the chroma style for fenced
// code.
func NewTermRenderer(theme, codeStyle string, width int) (*TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStyles(termStyle(theme, codeStyle)),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, err
	}
	return &TermRenderer{tr: tr}, nil
}

// termStyle picks glamour's dark or light palette and swaps in the chroma
// theme for code blocks.
func termStyle(theme, codeStyle string) ansi.StyleConfig {
	dark := true
	switch strings.ToLower(theme) {
	case "light":
		dark = false
	case "dark":
	default:
		dark = termenv.HasDarkBackground()
	}

	cfg := glamourStyles.DarkStyleConfig
	if !dark {
		cfg = glamourStyles.LightStyleConfig
	}
	if codeStyle == "" {
		codeStyle = DefaultCodeStyle
	}
	cfg.CodeBlock.Theme = codeStyle
	cfg.CodeBlock.Chroma = nil
	return cfg
}

// Render renders markdown. Trailing blank lines are trimmed.
func (r *TermRenderer) Render(markdown string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := r.tr.Render(markdown)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n "), nil
}

// PlainRenderer returns its input unchanged; used for --raw output and
// when markdown rendering is disabled.
type PlainRenderer struct{}

func (PlainRenderer) Render(markdown string) (string, error) { return markdown, nil }
