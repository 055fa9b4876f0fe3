// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// =============================================================================
// FRAME
// =============================================================================

// Frame is one snapshot of a reply being displayed.
type Frame struct {
	// Text is the sanitized reply so far.
	Text string
	// Markdown reports whether Text was rendered as markdown.
	Markdown bool
	// Rendered is the output of the last render pass.
	Rendered string
	// Tail is sanitized text that arrived after the last markdown render.
	Tail string
	// CodeBlocks are the fenced blocks as of the last highlight pass.
	CodeBlocks []CodeBlock
	// Final is set on the frame produced by Finish.
	Final bool
}

// View is the string to show for this frame.
func (f Frame) View() string {
	if f.Tail == "" {
		return f.Rendered
	}
	if f.Rendered == "" {
		return f.Tail
	}
	return f.Rendered + "\n" + f.Tail
}

// =============================================================================
// DISPLAY
// =============================================================================

// Options tune when Display re-renders.
type Options struct {
	// Markdown enables markdown rendering. When false all text is plain.
	Markdown bool
	// MinRunes is how many new runes trigger a re-render.
	MinRunes int
	// HighlightEvery re-highlights code blocks every N renders.
	HighlightEvery int
	// CodeStyle is the chroma style for code block highlighting.
	CodeStyle string
}

// DefaultOptions mirror the config defaults.
func DefaultOptions() Options {
	return Options{Markdown: true, MinRunes: 24, HighlightEvery: 8, CodeStyle: DefaultCodeStyle}
}

// Display accumulates a reply and re-renders it incrementally. Append is
// cheap between renders; a render re-derives markdown detection over the
// whole buffer, since a late fence or table can change the answer.
//
// Display is safe for concurrent use; Cancel may be called from any
// goroutine.
type Display struct {
	renderer Renderer
	opts     Options

	mu        sync.Mutex
	raw       strings.Builder
	pending   int // runes since last render
	renders   int
	markdown  bool
	rendered  string
	renderLen int // len(raw) at last render
	started   bool
	blocks    []CodeBlock
	finished  bool

	cancelled atomic.Bool
}

// NewDisplay creates a Display. A nil renderer displays plain text.
func NewDisplay(r Renderer, opts Options) *Display {
	if r == nil {
		r = PlainRenderer{}
		opts.Markdown = false
	}
	if opts.MinRunes <= 0 {
		opts.MinRunes = 1
	}
	if opts.HighlightEvery <= 0 {
		opts.HighlightEvery = 1
	}
	return &Display{renderer: r, opts: opts}
}

// Cancel sets the cooperative cancel flag checked between increments.
func (d *Display) Cancel() { d.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (d *Display) Cancelled() bool { return d.cancelled.Load() }

// Text returns the sanitized text received so far.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return SanitizeText(d.raw.String())
}

// Append adds chunk and returns the current frame. rendered reports
// whether this call ran a render pass.
func (d *Display) Append(chunk string) (frame Frame, rendered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return d.frameLocked(true), false
	}
	if chunk != "" {
		d.raw.WriteString(chunk)
		d.pending += utf8.RuneCountInString(chunk)
	}

	if (!d.started && d.raw.Len() > 0) || d.shouldRender(chunk) {
		d.renderLocked(false)
		return d.frameLocked(false), true
	}
	return d.frameLocked(false), false
}

// shouldRender applies the re-render threshold: enough new runes, or a
// chunk that may end a block (newline, fence, table separator).
func (d *Display) shouldRender(chunk string) bool {
	if d.pending >= d.opts.MinRunes {
		return true
	}
	return strings.Contains(chunk, "\n") ||
		strings.Contains(chunk, fence) ||
		strings.Contains(chunk, "|-") ||
		strings.Contains(chunk, "-|")
}

// Finish runs the cleanup pass: close open fences, render once more and
// highlight every code block. Later Appends are ignored.
func (d *Display) Finish() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.finished = true
	d.renderLocked(true)
	return d.frameLocked(true)
}

// Frame returns the current frame without rendering.
func (d *Display) Frame() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameLocked(d.finished)
}

func (d *Display) renderLocked(final bool) {
	raw := d.raw.String()
	clean := SanitizeText(raw)

	d.pending = 0
	d.renderLen = len(raw)
	d.started = len(raw) > 0
	d.renders++

	d.markdown = d.opts.Markdown && LooksLikeMarkdown(clean)
	if !d.markdown {
		d.rendered = clean
		d.blocks = nil
		return
	}

	src := CloseFences(NormalizeFences(clean))
	out, err := d.renderer.Render(src)
	if err != nil {
		out = clean
	}
	d.rendered = out

	if final || d.renders%d.opts.HighlightEvery == 0 {
		d.blocks = HighlightBlocks(CodeBlocks(NormalizeFences(clean)), d.opts.CodeStyle)
	}
}

func (d *Display) frameLocked(final bool) Frame {
	raw := d.raw.String()
	f := Frame{
		Text:     SanitizeText(raw),
		Markdown: d.markdown,
		Rendered: d.rendered,
		Final:    final,
	}
	if d.renderLen < len(raw) {
		tail := SanitizeText(raw[d.renderLen:])
		if d.markdown {
			f.Tail = tail
		} else {
			// Plain text is cheap: show it all.
			f.Rendered = f.Text
		}
	}
	if len(d.blocks) > 0 {
		f.CodeBlocks = append([]CodeBlock(nil), d.blocks...)
	}
	return f
}
