// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/render"
)

// maxStdinPrompt bounds a prompt read from a pipe.
const maxStdinPrompt = 1 << 20

// =============================================================================
// LIVE OUTPUT
// =============================================================================

// livePrinter writes each frame's new text as it arrives. Frames carry the
// whole reply so far; only the unseen suffix is printed.
type livePrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed string
}

func (p *livePrinter) frame(f render.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// the busy message is reported on stderr once the turn is done
	if f.Final && f.Text == backend.BusyMessage {
		return
	}
	if !strings.HasPrefix(f.Text, p.printed) {
		return
	}
	if delta := f.Text[len(p.printed):]; delta != "" {
		io.WriteString(p.w, delta)
		p.printed = f.Text
	}
}

// wrote reports whether anything was printed.
func (p *livePrinter) wrote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed != ""
}

// lineEngine builds an engine for line output: no typewriter and a frame
// for every chunk. The terminal does its own pacing.
func lineEngine(app *App, stream bool) *engine.Engine {
	opts := engine.OptionsFromConfig(app.Config)
	opts.Stream = stream
	opts.Typewriter = false
	opts.Display.Markdown = false
	opts.Display.MinRunes = 1
	return engine.New(app.Client, app.Session, nil, opts)
}

// renderMarkdown renders reply for the terminal with glamour, falling
// back to the text itself.
func renderMarkdown(cfg *config.Config, reply string) string {
	if !cfg.Render.Markdown || !render.LooksLikeMarkdown(reply) {
		return reply
	}
	tr, err := render.NewTermRenderer(cfg.UI.Theme, cfg.Render.CodeStyle, wrapWidth(cfg.Render.WordWrap))
	if err != nil {
		log.Printf("[cli] markdown renderer unavailable: %v", err)
		return reply
	}
	out, err := tr.Render(render.CloseFences(render.NormalizeFences(reply)))
	if err != nil {
		return reply
	}
	return out
}

// =============================================================================
// ASK
// =============================================================================

// HandleAsk sends one prompt and prints the reply. The prompt comes from
// the arguments, or from stdin when it is piped. On a terminal the reply
// is rendered as markdown once complete; otherwise, or with --raw, text
// is streamed as it arrives.
func HandleAsk(ctx context.Context, app *App, rest []string) error {
	p := NewArgParser(rest, "no-stream", "raw")
	prompt := p.Joined(0)
	if strings.TrimSpace(prompt) == "" && app.In != nil && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(app.In, maxStdinPrompt))
		if err != nil {
			return fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return usageError(`hypve ask "prompt" [--no-stream] [--raw]`)
	}

	stream := app.Config.Server.Stream && !p.BoolFlag("no-stream")
	pretty := app.TTY && !p.BoolFlag("raw")

	out := &livePrinter{w: app.Out}
	obs := engine.ObserverFuncs{}
	if !pretty {
		obs.Frame = out.frame
	} else {
		fmt.Fprint(app.Err, dimColor.Sprint("thinking...\r"))
	}

	res, err := lineEngine(app, stream).Send(ctx, prompt, obs)
	if pretty {
		fmt.Fprint(app.Err, "           \r")
	}
	if err != nil {
		return err
	}
	return finishTurn(app, res, out, pretty)
}

// finishTurn prints what the live output did not and maps the result to
// an error.
func finishTurn(app *App, res engine.Result, out *livePrinter, pretty bool) error {
	switch {
	case res.Cancelled:
		if out.wrote() {
			fmt.Fprintln(app.Out)
		}
		fmt.Fprintln(app.Err, warnColor.Sprint("[cancelled]"))
		return context.Canceled

	case res.Failed:
		if out.wrote() {
			fmt.Fprintln(app.Out)
		}
		fmt.Fprintln(app.Err, errorColor.Sprint(res.Reply))
		return NewCommandError("ask", "generate", res.Err)
	}

	switch {
	case pretty:
		fmt.Fprintln(app.Out, renderMarkdown(app.Config, res.Reply))
	case !out.wrote():
		fmt.Fprintln(app.Out, res.Reply)
	default:
		fmt.Fprintln(app.Out)
	}

	if res.Err != nil {
		fmt.Fprintf(app.Err, "%s reply not saved: %v\n", warnColor.Sprint("Warning:"), res.Err)
	}
	return nil
}
