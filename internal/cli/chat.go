// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of input at a time.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerReader edits lines with liner and keeps input history in the
// config directory across runs.
type linerReader struct {
	state       *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &linerReader{state: state, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		r.state.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	return r.state.Prompt(prompt)
}

func (r *linerReader) AppendHistory(item string) {
	r.state.AppendHistory(item)
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (r *linerReader) Close() error {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.state.WriteHistory(f)
			f.Close()
		}
	}
	return r.state.Close()
}

// scanReader reads lines from a non-terminal input, such as a pipe or a
// test buffer.
type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	return &scanReader{sc: bufio.NewScanner(in), out: out}
}

func (r *scanReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}
func (r *scanReader) Close() error         { return nil }

// =============================================================================
// REPL
// =============================================================================

// chatREPL is a line-mode chat over the same session and history as the
// TUI.
type chatREPL struct {
	app     *App
	eng     *engine.Engine
	in      lineReader
	titles  []string
	running bool
}

// HandleChat runs the interactive chat loop until /quit or end of input.
// Ctrl+C during a reply cancels the reply; at the prompt it exits.
func HandleChat(ctx context.Context, app *App) error {
	var in lineReader
	if app.In == os.Stdin && IsTTY() {
		in = newLinerReader()
	} else {
		in = newScanReader(app.In, app.Out)
	}
	defer in.Close()

	r := &chatREPL{
		app: app,
		eng: lineEngine(app, app.Config.Server.Stream),
		in:  in,
	}

	// Interrupts cancel the reply in flight, not the loop.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			r.eng.Cancel()
		}
	}()

	return r.run(context.WithoutCancel(ctx))
}

func (r *chatREPL) run(ctx context.Context) error {
	r.banner()

	for {
		line, err := r.in.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.app.Out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.app.Err, "%s %v\n", errorColor.Sprint("[error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		r.send(ctx, func(obs engine.Observer) (engine.Result, error) {
			return r.eng.Send(ctx, line, obs)
		})
	}
}

func (r *chatREPL) banner() {
	s := r.app.Session
	who := "guest"
	if id := s.UserID(); id != "" {
		who = id
		if e := s.Email(); e != "" {
			who = e
		}
	}
	fmt.Fprintf(r.app.Out, "%s %s\n", titleColor.Sprint("hypve chat"), dimColor.Sprintf("(%s, %s)", who, r.app.Config.Server.BaseURL))

	if title, rec, ok := s.Resume(); ok {
		fmt.Fprintf(r.app.Out, "%s %s (%d messages)\n", labelColor.Sprint("resumed"), title, len(rec))
	}
	fmt.Fprintln(r.app.Out, dimColor.Sprint("Type /help for commands, /quit to exit."))
}

// send runs one turn, streaming the reply to the terminal.
func (r *chatREPL) send(ctx context.Context, run func(engine.Observer) (engine.Result, error)) {
	out := &livePrinter{w: r.app.Out}
	fmt.Fprint(r.app.Out, replyColor.Sprint("hypve> "))

	res, err := run(engine.ObserverFuncs{Frame: out.frame})
	if err != nil {
		fmt.Fprintln(r.app.Out)
		fmt.Fprintf(r.app.Err, "%s %v\n", errorColor.Sprint("[error]"), err)
		return
	}

	switch {
	case res.Cancelled:
		fmt.Fprintln(r.app.Out)
		fmt.Fprintln(r.app.Err, warnColor.Sprint("[cancelled]"))
	case res.Failed:
		fmt.Fprintln(r.app.Out)
		fmt.Fprintln(r.app.Err, errorColor.Sprint(res.Reply))
	default:
		if !out.wrote() {
			fmt.Fprint(r.app.Out, res.Reply)
		}
		fmt.Fprintln(r.app.Out)
		if res.Err != nil {
			fmt.Fprintf(r.app.Err, "%s reply not saved: %v\n", warnColor.Sprint("Warning:"), res.Err)
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = `Commands:
  /new            Start a new chat
  /list           List saved chats
  /open N         Open chat N from /list
  /delete N       Delete chat N from /list
  /regen          Ask the last prompt again
  /help           Show this help
  /quit           Exit`

// command runs a slash command and reports whether to quit.
func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, arg := strings.ToLower(fields[0]), ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	s := r.app.Session

	switch name {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		fmt.Fprintln(r.app.Out, chatHelp)

	case "/new", "/n":
		s.Reset()
		fmt.Fprintln(r.app.Out, successColor.Sprint("new chat"))

	case "/list", "/ls", "/l":
		titles, err := s.Titles()
		if err != nil {
			return false, err
		}
		r.titles = titles
		if len(titles) == 0 {
			fmt.Fprintln(r.app.Out, dimColor.Sprint("no saved chats"))
		}
		cur := s.Current()
		for i, t := range titles {
			mark := "  "
			if t == cur {
				mark = "* "
			}
			fmt.Fprintf(r.app.Out, "%s%s %s\n", mark, labelColor.Sprintf("%2d.", i+1), t)
		}

	case "/open", "/o":
		title, err := r.pick(arg)
		if err != nil {
			return false, err
		}
		rec, err := s.Open(title)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.app.Out, "%s %s\n", successColor.Sprint("opened"), title)
		printRecord(r.app, rec)

	case "/delete", "/del", "/rm":
		title, err := r.pick(arg)
		if err != nil {
			return false, err
		}
		if r.app.Config.UI.ConfirmDelete {
			// End of input counts as no.
			answer, _ := r.in.Prompt(fmt.Sprintf("Delete %q? [y/N] ", title))
			if ok, _ := ParseBoolString(answer); !ok {
				fmt.Fprintln(r.app.Out, dimColor.Sprint("kept"))
				return false, nil
			}
		}
		if _, err := s.Delete(title); err != nil {
			return false, err
		}
		r.titles = nil
		fmt.Fprintf(r.app.Out, "%s %s\n", successColor.Sprint("deleted"), title)

	case "/regen", "/r":
		if _, ok := s.LastUserMessage(); !ok {
			return false, engine.ErrNothingToRegenerate
		}
		r.send(ctx, func(obs engine.Observer) (engine.Result, error) {
			return r.eng.Regenerate(ctx, obs)
		})

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// pick resolves a 1-based index from the last /list.
func (r *chatREPL) pick(arg string) (string, error) {
	if r.titles == nil {
		titles, err := r.app.Session.Titles()
		if err != nil {
			return "", err
		}
		r.titles = titles
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.titles) {
		return "", NewValidationError("chat number", arg, fmt.Sprintf("expected 1-%d from /list", len(r.titles)))
	}
	return r.titles[n-1], nil
}

// truncateLine shortens s to one line of at most width columns.
func truncateLine(s string, width int) string {
	return util.TruncateWidth(util.SingleLine(s), width)
}
