// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/hypve-tui/internal/export"
	"github.com/jeranaias/hypve-tui/internal/history"
)

// ChatSummary is one row of history list --json.
type ChatSummary struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Messages int    `json:"messages"`
	Current  bool   `json:"current,omitempty"`
}

// ChatDetail is history show --json.
type ChatDetail struct {
	Title    string            `json:"title"`
	Messages []history.Message `json:"messages"`
}

// PruneResult is history prune --json.
type PruneResult struct {
	Removed int `json:"removed"`
}

// HandleHistory manages saved chats: list, show, delete, rename, export, prune.
func HandleHistory(app *App, rest []string) error {
	p := NewArgParser(rest, "yes", "y", "open")

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "list", "ls":
		return historyList(app)
	case "show", "cat":
		return historyShow(app, p)
	case "delete", "rm":
		return historyDelete(app, p)
	case "rename", "mv":
		return historyRename(app, p)
	case "export":
		return historyExport(app, p)
	case "prune":
		return historyPrune(app)
	default:
		return usageError("hypve history list|show|delete|rename|export|prune")
	}
}

func historyList(app *App) error {
	titles, err := app.Session.Titles()
	if err != nil {
		return NewCommandError("history", "list", err)
	}

	cur := app.Session.Current()
	rows := make([]ChatSummary, 0, len(titles))
	for i, t := range titles {
		rec, err := app.Session.Record(t)
		if err != nil {
			return NewCommandError("history", "list", err)
		}
		rows = append(rows, ChatSummary{Index: i + 1, Title: t, Messages: len(rec), Current: t == cur})
	}

	if app.JSON {
		return NewJSONResponse("history list", rows).Fprint(app.Out)
	}
	if len(rows) == 0 {
		fmt.Fprintln(app.Out, dimColor.Sprint("No saved chats."))
		return nil
	}
	width := GetTerminalWidth() - 16
	for _, r := range rows {
		fmt.Fprintf(app.Out, "%s %s %s\n",
			labelColor.Sprintf("%3d.", r.Index),
			truncateLine(r.Title, width),
			dimColor.Sprintf("(%d)", r.Messages))
	}
	return nil
}

// resolveTitle finds the chat named by the positional arguments. An exact
// title wins; a bare number is an index from history list.
func resolveTitle(app *App, p *ArgParser, usage string) (string, error) {
	arg := strings.TrimSpace(p.Joined(1))
	if arg == "" {
		return "", usageError(usage)
	}
	titles, err := app.Session.Titles()
	if err != nil {
		return "", err
	}
	for _, t := range titles {
		if t == arg {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(titles) {
		return titles[n-1], nil
	}
	return "", fmt.Errorf("%w: %q", history.ErrChatNotFound, arg)
}

func historyShow(app *App, p *ArgParser) error {
	title, err := resolveTitle(app, p, "hypve history show <title|N>")
	if err != nil {
		return err
	}
	rec, err := app.Session.Record(title)
	if err != nil {
		return NewCommandError("history", "show", err)
	}
	if app.JSON {
		return NewJSONResponse("history show", ChatDetail{Title: title, Messages: rec}).Fprint(app.Out)
	}
	fmt.Fprintln(app.Out, titleColor.Sprint(title))
	printRecord(app, rec)
	return nil
}

// printRecord prints a chat as alternating prompts and replies.
func printRecord(app *App, rec history.Record) {
	for _, m := range rec {
		fmt.Fprintln(app.Out)
		if m.Role == history.RoleUser {
			fmt.Fprintf(app.Out, "%s %s\n", promptColor.Sprint("you>"), m.Text)
			continue
		}
		text := m.Text
		if app.TTY {
			text = renderMarkdown(app.Config, text)
		}
		fmt.Fprintf(app.Out, "%s\n%s\n", replyColor.Sprint("hypve>"), text)
	}
}

func historyDelete(app *App, p *ArgParser) error {
	title, err := resolveTitle(app, p, "hypve history delete <title|N> [--yes]")
	if err != nil {
		return err
	}

	if !p.BoolFlag("yes", "y") {
		if !IsTTY() {
			return usageError("refusing to delete without --yes when stdin is not a terminal")
		}
		fmt.Fprintf(app.Out, "Delete %q? [y/N] ", title)
		answer, _ := bufio.NewReader(app.In).ReadString('\n')
		if ok, _ := ParseBoolString(answer); !ok {
			fmt.Fprintln(app.Out, dimColor.Sprint("kept"))
			return nil
		}
	}

	if _, err := app.Session.Delete(title); err != nil {
		return NewCommandError("history", "delete", err)
	}
	fmt.Fprintf(app.Out, "%s %q\n", successColor.Sprint("deleted"), title)
	return nil
}

func historyRename(app *App, p *ArgParser) error {
	newTitle := strings.TrimSpace(p.Flag("to"))
	if newTitle == "" {
		return usageError("hypve history rename <title|N> --to <new title>")
	}
	title, err := resolveTitle(app, p, "hypve history rename <title|N> --to <new title>")
	if err != nil {
		return err
	}
	if err := app.Session.Rename(title, newTitle); err != nil {
		return NewCommandError("history", "rename", err)
	}
	fmt.Fprintf(app.Out, "%s %q -> %q\n", successColor.Sprint("renamed"), title, newTitle)
	return nil
}

func historyExport(app *App, p *ArgParser) error {
	title, err := resolveTitle(app, p, "hypve history export <title|N> [--format md|json|html] [--out DIR]")
	if err != nil {
		return err
	}
	rec, err := app.Session.Record(title)
	if err != nil {
		return NewCommandError("history", "export", err)
	}

	opts := export.DefaultOptions()
	opts.OutputDir = p.FlagOrDefault("out", ".")
	opts.OpenAfterExport = p.BoolFlag("open")
	opts.CodeStyle = app.Config.Render.CodeStyle
	if app.Config.UI.Theme == "light" {
		opts.Theme = "light"
	}

	exporter, err := export.ForFormat(p.FlagOrDefault("format", "md"), opts)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(export.NewChat(title, app.Session.UserID(), rec), exporter, opts)
	if err != nil {
		return NewCommandError("history", "export", err)
	}
	fmt.Fprintf(app.Out, "%s %s\n", successColor.Sprint("exported"), path)
	return nil
}

func historyPrune(app *App) error {
	n, err := app.Session.PruneOrphans()
	if err != nil {
		return NewCommandError("history", "prune", err)
	}
	if app.JSON {
		return NewJSONResponse("history prune", PruneResult{Removed: n}).Fprint(app.Out)
	}
	fmt.Fprintf(app.Out, "%s %d orphaned records\n", successColor.Sprint("pruned"), n)
	return nil
}
