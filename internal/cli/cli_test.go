// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/export"
	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/kv"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"list"},
			wantSub: "list",
		},
		{
			name:    "flag with value",
			args:    []string{"export", "--format", "html"},
			wantSub: "export",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "html", p.Flag("format"))
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"export", "--out=/tmp/x"},
			wantSub: "export",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "/tmp/x", p.Flag("out"))
			},
		},
		{
			name:    "trailing boolean flag",
			args:    []string{"list", "--json"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("json"))
			},
		},
		{
			name:    "multi-word title",
			args:    []string{"show", "my", "long", "chat"},
			wantSub: "show",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, 4, p.PositionalCount())
				assert.Equal(t, "my long chat", p.Joined(1))
			},
		},
		{
			name:    "declared bool does not consume",
			args:    []string{"delete", "--yes", "My", "chat"},
			bools:   []string{"yes"},
			wantSub: "delete",
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("yes", "y"))
				assert.Equal(t, "My chat", p.Joined(1))
			},
		},
		{
			name:    "short alias",
			args:    []string{"delete", "-y", "3"},
			bools:   []string{"y"},
			wantSub: "delete",
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("yes", "y"))
				assert.Equal(t, "3", p.Positional(1))
			},
		},
		{
			name:    "double dash",
			args:    []string{"--", "--not-a-flag", "text"},
			wantSub: "--not-a-flag",
			validate: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.HasFlag("not-a-flag"))
				assert.Equal(t, "--not-a-flag text", p.Joined(0))
			},
		},
		{
			name:    "explicit false",
			args:    []string{"--raw=false"},
			wantSub: "",
			validate: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.BoolFlag("raw"))
				assert.True(t, p.HasFlag("raw"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewArgParser(tt.args, tt.bools...)
			assert.Equal(t, tt.wantSub, p.Subcommand())
			if tt.validate != nil {
				tt.validate(t, p)
			}
		})
	}
}

func TestArgParser_Defaults(t *testing.T) {
	p := NewArgParser(nil)
	assert.Equal(t, "", p.Subcommand())
	assert.Equal(t, "md", p.FlagOrDefault("format", "md"))
	assert.Equal(t, "", p.Positional(-1))
	assert.Empty(t, p.PositionalFrom(3))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"y", "YES", " true\n", "1", "on"} {
		v, err := ParseBoolString(s)
		assert.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"n", "No", "false", "0", "off"} {
		v, err := ParseBoolString(s)
		assert.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.ErrorIs(t, err, ErrUsage)
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		argv []string
		cmd  Command
		rest []string
	}{
		{nil, CmdTUI, nil},
		{[]string{"tui"}, CmdTUI, []string{}},
		{[]string{"ask", "why", "--raw"}, CmdAsk, []string{"why", "--raw"}},
		{[]string{"a", "hi"}, CmdAsk, []string{"hi"}},
		{[]string{"chat"}, CmdChat, []string{}},
		{[]string{"history", "list"}, CmdHistory, []string{"list"}},
		{[]string{"login", "a@b.co"}, CmdLogin, []string{"a@b.co"}},
		{[]string{"logout"}, CmdLogout, []string{}},
		{[]string{"whoami"}, CmdWhoami, []string{}},
		{[]string{"auth", "github"}, CmdAuth, []string{"github"}},
		{[]string{"config", "get", "ui.theme"}, CmdConfig, []string{"get", "ui.theme"}},
		{[]string{"--version"}, CmdVersion, []string{}},
		{[]string{"help"}, CmdHelp, []string{}},
	}
	for _, tt := range tests {
		cmd, args, err := Parse(tt.argv)
		require.NoError(t, err, tt.argv)
		assert.Equal(t, tt.cmd, cmd, tt.argv)
		if tt.rest != nil {
			assert.Equal(t, tt.rest, args.Rest, tt.argv)
		}
	}
}

func TestParse_GlobalFlagsAnywhere(t *testing.T) {
	cmd, args, err := Parse([]string{"--debug", "history", "--server", "http://x:1", "list", "--ephemeral", "--json"})
	require.NoError(t, err)
	assert.Equal(t, CmdHistory, cmd)
	assert.True(t, args.Debug)
	assert.True(t, args.Ephemeral)
	assert.True(t, args.JSON)
	assert.Equal(t, "http://x:1", args.Server)
	assert.Equal(t, []string{"list"}, args.Rest)

	_, args, err = Parse([]string{"--server=http://y:2"})
	require.NoError(t, err)
	assert.Equal(t, "http://y:2", args.Server)
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse([]string{"frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)

	_, _, err = Parse([]string{"--server"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{usageError("x"), ExitUsageError},
		{NewValidationError("n", "x", "bad"), ExitUsageError},
		{fmt.Errorf("wrap: %w", session.ErrInvalidEmail), ExitUsageError},
		{config.ErrUnknownKey, ExitConfigError},
		{config.ValidateErrors{{Field: "ui.theme", Message: "bad"}}, ExitConfigError},
		{fmt.Errorf("%w: x", history.ErrChatNotFound), ExitNotFound},
		{kv.ErrLocked, ExitLocked},
		{NewCommandError("ask", "generate", backend.ErrServerBusy), ExitNetworkError},
		{errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetExitCode(tt.err), "%v", tt.err)
	}
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

// isolate points HYPVE_HOME at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HYPVE_HOME", dir)
	for _, k := range []string{
		"HYPVE_SERVER_URL", "HYPVE_STREAM", "HYPVE_STORAGE_BACKEND",
		"HYPVE_STORAGE_PATH", "HYPVE_TYPEWRITER", "HYPVE_DEBUG",
	} {
		t.Setenv(k, "")
	}
	config.ResetGlobalForTesting()
	return dir
}

// chatServer answers /generate with reply, streamed word by word when
// asked to stream, and reports no signed-in user.
func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get-user":
			w.WriteHeader(http.StatusUnauthorized)
		case "/generate":
			var req struct {
				Prompt string `json:"prompt"`
				Stream bool   `json:"stream"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if !req.Stream {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"response": reply})
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(reply, " ") {
				data, _ := json.Marshal(map[string]string{"token": word})
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	t      *testing.T
	server string
	in     string
}

// run executes argv and returns stdout, stderr and the error.
func (h harness) run(argv ...string) (string, string, error) {
	h.t.Helper()
	cmd, args, err := Parse(argv)
	require.NoError(h.t, err, argv)
	if args.Server == "" {
		args.Server = h.server
	}
	var out, errOut bytes.Buffer
	env := Env{In: strings.NewReader(h.in), Out: &out, Err: &errOut}
	err = Execute(context.Background(), cmd, args, env)
	return out.String(), errOut.String(), err
}

// listTitles decodes history list --json.
func listTitles(t *testing.T, h harness) []ChatSummary {
	t.Helper()
	out, _, err := h.run("history", "list", "--json")
	require.NoError(t, err)
	var resp struct {
		Success bool          `json:"success"`
		Data    []ChatSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestAsk_SavesChat(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "Hello there, friend").URL}

	out, _, err := h.run("ask", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "Hello there, friend\n", out)

	rows := listTitles(t, h)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello world", rows[0].Title)
	assert.Equal(t, 2, rows[0].Messages)

	out, _, err = h.run("history", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "you> hello world")
	assert.Contains(t, out, "Hello there, friend")
}

func TestAsk_NoStream(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "**bold** answer").URL}

	out, _, err := h.run("ask", "--no-stream", "q")
	require.NoError(t, err)
	assert.Equal(t, "**bold** answer\n", out, "piped output stays raw")
}

func TestAsk_FromStdin(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "piped ok").URL, in: "prompt from a pipe\n"}

	out, _, err := h.run("ask")
	require.NoError(t, err)
	assert.Equal(t, "piped ok\n", out)
	assert.Equal(t, "prompt from a pipe", listTitles(t, h)[0].Title)
}

func TestAsk_EmptyPrompt(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "x").URL}

	_, _, err := h.run("ask", "   ")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestAsk_ServerDown(t *testing.T) {
	isolate(t)
	srv := chatServer(t, "x")
	url := srv.URL
	srv.Close()
	h := harness{t: t, server: url}

	out, errOut, err := h.run("ask", "anyone")
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, GetExitCode(err))
	assert.Empty(t, out)
	assert.Contains(t, errOut, backend.BusyMessage)
	assert.Empty(t, listTitles(t, h), "failed turns are not saved")
}

func TestHistory_DeleteRenameExport(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "Use `go test`.\n\n```sh\ngo test ./...\n```").URL}

	_, _, err := h.run("ask", "how do I test")
	require.NoError(t, err)

	_, _, err = h.run("history", "rename", "1", "--to", "testing")
	require.NoError(t, err)
	assert.Equal(t, "testing", listTitles(t, h)[0].Title)

	outDir := t.TempDir()
	out, _, err := h.run("history", "export", "testing", "--format", "html", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported")
	files, err := filepath.Glob(filepath.Join(outDir, "chat_testing_*.html"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	page, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(page), "ai-message")

	_, _, err = h.run("history", "export", "testing", "--format", "pdf")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	_, _, err = h.run("history", "delete", "testing")
	assert.ErrorIs(t, err, ErrUsage, "no --yes without a terminal")

	_, _, err = h.run("history", "delete", "--yes", "testing")
	require.NoError(t, err)
	assert.Empty(t, listTitles(t, h))

	_, _, err = h.run("history", "show", "testing")
	assert.ErrorIs(t, err, history.ErrChatNotFound)
}

func TestHistory_Prune(t *testing.T) {
	dir := isolate(t)
	h := harness{t: t, server: chatServer(t, "kept").URL}

	_, _, err := h.run("ask", "keep me")
	require.NoError(t, err)

	store, err := kv.Open(kv.BackendSQLite, filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	require.NoError(t, store.Set(history.ChatKey("u9", "gone"), `[{"role":"user","text":"x"}]`))
	require.NoError(t, store.Close())

	out, _, err := h.run("history", "prune", "--json")
	require.NoError(t, err)
	var resp struct {
		Data PruneResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Removed)

	out, _, err = h.run("history", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 orphaned records")
	require.Len(t, listTitles(t, h), 1, "titled chats survive")
}

func TestChat_REPL(t *testing.T) {
	isolate(t)
	h := harness{
		t:      t,
		server: chatServer(t, "Go is a language").URL,
		in:     "what is go\n/list\n/open 9\n/new\n/bogus\n/quit\n",
	}

	out, errOut, err := h.run("chat")
	require.NoError(t, err)
	assert.Contains(t, out, "hypve chat")
	assert.Contains(t, out, "hypve> Go is a language")
	assert.Contains(t, out, " 1. what is go")
	assert.Contains(t, out, "new chat")
	assert.Contains(t, errOut, "expected 1-1")
	assert.Contains(t, errOut, "unknown command /bogus")
}

func TestChat_DeleteAsksFirst(t *testing.T) {
	isolate(t)
	srv := chatServer(t, "sure").URL
	h := harness{t: t, server: srv, in: "keep or not\n/delete 1\nn\n/list\n/delete 1\ny\n/list\n/quit\n"}

	out, _, err := h.run("chat")
	require.NoError(t, err)
	assert.Contains(t, out, `Delete "keep or not"? [y/N]`)
	kept := strings.Index(out, "kept")
	deleted := strings.Index(out, "deleted keep or not")
	require.True(t, kept >= 0 && deleted > kept, "declined first, then deleted")
	assert.Contains(t, out[kept:deleted], " 1. keep or not")
	assert.Contains(t, out[deleted:], "no saved chats")

	_, _, err = h.run("config", "set", "ui.confirm_delete", "false")
	require.NoError(t, err)
	h.in = "again\n/delete 1\n/list\n/quit\n"
	out, _, err = h.run("chat")
	require.NoError(t, err)
	assert.NotContains(t, out, "[y/N]")
	assert.Contains(t, out, "deleted again")
	assert.Contains(t, out, "no saved chats")
}

func TestChat_EndOfInput(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "x").URL, in: ""}

	_, _, err := h.run("chat")
	assert.NoError(t, err)
}

func TestLoginWhoamiLogout(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "x").URL}

	_, _, err := h.run("login", "not-an-email")
	assert.ErrorIs(t, err, session.ErrInvalidEmail)

	out, _, err := h.run("login", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as ada@example.com")

	out, _, err = h.run("whoami", "--json")
	require.NoError(t, err)
	var resp struct {
		Data WhoamiData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, strings.HasPrefix(resp.Data.UserID, "guest_"), resp.Data.UserID)
	assert.False(t, resp.Data.Guest)

	out, _, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	out, _, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "user: guest")
}

func TestAuth(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: "http://chat.test:5000"}

	out, _, err := h.run("auth", "github")
	require.NoError(t, err)
	assert.Contains(t, out, "http://chat.test:5000/auth/github")

	_, _, err = h.run("auth", "myspace")
	assert.ErrorIs(t, err, backend.ErrUnknownProvider)
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)
	h := harness{t: t}

	out, _, err := h.run("config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml")+"\n", out)

	_, _, err = h.run("config", "set", "render.word_wrap", "90")
	require.NoError(t, err)

	out, _, err = h.run("config", "get", "render.word_wrap")
	require.NoError(t, err)
	assert.Equal(t, "90\n", out)

	_, _, err = h.run("config", "set", "ui.theme", "neon")
	assert.Equal(t, ExitConfigError, GetExitCode(err))

	_, _, err = h.run("config", "get", "nope")
	assert.ErrorIs(t, err, config.ErrUnknownKey)

	// --server is not written back
	_, _, err = h.run("--server", "http://flag:1", "config", "set", "ui.theme", "light")
	require.NoError(t, err)
	saved, err := config.LoadFromPath(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "light", saved.UI.Theme)
	assert.Equal(t, config.Default().Server.BaseURL, saved.Server.BaseURL)
}

func TestConfigSet_KeepsJSONFile(t *testing.T) {
	dir := isolate(t)
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"ui":{"theme":"dark"}}`), 0600))
	h := harness{t: t}

	_, _, err := h.run("config", "set", "ui.show_sidebar", "false")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "config.toml"))
	saved, err := config.LoadFromPath(jsonPath)
	require.NoError(t, err)
	assert.False(t, saved.UI.ShowSidebar)
	assert.Equal(t, "dark", saved.UI.Theme)
}

func TestVersionJSON(t *testing.T) {
	h := harness{t: t}
	out, _, err := h.run("--json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "`+Version+`"`)
}

func TestTUI_RequiresTerminal(t *testing.T) {
	isolate(t)
	h := harness{t: t, server: chatServer(t, "x").URL}

	_, _, err := h.run("tui")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestStoreLocked(t *testing.T) {
	dir := isolate(t)
	store, err := kv.Open(kv.BackendSQLite, filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	defer store.Close()

	h := harness{t: t}
	_, _, err = h.run("history", "list")
	assert.ErrorIs(t, err, kv.ErrLocked)
	assert.Equal(t, ExitLocked, GetExitCode(err))

	_, _, err = h.run("--ephemeral", "history", "list")
	assert.NoError(t, err, "memory store needs no lock")
}
