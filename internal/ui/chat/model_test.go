// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/kv"
	"github.com/jeranaias/hypve-tui/internal/session"
	"github.com/jeranaias/hypve-tui/internal/ui/styles"
)

type stubBackend struct {
	reply string
	err   error
}

func (s stubBackend) Generate(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func (s stubBackend) GenerateStream(ctx context.Context, prompt string, fn func(string)) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	fn(s.reply)
	return s.reply, nil
}

type captureSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *captureSender) Send(msg tea.Msg) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func newTestModel(t *testing.T, b engine.Backend) (Model, *session.Session) {
	t.Helper()
	t.Setenv("HYPVE_HOME", t.TempDir())
	cfg := config.Default()
	cfg.UI.Theme = "dark"

	sess := session.New(history.New(kv.NewMemoryStore()), session.Options{TitleMaxRunes: 30})
	eng := engine.New(b, sess, nil, engine.OptionsFromConfig(cfg))
	m := New(cfg, sess, eng, styles.NewTheme("dark"))
	m.SetSender(&captureSender{})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model), sess
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send submits prompt and completes the turn synchronously.
func send(t *testing.T, m Model, prompt string) Model {
	t.Helper()
	m.input.SetValue(prompt)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.IsStreaming())

	done := m.sendCmd(m.seq, strings.TrimSpace(prompt))()
	updated, _ := m.Update(done)
	return updated.(Model)
}

// =============================================================================
// SEND
// =============================================================================

func TestSubmit_ShowsLoadingBubble(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "hi"})
	m.input.SetValue("hello")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	require.Len(t, m.bubbles, 2)
	assert.Equal(t, bubbleUser, m.bubbles[0].kind)
	assert.Equal(t, "hello", m.bubbles[0].text)
	assert.Equal(t, bubbleLoading, m.bubbles[1].kind)
	assert.Empty(t, m.input.Value())
	assert.True(t, m.waiting())
}

func TestSubmit_IgnoresBlankInput(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "hi"})
	m.input.SetValue("   ")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.bubbles)
	assert.False(t, m.IsStreaming())
}

func TestSend_CompletesAndSaves(t *testing.T) {
	m, sess := newTestModel(t, stubBackend{reply: "General Kenobi"})

	m = send(t, m, "hello there")
	assert.False(t, m.IsStreaming())
	require.Len(t, m.bubbles, 2)
	assert.Equal(t, bubbleAI, m.bubbles[1].kind)
	assert.Equal(t, "General Kenobi", m.bubbles[1].text)
	assert.Equal(t, []string{"hello there"}, m.Titles())
	assert.Equal(t, "hello there", sess.Current())

	// the view draws the sidebar and the thread
	view := m.View()
	assert.Contains(t, view, "Chats")
	assert.Contains(t, view, "hello there")
}

func TestSend_FailureShowsErrorBubble(t *testing.T) {
	m, sess := newTestModel(t, stubBackend{err: backend.ErrServerBusy})

	m = send(t, m, "anyone?")
	require.Len(t, m.bubbles, 2)
	assert.Equal(t, bubbleError, m.bubbles[1].kind)
	assert.Equal(t, backend.BusyMessage, m.bubbles[1].text)

	titles, err := sess.Titles()
	require.NoError(t, err)
	assert.Empty(t, titles)
}

func TestFrames_StaleSequenceIgnored(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "x"})
	m.input.SetValue("q")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	updated, _ := m.Update(FrameMsg{Seq: m.seq - 1})
	m = updated.(Model)
	assert.Equal(t, bubbleLoading, m.bubbles[len(m.bubbles)-1].kind)

	updated, _ = m.Update(FrameMsg{Seq: m.seq, Frame: m.renderStatic("partial")})
	m = updated.(Model)
	last := m.bubbles[len(m.bubbles)-1]
	assert.Equal(t, bubbleAI, last.kind)
	assert.Equal(t, "partial", last.text)
}

func TestCancel_RestoresInput(t *testing.T) {
	m, sess := newTestModel(t, stubBackend{reply: "never shown"})
	m.input.SetValue("take it back")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	seq := m.seq

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.IsStreaming())
	assert.Empty(t, m.bubbles)
	assert.Equal(t, "take it back", m.input.Value())
	assert.Equal(t, "cancelled", m.status)

	// a late completion of the cancelled turn is dropped
	updated, _ := m.Update(TurnDoneMsg{Seq: seq, Result: engine.Result{Reply: "late"}})
	m = updated.(Model)
	assert.Empty(t, m.bubbles)
	assert.False(t, sess.Busy())
}

func TestTurnRejected(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "x"})
	m.input.SetValue("q")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	updated, _ := m.Update(TurnDoneMsg{Seq: m.seq, Err: session.ErrBusy})
	m = updated.(Model)
	assert.Empty(t, m.bubbles)
	assert.True(t, m.statusError)
}

// =============================================================================
// CHATS
// =============================================================================

func TestNewChat(t *testing.T) {
	m, sess := newTestModel(t, stubBackend{reply: "a"})
	m = send(t, m, "first")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Empty(t, m.bubbles)
	assert.Empty(t, sess.Current())

	m = send(t, m, "second")
	assert.Equal(t, []string{"second", "first"}, m.Titles())
}

func TestSidebar_OpenAndDelete(t *testing.T) {
	m, sess := newTestModel(t, stubBackend{reply: "r"})
	m = send(t, m, "alpha")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m = send(t, m, "beta")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, FocusSidebar, m.focus)

	// move to "alpha" and open it
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "alpha", sess.Current())
	assert.Equal(t, FocusInput, m.focus)
	require.Len(t, m.bubbles, 2)
	assert.Equal(t, "alpha", m.bubbles[0].text)

	// delete with confirmation
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, runes("d"))
	assert.Equal(t, "alpha", m.pendingDelete)
	assert.Contains(t, m.View(), "Delete")

	m, _ = press(t, m, runes("n"))
	assert.Empty(t, m.pendingDelete)
	assert.Len(t, m.Titles(), 2)

	m, _ = press(t, m, runes("d"))
	m, _ = press(t, m, runes("y"))
	assert.Equal(t, []string{"beta"}, m.Titles())
	assert.Empty(t, m.bubbles, "deleting the open chat resets the thread")
}

func TestToggleSidebar(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{})
	require.True(t, m.sidebarVisible())

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	assert.False(t, m.sidebarVisible())
	assert.Equal(t, 120, m.mainWidth())
	assert.NotContains(t, m.View(), "Chats")
}

// =============================================================================
// CLIPBOARD
// =============================================================================

func stubClipboard(t *testing.T) *[]string {
	t.Helper()
	var copied []string
	orig := copyToClipboard
	copyToClipboard = func(text string) error {
		copied = append(copied, text)
		return nil
	}
	t.Cleanup(func() { copyToClipboard = orig })
	return &copied
}

func TestCopyReplyAndCodeBlock(t *testing.T) {
	copied := stubClipboard(t)
	reply := "Try this:\n\n```go\nfmt.Println(1)\n```\n\nor\n\n```sh\necho 2\n```"
	m, _ := newTestModel(t, stubBackend{reply: reply})
	m = send(t, m, "print")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Len(t, *copied, 1)
	assert.Equal(t, reply, (*copied)[0])

	m.input.SetValue("/copy 2")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, *copied, 2)
	assert.Equal(t, "echo 2", strings.TrimSpace((*copied)[1]))
	assert.False(t, m.IsStreaming(), "/copy is not sent as a prompt")

	m.input.SetValue("/copy 9")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.statusError)
	assert.Len(t, *copied, 2)
}

func TestCopyCodeBlock_GluedFence(t *testing.T) {
	copied := stubClipboard(t)
	reply := "Run this:```go\nfmt.Println(1)\n```\nThen this:\n```py\nprint(2)\n```"
	m, _ := newTestModel(t, stubBackend{reply: reply})
	m = send(t, m, "two snippets")

	m.input.SetValue("/copy 1")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m.input.SetValue("/copy 2")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, *copied, 2)
	assert.Equal(t, "fmt.Println(1)", (*copied)[0])
	assert.Equal(t, "print(2)", (*copied)[1])
	assert.False(t, m.statusError)
}

func TestCopyFailure(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "text"})
	m = send(t, m, "q")

	orig := copyToClipboard
	copyToClipboard = func(string) error { return errors.New("no clipboard") }
	defer func() { copyToClipboard = orig }()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.True(t, m.statusError)
	assert.Contains(t, m.status, "no clipboard")
}

func TestParseCopyCommand(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		ok      bool
		wantErr bool
	}{
		{"/copy 1", 1, true, false},
		{"  /copy   3 ", 3, true, false},
		{"/copy", 0, true, true},
		{"/copy zero", 0, true, true},
		{"/copy 0", 0, true, true},
		{"copy 1", 0, false, false},
		{"hello", 0, false, false},
	}
	for _, tt := range tests {
		n, ok, err := parseCopyCommand(tt.in)
		assert.Equal(t, tt.n, n, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestConfigReloaded(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{})
	cfg := config.Default()
	cfg.UI.ConfirmDelete = false

	updated, _ := m.Update(ConfigReloadedMsg{Config: cfg})
	m = updated.(Model)
	assert.False(t, m.cfg.UI.ConfirmDelete)
	assert.Equal(t, "config reloaded", m.status)
}

func TestConfigReloaded_AppliesToLiveTurns(t *testing.T) {
	m, _ := newTestModel(t, stubBackend{reply: "# Title\n\nbody"})
	cfg := config.Default()
	cfg.UI.Theme = "dark"
	cfg.Render.Markdown = false
	cfg.Render.Typewriter = false

	updated, _ := m.Update(ConfigReloadedMsg{Config: cfg})
	m = updated.(Model)

	m.input.SetValue("heading please")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.IsStreaming())

	done, ok := m.sendCmd(m.seq, "heading please")().(TurnDoneMsg)
	require.True(t, ok)
	assert.False(t, done.Result.Frame.Markdown, "markdown off after reload")
	assert.True(t, done.Result.Frame.Final)
}
