// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case FrameMsg:
		return m.handleFrame(msg)

	case TurnDoneMsg:
		return m.handleTurnDone(msg)

	case resumeMsg:
		m.reloadTitles()
		m.loadRecord(msg.record)
		return m, nil

	case spinner.TickMsg:
		if !m.waiting() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshViewport(true)
		return m, cmd

	case StatusMsg:
		return m, m.setStatus(msg.Text, msg.Error)

	case clearStatusMsg:
		if msg.id == m.statusID {
			m.status = ""
		}
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// waiting reports whether the loading bubble is showing.
func (m Model) waiting() bool {
	n := len(m.bubbles)
	return m.streaming && n > 0 && m.bubbles[n-1].kind == bubbleLoading
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.layout()

	m.rebuildRenderer(m.wrapWidth())
	for i, b := range m.bubbles {
		if b.kind == bubbleAI {
			m.bubbles[i].frame = m.renderStatic(b.text)
		}
	}
	m.refreshViewport(false)
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.eng.Cancel()
		return m, tea.Quit
	}

	if m.pendingDelete != "" {
		return m.handleConfirmKey(msg)
	}

	if m.streaming {
		if key.Matches(msg, m.keys.Cancel) {
			return m.cancelTurn()
		}
		switch {
		case key.Matches(msg, m.keys.PageUp):
			m.viewport.HalfViewUp()
		case key.Matches(msg, m.keys.PageDown):
			m.viewport.HalfViewDown()
		}
		// typing ahead is allowed; sending is not
		if key.Matches(msg, m.keys.Send) {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.sess.Reset()
		m.bubbles = nil
		m.setFocus(FocusInput)
		m.refreshViewport(true)
		return m, nil

	case key.Matches(msg, m.keys.ToggleSidebar):
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.setFocus(FocusInput)
		}
		m.layout()
		m.refreshViewport(false)
		return m, nil

	case key.Matches(msg, m.keys.SwitchFocus):
		if m.focus == FocusInput && m.sidebarVisible() {
			m.setFocus(FocusSidebar)
		} else {
			m.setFocus(FocusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.Regenerate):
		prompt, ok := m.sess.LastUserMessage()
		if !ok {
			return m, m.setStatus("nothing to regenerate", true)
		}
		return m.submit(prompt)

	case key.Matches(msg, m.keys.CopyReply):
		return m.copyLastReply()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focus == FocusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Send) {
		text := m.input.Value()
		if n, ok, err := parseCopyCommand(text); ok {
			m.input.Reset()
			if err != nil {
				return m, m.setStatus(err.Error(), true)
			}
			return m.copyCodeBlock(n)
		}
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.titles)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Send):
		return m.openSelected()
	case key.Matches(msg, m.keys.Delete):
		if len(m.titles) == 0 {
			return m, nil
		}
		title := m.titles[m.selected]
		if m.cfg.UI.ConfirmDelete {
			m.pendingDelete = title
			return m, nil
		}
		return m.deleteChat(title)
	case key.Matches(msg, m.keys.Cancel):
		m.setFocus(FocusInput)
	}
	return m, nil
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		title := m.pendingDelete
		m.pendingDelete = ""
		return m.deleteChat(title)
	case key.Matches(msg, m.keys.Deny):
		m.pendingDelete = ""
	}
	return m, nil
}

func (m *Model) setFocus(f Focus) {
	m.focus = f
	if f == FocusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// =============================================================================
// CHATS
// =============================================================================

func (m Model) openSelected() (tea.Model, tea.Cmd) {
	if len(m.titles) == 0 {
		return m, nil
	}
	title := m.titles[m.selected]
	rec, err := m.sess.Open(title)
	if err != nil {
		m.reloadTitles()
		return m, m.setStatus(err.Error(), true)
	}
	m.loadRecord(rec)
	m.setFocus(FocusInput)
	return m, nil
}

func (m Model) deleteChat(title string) (tea.Model, tea.Cmd) {
	reset, err := m.sess.Delete(title)
	if err != nil {
		log.Printf("[ui] delete %q: %v", title, err)
		return m, m.setStatus("delete failed: "+err.Error(), true)
	}
	if reset {
		m.bubbles = nil
		m.refreshViewport(true)
	}
	m.reloadTitles()
	return m, m.setStatus(fmt.Sprintf("deleted %q", title), false)
}

// =============================================================================
// TURNS
// =============================================================================

// submit shows the prompt with a loading bubble and starts the send.
func (m Model) submit(prompt string) (tea.Model, tea.Cmd) {
	prompt = strings.TrimSpace(prompt)
	m.seq++
	m.streaming = true
	m.bubbles = append(m.bubbles,
		bubble{kind: bubbleUser, text: prompt},
		bubble{kind: bubbleLoading},
	)
	m.refreshViewport(true)

	return m, tea.Batch(m.spinner.Tick, m.sendCmd(m.seq, prompt))
}

// sendCmd runs the turn. Frames go to the program as they are produced;
// the command's own result is the TurnDoneMsg.
func (m Model) sendCmd(seq int, prompt string) tea.Cmd {
	eng, sender, ctx := m.eng, m.sender, m.ctx
	return func() tea.Msg {
		obs := engine.ObserverFuncs{
			Frame: func(f render.Frame) {
				if sender != nil {
					sender.Send(FrameMsg{Seq: seq, Frame: f})
				}
			},
		}
		res, err := eng.Send(ctx, prompt, obs)
		return TurnDoneMsg{Seq: seq, Result: res, Err: err}
	}
}

// cancelTurn stops the reply in flight. The prompt and any partial reply
// leave the thread, since nothing of a cancelled turn is saved.
func (m Model) cancelTurn() (tea.Model, tea.Cmd) {
	m.eng.Cancel()
	m.dropPending()
	if n := len(m.bubbles); n > 0 && m.bubbles[n-1].kind == bubbleUser {
		if m.input.Value() == "" {
			m.input.SetValue(m.bubbles[n-1].text)
		}
		m.bubbles = m.bubbles[:n-1]
	}
	m.streaming = false
	m.seq++
	m.setFocus(FocusInput)
	m.refreshViewport(true)
	return m, m.setStatus("cancelled", false)
}

func (m Model) handleFrame(msg FrameMsg) (tea.Model, tea.Cmd) {
	if msg.Seq != m.seq || !m.streaming {
		return m, nil
	}
	m.showFrame(msg.Frame)
	return m, nil
}

// showFrame replaces the loading bubble, or the partial reply, with f.
func (m *Model) showFrame(f render.Frame) {
	b := bubble{kind: bubbleAI, text: f.Text, frame: f}
	n := len(m.bubbles)
	if n > 0 && (m.bubbles[n-1].kind == bubbleLoading || m.bubbles[n-1].kind == bubbleAI) {
		m.bubbles[n-1] = b
	} else {
		m.bubbles = append(m.bubbles, b)
	}
	m.refreshViewport(true)
}

func (m Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Seq != m.seq {
		return m, nil
	}
	m.streaming = false
	res := msg.Result

	switch {
	case msg.Err != nil:
		// not accepted: drop the optimistic bubbles
		n := len(m.bubbles)
		if n >= 2 {
			m.bubbles = m.bubbles[:n-2]
		}
		m.refreshViewport(true)
		text := msg.Err.Error()
		if errors.Is(msg.Err, session.ErrBusy) {
			text = "a reply is already in progress"
		}
		return m, m.setStatus(text, true)

	case res.Cancelled:
		m.dropPending()
		if n := len(m.bubbles); n > 0 && m.bubbles[n-1].kind == bubbleUser {
			m.bubbles = m.bubbles[:n-1]
		}

	case res.Failed:
		n := len(m.bubbles)
		eb := bubble{kind: bubbleError, text: res.Reply}
		if n > 0 && (m.bubbles[n-1].kind == bubbleLoading || m.bubbles[n-1].kind == bubbleAI) {
			m.bubbles[n-1] = eb
		} else {
			m.bubbles = append(m.bubbles, eb)
		}

	default:
		f := res.Frame
		if f.Text == "" {
			f = m.renderStatic(res.Reply)
		}
		m.showFrame(f)
		m.bubbles[len(m.bubbles)-1].text = res.Reply
		m.reloadTitles()
	}

	m.refreshViewport(true)
	var cmd tea.Cmd
	if res.Err != nil && !res.Failed {
		cmd = m.setStatus("reply shown but not saved: "+res.Err.Error(), true)
	}
	return m, cmd
}

func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Config == nil {
		return m, nil
	}
	m.cfg = msg.Config
	opts := engine.OptionsFromConfig(m.cfg)
	m.displayOpt = opts.Display
	m.eng.SetOptions(opts)
	m.rebuildRenderer(m.wrapWidth())
	m.refreshViewport(false)
	return m, m.setStatus("config reloaded", false)
}

// =============================================================================
// CLIPBOARD
// =============================================================================

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	b, ok := m.lastReply()
	if !ok || b.text == "" {
		return m, m.setStatus("no reply to copy", true)
	}
	if err := copyToClipboard(b.text); err != nil {
		return m, m.setStatus("copy failed: "+err.Error(), true)
	}
	return m, m.setStatus(fmt.Sprintf("copied reply (%s)", formatSize(len(b.text))), false)
}

func (m Model) copyCodeBlock(n int) (tea.Model, tea.Cmd) {
	b, ok := m.lastReply()
	if !ok {
		return m, m.setStatus("no reply to copy from", true)
	}
	blocks := render.CodeBlocks(render.NormalizeFences(b.text))
	if n < 1 || n > len(blocks) {
		return m, m.setStatus(fmt.Sprintf("no code block %d (last reply has %d)", n, len(blocks)), true)
	}
	if err := copyToClipboard(blocks[n-1].Code); err != nil {
		return m, m.setStatus("copy failed: "+err.Error(), true)
	}
	return m, m.setStatus(fmt.Sprintf("copied code block %d", n), false)
}
