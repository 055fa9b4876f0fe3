// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/session"
	"github.com/jeranaias/hypve-tui/internal/ui/styles"
)

// =============================================================================
// STATE
// =============================================================================

// statusTTL is how long a status note stays up.
const statusTTL = 4 * time.Second

// Focus is the pane receiving keys.
type Focus int

const (
	FocusInput Focus = iota
	FocusSidebar
)

type bubbleKind int

const (
	bubbleUser bubbleKind = iota
	bubbleAI
	bubbleError
	bubbleLoading
)

// bubble is one entry of the thread.
type bubble struct {
	kind  bubbleKind
	text  string
	frame render.Frame
}

// Sender delivers messages into a running program; *tea.Program
// satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	cfg    *config.Config
	theme  *styles.Theme
	keys   KeyMap
	sess   *session.Session
	eng    *engine.Engine
	sender Sender
	ctx    context.Context

	renderer   render.Renderer
	displayOpt render.Options

	// Dimensions
	width  int
	height int

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Sidebar
	showSidebar bool
	focus       Focus
	titles      []string
	selected    int

	// Thread
	bubbles   []bubble
	streaming bool
	seq       int

	// pendingDelete is the title awaiting y/n
	pendingDelete string

	// Status line
	status      string
	statusError bool
	statusID    int
}

// New creates the chat model. Call SetSender with the program before
// running it so streamed frames reach the view.
func New(cfg *config.Config, sess *session.Session, eng *engine.Engine, theme *styles.Theme) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = theme.Spinner().Spinner()
	sp.Style = theme.Loading

	m := Model{
		cfg:         cfg,
		theme:       theme,
		keys:        DefaultKeyMap(),
		sess:        sess,
		eng:         eng,
		ctx:         context.Background(),
		displayOpt:  engine.OptionsFromConfig(cfg).Display,
		viewport:    viewport.New(80, 20),
		input:       ta,
		spinner:     sp,
		showSidebar: cfg.UI.ShowSidebar,
	}
	m.rebuildRenderer(m.cfg.Render.WordWrap)
	m.reloadTitles()
	return m
}

// SetSender wires the program that receives streamed frames.
func (m *Model) SetSender(s Sender) {
	m.sender = s
}

// SetContext sets the parent context of every send.
func (m *Model) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// Init resumes the last opened chat, if any.
func (m Model) Init() tea.Cmd {
	sess := m.sess
	return tea.Batch(textarea.Blink, func() tea.Msg {
		if title, rec, ok := sess.Resume(); ok {
			return resumeMsg{title: title, record: rec}
		}
		return nil
	})
}

type resumeMsg struct {
	title  string
	record history.Record
}

// =============================================================================
// HELPERS
// =============================================================================

// reloadTitles refreshes the sidebar from the session, keeping the
// selection on the open chat.
func (m *Model) reloadTitles() {
	titles, err := m.sess.Titles()
	if err != nil {
		log.Printf("[ui] failed to load chat titles: %v", err)
		m.setStatus("could not load chats: "+err.Error(), true)
		return
	}
	m.titles = titles
	if cur := m.sess.Current(); cur != "" {
		for i, t := range titles {
			if t == cur {
				m.selected = i
				return
			}
		}
	}
	if m.selected >= len(m.titles) {
		m.selected = len(m.titles) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// rebuildRenderer creates the markdown renderer for width columns and
// hands it to the engine. Without markdown the display is plain text.
func (m *Model) rebuildRenderer(width int) {
	var r render.Renderer
	if m.cfg.Render.Markdown {
		tr, err := render.NewTermRenderer(m.cfg.UI.Theme, m.cfg.Render.CodeStyle, width)
		if err != nil {
			log.Printf("[ui] markdown renderer unavailable, using plain text: %v", err)
		} else {
			r = tr
		}
	}
	m.renderer = r
	if m.eng != nil {
		m.eng.SetRenderer(r)
	}
}

// loadRecord replaces the thread with a saved chat.
func (m *Model) loadRecord(rec history.Record) {
	m.bubbles = m.bubbles[:0]
	for _, msg := range rec {
		switch msg.Role {
		case history.RoleUser:
			m.bubbles = append(m.bubbles, bubble{kind: bubbleUser, text: msg.Text})
		default:
			m.bubbles = append(m.bubbles, bubble{kind: bubbleAI, text: msg.Text, frame: m.renderStatic(msg.Text)})
		}
	}
	m.refreshViewport(true)
}

// renderStatic renders a stored reply in one pass.
func (m *Model) renderStatic(text string) render.Frame {
	d := render.NewDisplay(m.renderer, m.displayOpt)
	d.Append(text)
	return d.Finish()
}

// lastReply returns the newest AI bubble, if any.
func (m *Model) lastReply() (bubble, bool) {
	for i := len(m.bubbles) - 1; i >= 0; i-- {
		if m.bubbles[i].kind == bubbleAI {
			return m.bubbles[i], true
		}
	}
	return bubble{}, false
}

// dropPending removes the loading bubble or partial reply of the turn
// in flight. The turn's prompt bubble always precedes it.
func (m *Model) dropPending() {
	n := len(m.bubbles)
	if n < 2 || m.bubbles[n-2].kind != bubbleUser {
		return
	}
	switch m.bubbles[n-1].kind {
	case bubbleLoading, bubbleAI:
		m.bubbles = m.bubbles[:n-1]
	}
}

func (m *Model) setStatus(text string, isError bool) tea.Cmd {
	m.statusID++
	m.status, m.statusError = text, isError
	id := m.statusID
	return tea.Tick(statusTTL, func(_ time.Time) tea.Msg { return clearStatusMsg{id: id} })
}

// IsStreaming reports whether a reply is in flight.
func (m Model) IsStreaming() bool { return m.streaming }

// Titles returns the sidebar titles.
func (m Model) Titles() []string { return m.titles }
