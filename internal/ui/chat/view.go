// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/ui/styles"
	"github.com/jeranaias/hypve-tui/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	inputHeight  = 3
	statusHeight = 1
)

func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.theme.SidebarWidth() > 0
}

// mainWidth is the width of the thread and input column.
func (m Model) mainWidth() int {
	w := m.width
	if m.sidebarVisible() {
		w -= m.theme.SidebarWidth()
	}
	if w < 10 {
		w = 10
	}
	return w
}

// wrapWidth is the markdown wrap width for replies.
func (m Model) wrapWidth() int {
	wrap := m.mainWidth() - 4
	if w := m.cfg.Render.WordWrap; w > 0 && w < wrap {
		wrap = w
	}
	if wrap < 20 {
		wrap = 20
	}
	return wrap
}

// layout sizes the components after a resize or sidebar toggle.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	mw := m.mainWidth()
	m.input.SetWidth(mw - 1)

	vh := m.height - inputHeight - 1 - statusHeight
	if vh < 3 {
		vh = 3
	}
	m.viewport.Width = mw
	m.viewport.Height = vh
}

// refreshViewport re-renders the thread into the viewport.
func (m *Model) refreshViewport(gotoBottom bool) {
	m.viewport.SetContent(m.renderThread())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	inputStyle := m.theme.InputContainer
	if m.focus == FocusInput {
		inputStyle = m.theme.InputFocused
	}
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		inputStyle.Render(m.input.View()),
	)

	body := main
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus())
}

// =============================================================================
// THREAD
// =============================================================================

func (m Model) renderThread() string {
	if len(m.bubbles) == 0 {
		return m.renderWelcome()
	}

	width := m.mainWidth()
	lastAI := -1
	for i, b := range m.bubbles {
		if b.kind == bubbleAI {
			lastAI = i
		}
	}

	var sb strings.Builder
	for i, b := range m.bubbles {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch b.kind {
		case bubbleUser:
			style := m.theme.UserBubble.MaxWidth(width)
			sb.WriteString(style.Width(bubbleWidth(b.text, width-8)).Render(b.text))
		case bubbleAI:
			sb.WriteString(m.theme.AssistantBubble.MaxWidth(width).Render(b.frame.View()))
			if i == lastAI && !m.streaming {
				if hint := m.codeHint(b.frame); hint != "" {
					sb.WriteString("\n" + hint)
				}
			}
		case bubbleError:
			sb.WriteString(m.theme.ErrorBubble.MaxWidth(width).Render(b.text))
		case bubbleLoading:
			sb.WriteString(m.theme.Loading.Render(m.spinner.View()))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// bubbleWidth shrinks short prompts so the bubble hugs its text.
func bubbleWidth(text string, max int) int {
	w := 0
	for _, line := range strings.Split(text, "\n") {
		if lw := lipgloss.Width(line); lw > w {
			w = lw
		}
	}
	w += 2 // padding
	if w > max {
		return max
	}
	return w
}

// codeHint lists the code blocks of the last reply for /copy.
func (m Model) codeHint(f render.Frame) string {
	blocks := f.CodeBlocks
	if len(blocks) == 0 {
		blocks = render.CodeBlocks(render.NormalizeFences(f.Text))
	}
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		lang := b.Lang
		if lang == "" {
			lang = "text"
		}
		parts[i] = fmt.Sprintf("%d %s", i+1, lang)
	}
	return m.theme.CodeIndex.Render("code: " + strings.Join(parts, " · ") + "  (/copy N)")
}

func (m Model) renderWelcome() string {
	who := "guest"
	if email := m.sess.Email(); email != "" {
		who = email
	} else if !m.sess.IsGuest() {
		who = m.sess.UserID()
	}
	lines := []string{
		"",
		"New chat",
		"",
		"Enter sends, Alt+Enter adds a line.",
		"Signed in as " + who,
	}
	return m.theme.Welcome.Width(m.mainWidth()).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	outer := m.theme.SidebarWidth()
	inner := outer - 4 // border + padding
	height := m.height - statusHeight - 2

	style := m.theme.Sidebar
	if m.focus == FocusSidebar {
		style = m.theme.SidebarFocused
	}

	lines := []string{m.theme.SidebarTitle.Render("Chats")}
	if len(m.titles) == 0 {
		lines = append(lines, m.theme.SidebarEmpty.Render("no chats yet"))
	}

	// keep the selection in view
	maxItems := height - 6
	if maxItems < 1 {
		maxItems = 1
	}
	start := 0
	if m.selected >= maxItems {
		start = m.selected - maxItems + 1
	}
	end := start + maxItems
	if end > len(m.titles) {
		end = len(m.titles)
	}

	current := m.sess.Current()
	for i := start; i < end; i++ {
		title := m.titles[i]
		label := util.PadWidth(util.TruncateWidth(title, inner), inner)
		switch {
		case i == m.selected && m.focus == FocusSidebar:
			label = m.theme.SidebarSelected.Render(label)
		case title == current:
			label = m.theme.SidebarCurrent.Render(label)
		default:
			label = m.theme.SidebarItem.Render(label)
		}
		lines = append(lines, label)
	}

	if m.pendingDelete != "" {
		lines = append(lines, "", m.theme.Confirm.Render(
			util.TruncateWidth(fmt.Sprintf("Delete %q? y/n", m.pendingDelete), inner)))
	}

	return style.Width(inner + 2).Height(height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// STATUS LINE
// =============================================================================

func (m Model) renderStatus() string {
	var left string
	switch {
	case m.status != "" && m.statusError:
		left = m.theme.ErrorText.Render(styles.StatusIndicators.Error + " " + m.status)
	case m.status != "":
		left = m.theme.Notice.Render(styles.StatusIndicators.Success + " " + m.status)
	case m.streaming:
		left = styles.StatusIndicators.Active + " replying..."
	case m.sess.Current() != "":
		left = m.sess.Current()
	default:
		left = "new chat"
	}

	bindings := m.keys.ShortHelp()
	switch {
	case m.streaming:
		bindings = m.keys.StreamingHelp()
	case m.focus == FocusSidebar:
		bindings = m.keys.SidebarHelp()
	}
	help := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help = append(help, m.theme.ShortcutKey.Render(b.Help().Key)+" "+m.theme.ShortcutDesc.Render(b.Help().Desc))
	}
	right := strings.Join(help, "  ")

	width := m.width
	if width <= 0 {
		return left + "  " + right
	}
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = 1
	}
	return m.theme.StatusBar.Width(width).MaxWidth(width).Render(left + strings.Repeat(" ", gap) + right)
}
