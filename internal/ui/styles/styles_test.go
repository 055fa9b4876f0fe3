// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME TESTS
// =============================================================================

func TestNewTheme(t *testing.T) {
	for _, name := range []string{"auto", "dark", "light"} {
		theme := NewTheme(name)
		if theme == nil {
			t.Fatalf("NewTheme(%q) returned nil", name)
		}
		if name == "dark" && !theme.IsDark {
			t.Error("dark theme should report IsDark")
		}
		if name == "light" && theme.IsDark {
			t.Error("light theme should not report IsDark")
		}
	}
}

func TestThemeStylesRender(t *testing.T) {
	theme := NewTheme("dark")

	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Sidebar", theme.Sidebar},
		{"SidebarSelected", theme.SidebarSelected},
		{"UserBubble", theme.UserBubble},
		{"AssistantBubble", theme.AssistantBubble},
		{"ErrorBubble", theme.ErrorBubble},
		{"InputContainer", theme.InputContainer},
		{"StatusBar", theme.StatusBar},
	}

	for _, s := range styles {
		if s.style.Render("test") == "" {
			t.Errorf("%s style should render", s.name)
		}
	}
}

func TestLayoutMode(t *testing.T) {
	tests := []struct {
		width   int
		mode    LayoutMode
		sidebar int
	}{
		{40, LayoutNarrow, 0},
		{80, LayoutMedium, 24},
		{140, LayoutWide, 32},
	}

	theme := NewTheme("dark")
	for _, tt := range tests {
		theme.SetSize(tt.width, 40)
		if got := theme.GetLayoutMode(); got != tt.mode {
			t.Errorf("width %d: mode = %v, want %v", tt.width, got, tt.mode)
		}
		if got := theme.SidebarWidth(); got != tt.sidebar {
			t.Errorf("width %d: sidebar = %d, want %d", tt.width, got, tt.sidebar)
		}
	}
}

// =============================================================================
// SPINNER TESTS
// =============================================================================

func TestSpinnerConfigs(t *testing.T) {
	for name, cfg := range map[string]SpinnerConfig{
		"LoadingSpinner": LoadingSpinner,
		"DotsSpinner":    DotsSpinner,
	} {
		if len(cfg.Frames) == 0 {
			t.Errorf("%s should have frames", name)
		}
		sp := cfg.Spinner()
		if sp.FPS != cfg.Duration() {
			t.Errorf("%s: spinner interval = %v, want %v", name, sp.FPS, cfg.Duration())
		}
	}

	if LoadingSpinner.Duration() != time.Second/6 {
		t.Errorf("LoadingSpinner duration = %v", LoadingSpinner.Duration())
	}
	if (SpinnerConfig{}).Duration() != time.Second {
		t.Error("zero FPS should fall back to one frame per second")
	}
}

func TestTheme_SpinnerFollowsProfile(t *testing.T) {
	th := NewTheme("dark")
	th.ColorProfile = termenv.Ascii
	if got := th.Spinner(); got.Frames[0] != DotsSpinner.Frames[0] {
		t.Errorf("ascii profile: got frames %v, want DotsSpinner", got.Frames)
	}
	th.ColorProfile = termenv.TrueColor
	if got := th.Spinner(); got.Frames[0] != LoadingSpinner.Frames[0] {
		t.Errorf("truecolor profile: got frames %v, want LoadingSpinner", got.Frames)
	}
}
