// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// =============================================================================
// SPINNER ANIMATIONS
// =============================================================================

// SpinnerConfig holds the configuration for a spinner animation.
type SpinnerConfig struct {
	Frames []string
	FPS    int
}

// Duration returns the duration for each frame.
func (s SpinnerConfig) Duration() time.Duration {
	if s.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(s.FPS)
}

// Spinner converts the config to a bubbles spinner.
func (s SpinnerConfig) Spinner() spinner.Spinner {
	return spinner.Spinner{Frames: s.Frames, FPS: s.Duration()}
}

// LoadingSpinner is the pulsing dot of the loading bubble. The dot grows
// and fades so it pulses in place without shifting the line.
var LoadingSpinner = SpinnerConfig{
	Frames: []string{"·", "•", "●", "⬤", "●", "•"},
	FPS:    6,
}

// DotsSpinner is the fallback for terminals without color, which often
// lack the glyphs too.
var DotsSpinner = SpinnerConfig{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    6,
}

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// StatusIndicators are shape cues used next to colored status text.
var StatusIndicators = struct {
	Success string
	Error   string
	Active  string
}{
	Success: "[OK]",
	Error:   "[X]",
	Active:  "[*]",
}
