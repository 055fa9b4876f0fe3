// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/render"
)

// =============================================================================
// TURN MESSAGES
// =============================================================================

// FrameMsg carries one display frame of the reply in flight.
type FrameMsg struct {
	Seq   int
	Frame render.Frame
}

// TurnDoneMsg ends a send. Err is set when the turn was never accepted.
type TurnDoneMsg struct {
	Seq    int
	Result engine.Result
	Err    error
}

// =============================================================================
// STATUS MESSAGES
// =============================================================================

// StatusMsg shows a transient note in the status line.
type StatusMsg struct {
	Text  string
	Error bool
}

// clearStatusMsg clears the status note if it is still id.
type clearStatusMsg struct {
	id int
}

// ConfigReloadedMsg is sent when the config file changes on disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}
