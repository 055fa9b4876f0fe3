// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"sync"

	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// IN-FLIGHT CANCELLATION
// =============================================================================

// inflight tracks the turn and display being driven so that Cancel can
// reach them from another goroutine.
type inflight struct {
	mu      sync.Mutex
	turn    *session.Turn
	display *render.Display
}

func (f *inflight) set(t *session.Turn, d *render.Display) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turn, f.display = t, d
}

// cancel stops the in-flight turn, if any. Safe to call repeatedly.
func (f *inflight) cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turn == nil {
		return false
	}
	f.display.Cancel()
	f.turn.Cancel()
	f.turn, f.display = nil, nil
	return true
}

// clear forgets t once it has finished.
func (f *inflight) clear(t *session.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turn == t {
		f.turn, f.display = nil, nil
	}
}
