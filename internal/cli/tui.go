// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/ui/chat"
	"github.com/jeranaias/hypve-tui/internal/ui/styles"
)

// configDebounce coalesces the burst of writes an editor makes on save.
const configDebounce = 300 * time.Millisecond

// programRef hands the running program to goroutines started before it
// existed: the send pipeline and the config watcher.
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) set(p *tea.Program) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
}

// Send forwards msg to the program, dropping it before the program starts.
func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// HandleTUI runs the full-screen chat until the user quits.
func HandleTUI(ctx context.Context, app *App) error {
	if !IsTTY() || !app.TTY {
		return usageError("the TUI needs a terminal; use 'hypve ask' or 'hypve chat' when piping")
	}

	ref := &programRef{}
	model := chat.New(app.Config, app.Session, app.Engine, styles.NewTheme(app.Config.UI.Theme))
	model.SetSender(ref)
	model.SetContext(ctx)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ref.set(p)

	if w := watchConfig(app, ref); w != nil {
		defer w.Close()
	}

	log.Printf("[tui] starting (user=%q server=%s)", app.Session.UserID(), app.Client.BaseURL())
	_, err := p.Run()
	app.Engine.Cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return nil
}

// watchConfig reloads the config file into the running TUI. Global flags
// are applied again so --server and --ephemeral keep their meaning.
func watchConfig(app *App, ref *programRef) *config.Watcher {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return nil
	}
	if err := config.EnsureConfigDir(); err != nil {
		log.Printf("[tui] config watch disabled: %v", err)
		return nil
	}
	w, err := config.Watch(path, configDebounce, func(cfg *config.Config) {
		applyFlags(cfg, app.Flags)
		ref.Send(chat.ConfigReloadedMsg{Config: cfg})
	})
	if err != nil {
		log.Printf("[tui] config watch disabled: %v", err)
		return nil
	}
	return w
}
