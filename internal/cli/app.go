// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/engine"
	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/kv"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env is the process I/O a command runs against. Tests substitute
// buffers.
type Env struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// TTY marks Out as an interactive terminal.
	TTY bool
}

// StdEnv returns the process standard streams.
func StdEnv() Env {
	return Env{In: os.Stdin, Out: os.Stdout, Err: os.Stderr, TTY: IsStdoutTTY()}
}

// =============================================================================
// APP
// =============================================================================

// App is everything a command needs, wired from the config.
type App struct {
	Env
	Config  *config.Config
	Store   kv.Store
	Session *session.Session
	Client  *backend.Client
	Engine  *engine.Engine
	JSON    bool

	// Flags are the global flags the config was adjusted with.
	Flags Args

	closeLog func()
}

// loadConfig reads the config and applies the global flags.
func loadConfig(args Args, env Env) (*config.Config, error) {
	cfg, err := config.Load()
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(env.Err, "%s %v (using defaults)\n", warnColor.Sprint("Warning:"), err)
	}
	config.SetGlobal(cfg)

	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags lets the global flags override the loaded config.
func applyFlags(cfg *config.Config, args Args) {
	if args.Server != "" {
		cfg.Server.BaseURL = args.Server
	}
	if args.Ephemeral {
		cfg.Storage.Backend = kv.BackendMemory
	}
	if args.Debug {
		cfg.Log.Debug = true
	}
}

// openApp loads config, routes logging, opens the chat store and
// resolves the user. Only commands that talk to the server probe it for
// the signed-in user; the rest work offline.
func openApp(ctx context.Context, cmd Command, args Args, env Env) (*App, error) {
	cfg, err := loadConfig(args, env)
	if err != nil {
		return nil, err
	}

	closeLog, err := setupLogging(cfg, cmd == CmdTUI, env)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		closeLog()
		return nil, err
	}

	client := backend.NewClient(cfg.Server)
	sess := session.New(history.New(store), session.Options{
		TitleMaxRunes:      cfg.Storage.TitleMaxRunes,
		DisambiguateTitles: cfg.Storage.DisambiguateTitles,
	})

	var prober session.Prober
	switch cmd {
	case CmdTUI, CmdAsk, CmdChat, CmdWhoami:
		prober = client
	}
	if err := sess.Start(ctx, prober); err != nil {
		store.Close()
		closeLog()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return &App{
		Env:      env,
		Config:   cfg,
		Store:    store,
		Session:  sess,
		Client:   client,
		Engine:   engine.New(client, sess, nil, engine.OptionsFromConfig(cfg)),
		JSON:     args.JSON,
		Flags:    args,
		closeLog: closeLog,
	}, nil
}

// Close releases the store and its process lock.
func (a *App) Close() error {
	err := a.Store.Close()
	if a.closeLog != nil {
		a.closeLog()
	}
	return err
}

// =============================================================================
// LOGGING
// =============================================================================

// setupLogging routes the standard logger. The TUI owns the terminal, so
// it logs to the configured file; line commands log to stderr only with
// --debug.
func setupLogging(cfg *config.Config, tui bool, env Env) (func(), error) {
	if tui {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := tea.LogToFile(cfg.Log.Path, "hypve")
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		if !cfg.Log.Debug {
			log.SetFlags(log.LstdFlags)
		} else {
			log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		}
		return func() { f.Close() }, nil
	}

	if cfg.Log.Debug {
		log.SetOutput(env.Err)
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	} else {
		log.SetOutput(io.Discard)
	}
	return func() {}, nil
}
