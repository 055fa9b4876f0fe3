// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine is the send pipeline shared by the TUI and the REPL.
//
// Send starts a session turn, asks the backend for a reply, drives a
// render.Display while it arrives and hands every frame to an Observer.
// When the reply is complete the exchange is persisted through the
// session; a failure shows the busy message and persists nothing.
//
//	eng := engine.New(client, sess, renderer, engine.OptionsFromConfig(cfg))
//	res, err := eng.Send(ctx, "hello", engine.ObserverFuncs{
//	    Frame: func(f render.Frame) { fmt.Print(f.View()) },
//	})
//
// Cancel may be called from any goroutine.
package engine
