// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the client state of one hypve window: who the
// user is, which chat is open and whether a reply is in flight.
//
// # Key Types
//
//   - Session: the state object, safe for concurrent use
//   - Turn: one prompt/reply exchange, cancellable from any goroutine
//
// # Lifecycle
//
//	s := session.New(schema, session.Options{TitleMaxRunes: 30})
//	s.Start(ctx, client)             // resolve user or fall back to guest
//	turn, err := s.BeginSend(ctx, prompt)
//	reply, err := client.Generate(turn.Context(), turn.Prompt)
//	if err != nil {
//	    bubble := s.FailTurn(turn, err)
//	} else {
//	    title, err := s.CompleteTurn(turn, reply)
//	}
//
// Only one Turn may be in flight. A cancelled Turn is never persisted.
package session
