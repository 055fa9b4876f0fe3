// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the Bubble Tea chat screen: a sidebar of saved chats,
// the open thread and the prompt input.
//
// # Layout
//
//	+-----------+----------------------------------+
//	| Chats     |  thread (viewport)               |
//	| > title   |                                  |
//	|   title   |----------------------------------|
//	|           |  input (textarea)                |
//	+-----------+----------------------------------+
//	 status line
//
// # Streaming
//
// A send runs engine.Send inside a tea.Cmd. Frames produced while the
// reply arrives are delivered with tea.Program.Send as FrameMsg values
// tagged with the turn sequence number, so frames of a cancelled turn
// are dropped.
//
// # Key Bindings
//
//	Enter       send / open selected chat
//	Alt+Enter   newline
//	Esc, C-c    cancel the reply in flight
//	C-n         new chat
//	C-b         toggle sidebar
//	Tab         switch focus between sidebar and input
//	d           delete selected chat
//	C-r         regenerate last reply
//	C-y         copy last reply
//	/copy N     copy code block N of the last reply
//	C-q         quit
package chat
