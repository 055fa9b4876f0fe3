// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history is the typed key schema for chat history on top of a
// kv.Store.
//
// # Key Layout
//
//	chatTitles_<userId>       JSON array of titles, newest first
//	chat_<userId>_<title>     JSON array of {role, text}
//	guestChatTitles           JSON array of titles
//	guestChatRecords          JSON object title -> array of {role, text}
//	currentUserId             string
//	lastOpenedChat_<userId>   string
//
// Values that fail to decode read as empty so a damaged entry never
// blocks the rest of the history.
package history
