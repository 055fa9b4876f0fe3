// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the string key-value store that backs chat history.
//
// Three backends implement Store:
//   - SQLiteStore: a single kv table in a pure Go SQLite database (default)
//   - BuntStore: an embedded buntdb file
//   - MemoryStore: process-local map, used for --ephemeral and tests
//
// Open takes an exclusive lock file next to the database so two hypve
// processes never write the same history concurrently.
package kv
