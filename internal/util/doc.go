// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across hypve.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation for sidebars and tables
//   - SingleLine: collapse line breaks for titles and previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - HomeDir: the hypve data directory (~/.hypve or $HYPVE_HOME)
//
// # Usage
//
//	title := util.TruncateRunes(prompt, 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
