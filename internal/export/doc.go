// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a saved chat to a file.
//
// # Supported Formats
//
//   - Markdown: front matter plus one section per message
//   - JSON: the raw message list with metadata
//   - HTML: a self-contained page with sanitized, highlighted replies
//
// # Usage
//
//	exp, err := export.ForFormat("html", opts)
//	path, err := export.ExportToFile(chat, exp, opts)
package export
