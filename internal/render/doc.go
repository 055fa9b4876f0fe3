// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns raw model replies into displayable output.
//
// # Pipeline
//
//	raw text -> SanitizeText -> LooksLikeMarkdown?
//	    yes: NormalizeFences -> Renderer (glamour for the terminal,
//	         goldmark + bluemonday for HTML) -> code block highlighting
//	    no:  plain text
//
// Display applies the pipeline incrementally while a reply arrives, either
// from a stream (StreamBuffer batches tokens) or from the Typewriter, which
// reveals a complete reply at a fixed pace.
package render
