// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/hypve-tui/internal/history"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the stored message list as JSON. Messages keep the
// same {role, text} shape used in chat storage so a file can be re-read
// as a history.Record.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonChat struct {
	Title      string         `json:"title"`
	UserID     string         `json:"user_id,omitempty"`
	ExportedAt *time.Time     `json:"exported_at,omitempty"`
	Messages   history.Record `json:"messages"`
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat *Chat) ([]byte, error) {
	if err := chat.validate(); err != nil {
		return nil, err
	}

	out := jsonChat{Title: chat.Title, Messages: chat.Messages}
	if e.options.IncludeMetadata {
		out.UserID = chat.UserID
		at := chat.ExportedAt
		out.ExportedAt = &at
	}
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns "application/json".
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
