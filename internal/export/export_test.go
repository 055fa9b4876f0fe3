// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/hypve-tui/internal/history"
)

func sampleChat() *Chat {
	return &Chat{
		Title:  "How do I reverse a slice...",
		UserID: "42",
		Messages: history.Record{
			{Role: history.RoleUser, Text: "How do I reverse a slice in Go?"},
			{Role: history.RoleAI, Text: "Use `slices.Reverse`:\n\n```go\nslices.Reverse(s)\n```"},
		},
		ExportedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{
		"md": ".md", "markdown": ".md", "json": ".json", "HTML": ".html", ".htm": ".html",
	} {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, exp.FileExtension(), format)
	}

	_, err := ForFormat("pdf", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestEmptyChatRejected(t *testing.T) {
	for _, format := range Formats() {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exp.Export(&Chat{Title: "empty"})
		assert.ErrorIs(t, err, ErrEmptyChat, format)
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleChat())
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "---\ntitle: How do I reverse a slice...\n"))
	assert.Contains(t, s, "messages: 2\n")
	assert.Contains(t, s, "## You\n\nHow do I reverse a slice in Go?\n")
	assert.Contains(t, s, "## Assistant\n\nUse `slices.Reverse`:")
	assert.Contains(t, s, "```go\nslices.Reverse(s)\n```")
}

func TestMarkdownExport_ClosesFences(t *testing.T) {
	chat := sampleChat()
	chat.Messages[1].Text = "```python\nprint('cut off')"

	out, err := NewMarkdownExporter(nil).Export(chat)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(out), "```"))
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: b"`, escapeYAML("a: b"))
	assert.Equal(t, `"line\nbreak"`, escapeYAML("line\nbreak"))
	assert.Equal(t, `"back\\slash"`, escapeYAML(`back\slash`))
}

func TestJSONExport(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleChat())
	require.NoError(t, err)

	var got struct {
		Title      string         `json:"title"`
		UserID     string         `json:"user_id"`
		ExportedAt time.Time      `json:"exported_at"`
		Messages   history.Record `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "How do I reverse a slice...", got.Title)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, sampleChat().Messages, got.Messages)
	assert.Contains(t, string(out), `"role": "ai"`)

	bare, err := NewJSONExporter(&Options{}).Export(sampleChat())
	require.NoError(t, err)
	assert.NotContains(t, string(bare), "exported_at")
	assert.NotContains(t, string(bare), "user_id")
}

func TestHTMLExport(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(sampleChat())
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "<!DOCTYPE html>"))
	assert.Contains(t, s, `<body class="dark-theme">`)
	assert.Contains(t, s, `class="message user-message"`)
	assert.Contains(t, s, `class="message ai-message"`)
	assert.Contains(t, s, `class="chroma"`)
	assert.Contains(t, s, ".chroma")
	assert.Contains(t, s, "<code>slices.Reverse</code>")
}

func TestHTMLExport_Sanitizes(t *testing.T) {
	chat := sampleChat()
	chat.Title = `<img src=x onerror=alert(1)>`
	chat.Messages = history.Record{
		{Role: history.RoleUser, Text: "<script>alert('prompt')</script>"},
		{Role: history.RoleAI, Text: "# Title\n\n<script>alert('reply')</script>\n\n[x](javascript:alert(1))"},
	}

	out, err := NewHTMLExporter(&Options{Theme: "light"}).Export(chat)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<body class="light-theme">`)
	assert.NotContains(t, s, "<script>")
	assert.NotContains(t, s, "<img src=x")
	assert.NotContains(t, s, "javascript:")
	assert.Contains(t, s, "&lt;script&gt;alert(&#39;prompt&#39;)&lt;/script&gt;")
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.OutputDir = filepath.Join(dir, "out")

	path, err := ExportToFile(sampleChat(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "chat_How_do_I_reverse_a_slice_20250301_123000.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Assistant")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"a/b\\c:d", "a-b-c-d"},
		{"with spaces\tand\nbreaks", "with_spaces_and_breaks"},
		{"...", "chat"},
		{"", "chat"},
		{strings.Repeat("x", 80), strings.Repeat("x", 47)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
