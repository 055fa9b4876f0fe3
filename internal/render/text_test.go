// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"invalid utf8", "a\xffb\xed\xa0\x80c", "abc"},
		{"replacement rune", "a\uFFFDb", "ab"},
		{"emoji kept", "ok 👍🏽 done", "ok 👍🏽 done"},
		{"escape sequences", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"carriage return", "line1\r\nline2\rX", "line1\nline2X"},
		{"tabs and newlines kept", "a\tb\nc", "a\tb\nc"},
		{"nfc", "e\u0301", "\u00e9"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.in))
		})
	}
}

func TestNormalizeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"fence glued to text",
			"Here:```go\nx := 1\n```",
			"Here:\n\n```go\nx := 1\n```",
		},
		{
			"fence after paragraph line",
			"Example\n```py\nprint(1)\n```\ndone",
			"Example\n\n```py\nprint(1)\n```\ndone",
		},
		{
			"already separated",
			"Example\n\n```\ncode\n```",
			"Example\n\n```\ncode\n```",
		},
		{
			"fence at start",
			"```sh\nls\n```",
			"```sh\nls\n```",
		},
		{
			"inline code untouched",
			"use ``` in prose ``` twice",
			"use ``` in prose ``` twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFences(tt.in))
		})
	}
}

func TestCloseFences(t *testing.T) {
	assert.Equal(t, "```go\nx\n```", CloseFences("```go\nx"))
	assert.Equal(t, "```go\nx\n```", CloseFences("```go\nx\n```"))
	assert.Equal(t, "```go\nx\n```", CloseFences("```go\nx\n"))
	assert.Equal(t, "no code", CloseFences("no code"))
}

func TestLooksLikeMarkdown(t *testing.T) {
	yes := []string{
		"```go\nfmt.Println()\n```",
		"# Title",
		"Steps:\n- first\n- second",
		"1. one\n2. two",
		"| a | b |\n|---|---|\n| 1 | 2 |",
		"this is **bold**",
		"this is *emphasis* here",
		"run `go test` now",
		"> quoted",
		"see [docs](https://example.com)",
		"above\n\n---\n\nbelow",
	}
	no := []string{
		"Hello there, how can I help?",
		"2*3*4 = 24",
		"a * b * c",
		"Price is $5.",
		"",
	}

	for _, s := range yes {
		assert.True(t, LooksLikeMarkdown(s), "expected markdown: %q", s)
	}
	for _, s := range no {
		assert.False(t, LooksLikeMarkdown(s), "expected plain: %q", s)
	}
}

func TestCodeBlocks(t *testing.T) {
	text := "Intro\n```go title=main.go\npackage main\n```\ntext\n```\nraw\nlines\n```\n```py\nprint(1)"

	blocks := CodeBlocks(text)
	require.Len(t, blocks, 3)
	assert.Equal(t, CodeBlock{Lang: "go", Code: "package main"}, blocks[0])
	assert.Equal(t, CodeBlock{Lang: "", Code: "raw\nlines"}, blocks[1])
	assert.Equal(t, CodeBlock{Lang: "py", Code: "print(1)"}, blocks[2])

	assert.Empty(t, CodeBlocks("no code here"))
}

func TestHighlight(t *testing.T) {
	out := Highlight("package main\n\nfunc main() {}", "go", "monokai")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "main")

	// Unknown language and style still produce output.
	out = Highlight("just text", "no-such-lang", "no-such-style")
	assert.Contains(t, out, "just")

	blocks := HighlightBlocks([]CodeBlock{{Lang: "go", Code: "x := 1"}}, "")
	require.Len(t, blocks, 1)
	assert.NotEmpty(t, blocks[0].Highlighted)
}
