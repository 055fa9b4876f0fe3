// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// SANITIZING
// =============================================================================

// SanitizeText drops invalid UTF-8, replacement runes and control
// characters other than newline and tab, then NFC-normalizes. Emoji and
// other valid code points are kept. Carriage returns are removed so the
// terminal cannot be rewritten in place.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "")

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			sb.WriteRune(r)
		case r == utf8.RuneError:
		case unicode.IsControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return norm.NFC.String(sb.String())
}

// =============================================================================
// FENCES
// =============================================================================

const fence = "```"

// isFenceLine reports whether line opens or closes a fenced block.
func isFenceLine(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	return len(line)-len(trimmed) <= 3 && strings.HasPrefix(trimmed, fence)
}

// NormalizeFences puts every fence on its own line and makes sure an
// opening fence is preceded by a blank line. Replies often glue a fence
// to the end of a sentence, which would otherwise render as inline code.
func NormalizeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)
	inCode := false

	for _, line := range lines {
		if !inCode && !isFenceLine(line) {
			if idx := strings.Index(line, fence); idx > 0 && strings.Count(line, fence) == 1 {
				out = append(out, line[:idx])
				line = line[idx:]
			}
		}

		if isFenceLine(line) {
			if !inCode && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
				out = append(out, "")
			}
			inCode = !inCode
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// CloseFences appends a closing fence when s ends inside a code block.
func CloseFences(s string) string {
	if !openFence(s) {
		return s
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + fence
}

func openFence(s string) bool {
	open := false
	for _, line := range strings.Split(s, "\n") {
		if isFenceLine(line) {
			open = !open
		}
	}
	return open
}

// =============================================================================
// MARKDOWN DETECTION
// =============================================================================

var markdownPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?m)^ {0,3}```"),                                        // code fence
	regexp.MustCompile(`(?m)^#{1,6}\s+\S`),                                      // heading
	regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+\S`),                          // list item
	regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`), // table separator
	regexp.MustCompile(`\*\*[^*\n]+\*\*|__[^_\n]+__`),                           // strong
	regexp.MustCompile(`(^|[^*\w])\*[^*\s][^*\n]*\*([^*\w]|$)`),                 // emphasis
	regexp.MustCompile("`[^`\n]+`"),                                             // inline code
	regexp.MustCompile(`(?m)^>\s?\S`),                                           // block quote
	regexp.MustCompile(`\[[^\]\n]+\]\([^)\s]+\)`),                               // link
	regexp.MustCompile(`(?m)^\s*(-{3,}|\*{3,}|_{3,})\s*$`),                      // horizontal rule
}

// LooksLikeMarkdown guesses whether s uses markdown syntax.
func LooksLikeMarkdown(s string) bool {
	for _, re := range markdownPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// =============================================================================
// CODE BLOCKS
// =============================================================================

// CodeBlock is one fenced block of a reply.
type CodeBlock struct {
	Lang        string
	Code        string
	Highlighted string // chroma output, empty until highlighted
}

// CodeBlocks extracts fenced blocks in order. An unterminated block at the
// end is included.
func CodeBlocks(s string) []CodeBlock {
	var blocks []CodeBlock
	var code []string
	var lang string
	inCode := false

	for _, line := range strings.Split(s, "\n") {
		if isFenceLine(line) {
			if inCode {
				blocks = append(blocks, CodeBlock{Lang: lang, Code: strings.Join(code, "\n")})
				code, lang = nil, ""
				inCode = false
			} else {
				lang = strings.TrimSpace(strings.TrimPrefix(strings.TrimLeft(line, " "), fence))
				if i := strings.IndexAny(lang, " \t{"); i >= 0 {
					lang = lang[:i]
				}
				inCode = true
			}
			continue
		}
		if inCode {
			code = append(code, line)
		}
	}
	if inCode && len(code) > 0 {
		blocks = append(blocks, CodeBlock{Lang: lang, Code: strings.Join(code, "\n")})
	}
	return blocks
}
