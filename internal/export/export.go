// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

var (
	// ErrEmptyChat is returned for a chat with no messages.
	ErrEmptyChat = errors.New("chat has no messages")

	// ErrUnknownFormat is returned by ForFormat.
	ErrUnknownFormat = errors.New("unknown export format")
)

// Chat is one saved chat ready for export.
type Chat struct {
	Title string
	// UserID is empty for guest history.
	UserID     string
	Messages   history.Record
	ExportedAt time.Time
}

// NewChat builds a Chat stamped with the current time.
func NewChat(title, userID string, messages history.Record) *Chat {
	return &Chat{Title: title, UserID: userID, Messages: messages, ExportedAt: time.Now()}
}

func (c *Chat) validate() error {
	if c == nil {
		return errors.New("chat is nil")
	}
	if len(c.Messages) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyChat, c.Title)
	}
	return nil
}

// Exporter converts a chat to one file format.
type Exporter interface {
	// Export returns the file contents.
	Export(chat *Chat) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata adds the title/date header.
	IncludeMetadata bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// CodeStyle is the chroma style for HTML code blocks.
	CodeStyle string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
		Theme:           "dark",
		CodeStyle:       render.DefaultCodeStyle,
	}
}

// Formats lists the names accepted by ForFormat.
func Formats() []string {
	return []string{"md", "json", "html"}
}

// ForFormat returns the exporter for md, markdown, json or html.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports chat with exporter and returns the written path.
func ExportToFile(chat *Chat, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(chat)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(chat.Title),
		chat.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// the file is written; failing to open it is not an export error
			log.Printf("[export] could not open %s: %v", outputPath, err)
		}
	}

	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSuffix(s, "..."), 50)
	s = strings.TrimSuffix(s, "...")

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "chat"
	}
	return out
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func roleLabel(role history.Role) string {
	switch role {
	case history.RoleUser:
		return "You"
	case history.RoleAI:
		return "Assistant"
	default:
		return string(role)
	}
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
