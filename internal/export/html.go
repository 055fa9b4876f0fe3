// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a chat as a single page with embedded CSS. Replies
// go through the same sanitizing markdown renderer as the chat view and
// code blocks carry chroma classes styled by the configured code style.
type HTMLExporter struct {
	options  *Options
	renderer *render.HTMLRenderer
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, renderer: render.NewHTMLRenderer()}
}

// Export converts a chat to HTML.
func (e *HTMLExporter) Export(chat *Chat) ([]byte, error) {
	if err := chat.validate(); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(chat.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"hypve\">\n")
	sb.WriteString(e.getCSS())
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(chat))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range chat.Messages {
		body, err := e.renderMessage(msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}
	sb.WriteString("        </main>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns ".html".
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns "text/html".
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(chat *Chat) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(chat.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Exported:</strong> %s</span>\n", formatTimestamp(chat.ExportedAt)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(chat.Messages)))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

// renderMessage renders one bubble. Prompts are escaped verbatim; replies
// are rendered as markdown when they look like markdown.
func (e *HTMLExporter) renderMessage(msg history.Message) (string, error) {
	var content string
	switch msg.Role {
	case history.RoleAI:
		out, err := e.renderer.RenderReply(msg.Text)
		if err != nil {
			return "", fmt.Errorf("render reply: %w", err)
		}
		content = out
	default:
		content = render.PlainHTML(render.SanitizeText(msg.Text))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", html.EscapeString(string(msg.Role))))
	sb.WriteString(fmt.Sprintf("                <div class=\"message-header\"><span class=\"role-label\">%s</span></div>\n",
		html.EscapeString(roleLabel(msg.Role))))
	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(content)
	sb.WriteString("\n                </div>\n")
	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

func (e *HTMLExporter) getCSS() string {
	codeCSS, err := render.HighlightCSS(e.options.CodeStyle)
	if err != nil {
		log.Printf("[export] code style %q: %v", e.options.CodeStyle, err)
		codeCSS = ""
	}

	return `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --user-bg: #1f2335;
            --assistant-bg: #24283b;
            --code-bg: #1a1b26;
            --accent-blue: #7aa2f7;
            --accent-green: #9ece6a;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --user-bg: #f6f8fa;
            --assistant-bg: #ffffff;
            --code-bg: #f6f8fa;
            --accent-blue: #0366d6;
            --accent-green: #22863a;
        }

        body {
            font-family: var(--font-sans);
            font-size: 16px;
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
        }

        .container { max-width: 900px; margin: 0 auto; padding: 2rem 1rem; }

        .header { border-bottom: 1px solid var(--border-color); margin-bottom: 2rem; padding-bottom: 1rem; }
        .header h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
        .metadata { color: var(--text-muted); font-size: 0.85rem; display: flex; gap: 1.5rem; }

        .message { border: 1px solid var(--border-color); border-radius: 8px; margin-bottom: 1.25rem; padding: 1rem 1.25rem; }
        .user-message { background: var(--user-bg); border-left: 3px solid var(--accent-blue); }
        .ai-message { background: var(--assistant-bg); border-left: 3px solid var(--accent-green); }
        .role-label { font-weight: 600; font-size: 0.85rem; color: var(--text-muted); }
        .message-header { margin-bottom: 0.5rem; }

        .message-content p { margin: 0.5rem 0; white-space: pre-wrap; }
        .message-content ul, .message-content ol { margin: 0.5rem 0 0.5rem 1.5rem; }
        .message-content table { border-collapse: collapse; margin: 0.75rem 0; }
        .message-content th, .message-content td { border: 1px solid var(--border-color); padding: 0.35rem 0.75rem; }
        .message-content blockquote { border-left: 3px solid var(--border-color); padding-left: 1rem; color: var(--text-muted); }
        .message-content code { font-family: var(--font-mono); font-size: 0.9em; }
        .message-content pre { background: var(--code-bg); border-radius: 6px; overflow-x: auto; padding: 0.75rem 1rem; margin: 0.75rem 0; }
        .message-content hr { border: none; border-top: 1px solid var(--border-color); margin: 1rem 0; }
` + codeCSS + `
    </style>
`
}
