// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a chat session to Markdown, JSON, or HTML for
// sharing outside the app.
package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/morganforge/nanochat/internal/model"
	"github.com/morganforge/nanochat/internal/util"
)

// Format selects the export output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatHTML:
		return ".html"
	default:
		return ".md"
	}
}

// Transcript bundles a session with its full message history for export.
type Transcript struct {
	Session  *model.Session   `json:"session"`
	Messages []*model.Message `json:"messages"`
}

// Render produces the transcript in the given format.
func (t *Transcript) Render(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatHTML:
		return []byte(t.renderHTML()), nil
	case FormatMarkdown:
		return []byte(t.renderMarkdown()), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// WriteFile renders the transcript and writes it atomically.
func (t *Transcript) WriteFile(path string, format Format) error {
	data, err := t.Render(format)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0644)
}

func (t *Transcript) renderMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + t.Session.Title + "\n\n")
	sb.WriteString("Model: " + t.Session.Model + "\n\n")
	sb.WriteString("Created: " + t.Session.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range t.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.CreatedAt.Format("2006-01-02 15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

func (t *Transcript) renderHTML() string {
	var sb strings.Builder
	title := html.EscapeString(t.Session.Title)

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>" + title + "</title>\n")
	sb.WriteString("<style>\n")
	sb.WriteString("body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }\n")
	sb.WriteString(".msg { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; white-space: pre-wrap; }\n")
	sb.WriteString(".user { background: #e8f0fe; }\n")
	sb.WriteString(".assistant { background: #f1f3f4; }\n")
	sb.WriteString(".system { background: #fef7e0; font-style: italic; }\n")
	sb.WriteString(".role { font-weight: bold; margin-bottom: 0.25rem; }\n")
	sb.WriteString("</style>\n</head>\n<body>\n")
	sb.WriteString("<h1>" + title + "</h1>\n")
	sb.WriteString("<p>Model: " + html.EscapeString(t.Session.Model) + " &middot; Created: " +
		t.Session.CreatedAt.Format("2006-01-02 15:04") + "</p>\n")

	for _, msg := range t.Messages {
		cls := msg.Role.String()
		sb.WriteString("<div class=\"msg " + cls + "\">\n")
		sb.WriteString("<div class=\"role\">" + html.EscapeString(msg.Role.DisplayName()) + "</div>\n")
		sb.WriteString(html.EscapeString(msg.Content) + "\n")
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
