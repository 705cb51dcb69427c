package server

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	"github.com/yuin/goldmark"
)

// TranscriptMarkdown renders a session's dialogue. Assistant turns are fenced
// so their HTML is shown, not interpreted.
func TranscriptMarkdown(sessionID string, turns []harness.DialogueTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sessionID)

	for _, t := range turns {
		switch t.Role {
		case harness.RoleSystem:
			continue
		case harness.RoleUser:
			fmt.Fprintf(&b, "## %d. User\n\n%s\n\n", t.Sequence, quote(t.Content))
		case harness.RoleAssistant:
			fmt.Fprintf(&b, "## %d. Assistant\n\n%s\n", t.Sequence, fence(t.Content))
		}
	}
	return b.String()
}

// RenderTranscript converts transcript markdown into a standalone HTML page.
func RenderTranscript(sessionID, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("failed to render transcript: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Session %s</title></head><body>\n",
		html.EscapeString(sessionID))
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes(), nil
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// fence picks a backtick run longer than any inside content.
func fence(content string) string {
	ticks := "```"
	for strings.Contains(content, ticks) {
		ticks += "`"
	}
	return ticks + "\n" + strings.TrimSpace(content) + "\n" + ticks + "\n"
}
