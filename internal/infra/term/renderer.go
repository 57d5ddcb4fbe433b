// Package term renders the chat session on a plain terminal. Incoming
// lines are printed over the prompt with a carriage return and the
// prompt is redrawn, so the viewer can keep typing while messages land.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"marketchat/internal/domain/chat"
)

// Renderer serializes writes to the terminal.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewRenderer wraps the given writer, usually os.Stdout.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Prompt draws the input prompt.
func (r *Renderer) Prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, "> ")
}

// Line prints one line over the current prompt and redraws it.
func (r *Renderer) Line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r"+format+"\n> ", args...)
}

// Notice prints a bracketed status line.
func (r *Renderer) Notice(format string, args ...any) {
	r.Line("[*] "+format, args...)
}

// MessageLine formats one message for display.
func MessageLine(m chat.Message, localUser string) string {
	var b strings.Builder
	b.WriteString(m.CreatedAt.Format("15:04:05"))
	b.WriteString(" ")
	switch {
	case m.SenderID == localUser:
		b.WriteString("[me")
		switch m.Status {
		case chat.StatusPending:
			b.WriteString(" …")
		case chat.StatusFailed:
			b.WriteString(" !failed")
		default:
			if m.Read {
				b.WriteString(" ✓✓")
			}
		}
		b.WriteString("]")
	case m.SenderID == "":
		b.WriteString("[unknown]")
	default:
		b.WriteString("[" + m.SenderID + "]")
	}
	if m.Text != "" {
		b.WriteString(" " + m.Text)
	}
	for _, a := range m.Attachments {
		b.WriteString(fmt.Sprintf(" <%s>", a.Name))
	}
	return b.String()
}

// SummaryLine formats one conversation for the sidebar listing.
func SummaryLine(s chat.Summary) string {
	line := s.ID
	if s.Listing.Title != "" {
		line += " · " + s.Listing.Title
	}
	if s.LastMessage != "" {
		preview := s.LastMessage
		if len(preview) > 40 {
			preview = preview[:40] + "…"
		}
		line += " — " + preview
	}
	if s.UnreadCount > 0 {
		line += fmt.Sprintf(" (%d unread)", s.UnreadCount)
	}
	return line
}

// ReadLines feeds trimmed input lines to onLine until EOF or context
// end. Blank lines only redraw the prompt.
func ReadLines(ctx context.Context, in io.Reader, r *Renderer, onLine func(string)) error {
	scanner := bufio.NewScanner(in)
	r.Prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			r.Prompt()
			continue
		}
		onLine(line)
		r.Prompt()
	}
	return scanner.Err()
}
