// ABOUTME: Terminal rendering of projected entity state
// ABOUTME: Prints each settled message once and each status change as it happens

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
)

// printer writes incremental updates. Callbacks arrive from the connection
// reader goroutine, so every write is serialized.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
	status  map[string]string
	conn    string
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:       w,
		printed: make(map[string]bool),
		status:  make(map[string]string),
	}
}

// entity prints whatever in state has not been printed yet. Pending
// messages are skipped; the hub's copy is printed when it arrives.
func (p *printer) entity(state projector.EntityState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range state.Messages {
		if m.Pending || p.printed[m.ID] {
			continue
		}
		p.printed[m.ID] = true
		fmt.Fprintln(p.w, formatMessage(state.EntityID, m))
	}

	line := formatStatus(state)
	if line != "" && p.status[state.EntityID] != line {
		p.status[state.EntityID] = line
		fmt.Fprintln(p.w, line)
	}
}

func (p *printer) connection(s eventbus.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := s.String()
	if text == p.conn {
		return
	}
	p.conn = text

	c := color.New(color.FgHiBlack)
	switch {
	case s.Connected:
		c = color.New(color.FgGreen)
	case s.Exhausted:
		c = color.New(color.FgRed, color.Bold)
	case s.RetryIn > 0:
		c = color.New(color.FgYellow)
	}
	c.Fprintf(p.w, "── %s: %s\n", s.GroupKey, text)
}

func (p *printer) note(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	color.New(color.FgHiBlack).Fprintf(p.w, format+"\n", args...)
}

func formatMessage(entityID string, m projector.Message) string {
	prefix := color.HiBlackString("%s ", m.Timestamp.Local().Format("15:04:05")) +
		color.New(color.Faint).Sprintf("[%s] ", entityID)

	switch m.Kind {
	case projector.KindUser:
		return prefix + color.GreenString("user> ") + m.Content
	case projector.KindSystem:
		return prefix + color.MagentaString("system> ") + m.Content
	case projector.KindAssistant:
		return prefix + color.CyanString("assistant> ") + m.Content
	case projector.KindToolCalls:
		return prefix + color.YellowString("tool calls> ") + compactJSON(m.ToolCalls)
	case projector.KindToolResult:
		return prefix + color.YellowString("tool %s> ", orDash(m.ToolName)) + m.Content
	case projector.KindToolError:
		return prefix + color.New(color.FgRed, color.Bold).Sprintf("tool %s failed> ", orDash(m.ToolName)) + m.Content
	default:
		return prefix + string(m.Kind) + "> " + m.Content
	}
}

func formatStatus(s projector.EntityState) string {
	if s.Status == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(color.New(color.Faint).Sprintf("[%s] ", s.EntityID))

	switch s.Status {
	case projector.StatusRunning:
		b.WriteString(color.CyanString("● running"))
		if s.Step > 0 {
			fmt.Fprintf(&b, " step %d", s.Step)
		}
	case projector.StatusPaused:
		b.WriteString(color.YellowString("❚❚ paused"))
	case projector.StatusCompleted:
		b.WriteString(color.GreenString("✓ completed"))
	case projector.StatusCanceled:
		b.WriteString(color.HiBlackString("✗ canceled"))
	case projector.StatusError:
		b.WriteString(color.New(color.FgRed, color.Bold).Sprint("✗ error"))
	default:
		b.WriteString(string(s.Status))
	}
	if s.Reason != "" {
		b.WriteString(": " + s.Reason)
	}
	if len(s.Children) > 0 {
		b.WriteString(color.HiBlackString(" (children: %s)", strings.Join(s.Children, ", ")))
	}
	return b.String()
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
