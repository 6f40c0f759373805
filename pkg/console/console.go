// Package console prints the running scene transcript to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-commander/pkg/turn"
)

// Printer renders turn events. Colors are dropped when w is not a terminal.
type Printer struct {
	mu sync.Mutex
	w  io.Writer

	name    lipgloss.Style
	prompt  lipgloss.Style
	reply   lipgloss.Style
	notice  lipgloss.Style
	failure lipgloss.Style
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		name:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#01cdfe")),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
		reply:   r.NewStyle().Foreground(lipgloss.Color("#05ffa1")),
		notice:  r.NewStyle().Foreground(lipgloss.Color("#f5d547")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff71ce")),
	}
}

// Handle prints one event. It matches the dispatcher's OnEvent hook.
func (p *Printer) Handle(ev turn.Event) {
	var b strings.Builder
	switch ev.Kind {
	case turn.EventStarted:
		speaker := ev.Speaker
		if speaker == "" {
			speaker = string(ev.Source)
		}
		fmt.Fprintf(&b, "%s %s\n", p.name.Render(ev.Character), p.notice.Render("activated by "+speaker))
		if ev.Prompt != "" {
			b.WriteString(p.prompt.Render(indent(ev.Prompt)) + "\n")
		}
	case turn.EventReplied:
		label := ev.Character
		if ev.Style != "" {
			label += " " + ev.Style
		}
		fmt.Fprintf(&b, "%s\n%s\n", p.name.Render(label), p.reply.Render(indent(ev.Text)))
		if len(ev.Triggered) > 0 {
			b.WriteString(p.notice.Render("  triggers: "+strings.Join(ev.Triggered, ", ")) + "\n")
		}
	case turn.EventFailed:
		fmt.Fprintf(&b, "%s %s\n", p.name.Render(ev.Character), p.failure.Render("failed: "+ev.Error))
	case turn.EventFinished:
		b.WriteString(p.prompt.Render("---") + "\n")
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, b.String())
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
