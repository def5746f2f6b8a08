// Package activity renders a rolling log of request lifecycle events.
package activity

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/tui/components/core"
)

// DefaultLimit is how many entries a panel keeps.
const DefaultLimit = 200

type entry struct {
	at    time.Time
	event events.Event
}

// Panel keeps the most recent events, newest last.
type Panel struct {
	entries []entry
	limit   int
	width   int
	height  int
	now     func() time.Time

	issued, completed, failed, aborted int
}

var _ core.Sizeable = (*Panel)(nil)

// New creates an empty panel.
func New() *Panel {
	return &Panel{
		limit: DefaultLimit,
		now:   time.Now,
	}
}

func (p *Panel) Init() tea.Cmd {
	return nil
}

// Update records events.Event messages and ignores everything else.
func (p *Panel) Update(msg tea.Msg) (*Panel, tea.Cmd) {
	if e, ok := msg.(events.Event); ok {
		p.Add(e)
	}
	return p, nil
}

// Add records e, evicting the oldest entry past the limit.
func (p *Panel) Add(e events.Event) {
	switch e.Type {
	case events.RequestIssuedEvent:
		p.issued++
	case events.RequestCompletedEvent:
		p.completed++
	case events.RequestFailedEvent:
		p.failed++
	case events.RequestAbortedEvent:
		p.aborted++
	}

	p.entries = append(p.entries, entry{at: p.now(), event: e})
	if len(p.entries) > p.limit {
		p.entries = p.entries[len(p.entries)-p.limit:]
	}
}

// Len returns how many entries are kept.
func (p *Panel) Len() int {
	return len(p.entries)
}

// Counts returns running totals since the panel was created.
func (p *Panel) Counts() (issued, completed, failed, aborted int) {
	return p.issued, p.completed, p.failed, p.aborted
}

func (p *Panel) SetSize(width, height int) tea.Cmd {
	p.width = width
	p.height = height
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	issuedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	abortStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View shows a summary line and as many of the newest entries as fit.
func (p *Panel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Activity"))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("↑%d ✓%d ✗%d ⊘%d", p.issued, p.completed, p.failed, p.aborted)))
	sb.WriteString("\n\n")

	room := len(p.entries)
	if p.height > 3 {
		room = min(room, p.height-3)
	}
	for _, e := range p.entries[len(p.entries)-room:] {
		sb.WriteString(timeStyle.Render(e.at.Format("15:04:05")))
		sb.WriteString(" ")
		sb.WriteString(p.truncate(Describe(e.event)))
		sb.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(p.width).Render(strings.TrimRight(sb.String(), "\n"))
}

func (p *Panel) truncate(s string) string {
	limit := p.width - 10
	if limit <= 0 || lipgloss.Width(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes) + "…"
}

// Describe renders one event as a short styled line.
func Describe(e events.Event) string {
	switch payload := e.Payload.(type) {
	case events.RequestPayload:
		target := payload.Method + " " + payload.URL
		if payload.Queue != "" {
			target = "[" + payload.Queue + "] " + target
		}
		switch e.Type {
		case events.RequestIssuedEvent:
			return issuedStyle.Render("↑ ") + target
		case events.RequestCompletedEvent:
			return doneStyle.Render(fmt.Sprintf("✓ %d ", payload.Status)) + target
		case events.RequestFailedEvent:
			if payload.Status != 0 {
				return failStyle.Render(fmt.Sprintf("✗ %d ", payload.Status)) + target
			}
			return failStyle.Render("✗ ") + target
		case events.RequestAbortedEvent:
			return abortStyle.Render("⊘ ") + target
		case events.RequestDroppedEvent:
			return mutedStyle.Render("- dropped " + string(payload.Mode) + " request without URL")
		}
	case events.ChainPayload:
		return doneStyle.Render("■ ") + fmt.Sprintf("chain %s ended after %d requests", payload.Name, payload.Length)
	}
	return mutedStyle.Render(string(e.Type))
}
