// Package status is the one-line bar at the bottom of the screen.
package status

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/reqproxy/internal/tui/components/core"
)

// MessageType represents the type of status message
type MessageType int

const (
	Info MessageType = iota
	Warning
	Error
	Success
)

// Message is a transient notice shown on the right of the bar.
type Message struct {
	Content   string
	Type      MessageType
	Timestamp time.Time
}

// Bar shows fixed help text on the left and the latest notice on the
// right until it expires.
type Bar struct {
	message     *Message
	width       int
	leftContent string
	clearAfter  time.Duration
	now         func() time.Time
}

var _ core.Sizeable = (*Bar)(nil)

// New creates a bar whose notices clear after five seconds.
func New() *Bar {
	return &Bar{
		clearAfter: 5 * time.Second,
		now:        time.Now,
	}
}

// SetMessage shows content and schedules its removal.
func (b *Bar) SetMessage(content string, msgType MessageType) tea.Cmd {
	stamp := b.now()
	b.message = &Message{
		Content:   content,
		Type:      msgType,
		Timestamp: stamp,
	}
	return tea.Tick(b.clearAfter, func(time.Time) tea.Msg {
		return clearMessageMsg{timestamp: stamp}
	})
}

func (b *Bar) ShowInfo(message string) tea.Cmd    { return b.SetMessage(message, Info) }
func (b *Bar) ShowWarning(message string) tea.Cmd { return b.SetMessage(message, Warning) }
func (b *Bar) ShowError(message string) tea.Cmd   { return b.SetMessage(message, Error) }
func (b *Bar) ShowSuccess(message string) tea.Cmd { return b.SetMessage(message, Success) }

// SetLeftContent sets the fixed left side, usually key help.
func (b *Bar) SetLeftContent(content string) {
	b.leftContent = content
}

// Current returns the notice being shown, nil if none.
func (b *Bar) Current() *Message {
	return b.message
}

func (b *Bar) SetSize(width, height int) tea.Cmd {
	b.width = width
	return nil
}

// clearMessageMsg is sent when a status message should be cleared
type clearMessageMsg struct {
	timestamp time.Time
}

func (b *Bar) Init() tea.Cmd {
	return nil
}

func (b *Bar) Update(msg tea.Msg) (*Bar, tea.Cmd) {
	if msg, ok := msg.(clearMessageMsg); ok {
		// A newer notice has its own timer.
		if b.message != nil && msg.timestamp.Equal(b.message.Timestamp) {
			b.message = nil
		}
	}
	return b, nil
}

var (
	barStyle = lipgloss.NewStyle().
			Height(1).
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

func (b *Bar) View() string {
	if b.width == 0 {
		return ""
	}

	left := b.leftContent
	right := b.formatMessage()
	available := b.width - 2

	if lipgloss.Width(left)+lipgloss.Width(right) > available {
		if len(right) > 40 {
			right = right[:37] + "..."
		}
		remaining := available - lipgloss.Width(right)
		if len(left) > remaining && remaining > 3 {
			left = left[:remaining-3] + "..."
		}
	}

	content := left
	if right != "" {
		spaces := available - lipgloss.Width(left) - lipgloss.Width(right)
		if spaces > 0 {
			content += fmt.Sprintf("%*s", spaces, "")
		} else {
			content += " "
		}
		content += b.styleFor().Render(right)
	}
	return barStyle.Width(b.width).Render(content)
}

func (b *Bar) formatMessage() string {
	if b.message == nil {
		return ""
	}
	switch b.message.Type {
	case Success:
		return "✓ " + b.message.Content
	case Warning:
		return "! " + b.message.Content
	case Error:
		return "✗ " + b.message.Content
	default:
		return b.message.Content
	}
}

func (b *Bar) styleFor() lipgloss.Style {
	if b.message == nil {
		return infoStyle
	}
	switch b.message.Type {
	case Success:
		return successStyle
	case Warning:
		return warningStyle
	case Error:
		return errorStyle
	default:
		return infoStyle
	}
}
