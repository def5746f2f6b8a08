// Package search is the type-ahead input line.
package search

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/reqproxy/internal/tui/components/core"
)

// QueryChangedMsg is emitted whenever an edit changes the input text.
type QueryChangedMsg struct {
	Query string
}

// Input is a single-line editor that reports every change.
type Input struct {
	value       string
	placeholder string
	cursorPos   int
	width       int
	focused     bool
}

var _ core.Sizeable = (*Input)(nil)
var _ core.Focusable = (*Input)(nil)

// New creates a focused, empty input.
func New() *Input {
	return &Input{
		placeholder: "Start typing to search",
		focused:     true,
	}
}

func (in *Input) Init() tea.Cmd {
	return nil
}

// Update edits the line. Keys it does not own (enter, esc, ctrl+c, ...)
// are left to the parent.
func (in *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	if !in.focused {
		return in, nil
	}
	key, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return in, nil
	}

	before := in.value
	switch key.String() {
	case "backspace":
		if in.cursorPos > 0 {
			in.value = in.value[:in.cursorPos-1] + in.value[in.cursorPos:]
			in.cursorPos--
		}
	case "delete":
		if in.cursorPos < len(in.value) {
			in.value = in.value[:in.cursorPos] + in.value[in.cursorPos+1:]
		}
	case "left":
		if in.cursorPos > 0 {
			in.cursorPos--
		}
	case "right":
		if in.cursorPos < len(in.value) {
			in.cursorPos++
		}
	case "home", "ctrl+a":
		in.cursorPos = 0
	case "end", "ctrl+e":
		in.cursorPos = len(in.value)
	case "ctrl+k":
		in.value = in.value[:in.cursorPos]
	case "ctrl+u":
		in.value = in.value[in.cursorPos:]
		in.cursorPos = 0
	case "space":
		in.insert(" ")
	default:
		s := key.String()
		if len(s) == 1 && s[0] >= 32 && s[0] < 127 {
			in.insert(s)
		}
	}

	if in.value == before {
		return in, nil
	}
	query := in.value
	return in, func() tea.Msg {
		return QueryChangedMsg{Query: query}
	}
}

func (in *Input) insert(s string) {
	in.value = in.value[:in.cursorPos] + s + in.value[in.cursorPos:]
	in.cursorPos += len(s)
}

func (in *Input) SetSize(width, height int) tea.Cmd {
	in.width = width
	return nil
}

var (
	promptStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cursorStyle      = lipgloss.NewStyle().Background(lipgloss.Color("205")).Foreground(lipgloss.Color("0"))
)

func (in *Input) View() string {
	prompt := promptStyle.Render("search> ")
	line := lipgloss.NewStyle().Width(max(in.width-2, 0)).Padding(0, 1)

	if in.value == "" && !in.focused {
		return line.Render(prompt + placeholderStyle.Render(in.placeholder))
	}
	if !in.focused {
		return line.Render(prompt + in.value)
	}

	cursor, after := " ", ""
	if in.cursorPos < len(in.value) {
		cursor = string(in.value[in.cursorPos])
		after = in.value[in.cursorPos+1:]
	}
	return line.Render(prompt + in.value[:in.cursorPos] + cursorStyle.Render(cursor) + after)
}

func (in *Input) Focus() tea.Cmd {
	in.focused = true
	return nil
}

func (in *Input) Blur() tea.Cmd {
	in.focused = false
	return nil
}

func (in *Input) Focused() bool {
	return in.focused
}

// Value returns the current text.
func (in *Input) Value() string {
	return in.value
}

// Query returns the text with surrounding space trimmed.
func (in *Input) Query() string {
	return strings.TrimSpace(in.value)
}

// SetValue replaces the text and moves the cursor to its end.
func (in *Input) SetValue(value string) {
	in.value = value
	in.cursorPos = len(value)
}

// Reset clears the input.
func (in *Input) Reset() {
	in.value = ""
	in.cursorPos = 0
}
