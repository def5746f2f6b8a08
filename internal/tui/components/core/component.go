// Package core holds the interfaces shared by the TUI components.
package core

import tea "github.com/charmbracelet/bubbletea/v2"

// Sizeable components can be resized
type Sizeable interface {
	SetSize(width, height int) tea.Cmd
}

// Focusable components can receive keyboard focus
type Focusable interface {
	Focus() tea.Cmd
	Blur() tea.Cmd
	Focused() bool
}
