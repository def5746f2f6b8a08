// Package results shows the response to the latest lookup.
package results

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/glamour/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/reqproxy/internal/tui/components/core"
)

// Model is a scrollable viewport over the latest response body, with a
// spinner while a lookup is in flight.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model
	theme    string
	width    int
	height   int

	query       string
	loading     bool
	status      int
	contentType string
	body        string
	err         error
	duration    time.Duration
}

var _ core.Sizeable = (*Model)(nil)

// New creates an empty results pane. theme is a glamour style name.
func New(theme string) *Model {
	vp := viewport.New()
	vp.MouseWheelEnabled = true

	return &Model{
		viewport: vp,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:    theme,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (*Model, tea.Cmd) {
	var cmds []tea.Cmd

	if _, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.loading {
			m.refreshContent()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) SetSize(width, height int) tea.Cmd {
	m.width = width
	m.height = height

	m.viewport = viewport.New(
		viewport.WithWidth(width),
		viewport.WithHeight(height),
	)
	m.viewport.MouseWheelEnabled = true
	m.refreshContent()
	return nil
}

func (m *Model) View() string {
	return m.viewport.View()
}

// SetLoading marks a lookup for query as in flight.
func (m *Model) SetLoading(query string) {
	m.query = query
	m.loading = true
	m.refreshContent()
}

// SetResult shows the outcome of the lookup for query.
func (m *Model) SetResult(query string, status int, contentType string, body []byte, err error, d time.Duration) {
	m.query = query
	m.loading = false
	m.status = status
	m.contentType = contentType
	m.body = string(body)
	m.err = err
	m.duration = d
	m.refreshContent()
	m.viewport.GotoTop()
}

// Clear resets the pane to its empty state.
func (m *Model) Clear() {
	*m = Model{
		viewport: m.viewport,
		spinner:  m.spinner,
		theme:    m.theme,
		width:    m.width,
		height:   m.height,
	}
	m.refreshContent()
}

// Loading reports whether a lookup is in flight.
func (m *Model) Loading() bool {
	return m.loading
}

// Query returns the query whose state is shown.
func (m *Model) Query() string {
	return m.query
}

var (
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	metaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Italic(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func (m *Model) refreshContent() {
	m.viewport.SetContent(m.render())
}

func (m *Model) render() string {
	switch {
	case m.query == "":
		return hintStyle.Render("Results for the latest query show up here.")
	case m.loading:
		return m.spinner.View() + " " + hintStyle.Render(fmt.Sprintf("searching for %q", m.query))
	}

	var sb strings.Builder
	if m.err != nil && m.status == 0 {
		sb.WriteString(errorStyle.Render("error"))
		sb.WriteString(" ")
		sb.WriteString(m.err.Error())
		return sb.String()
	}

	statusStyle := okStyle
	if m.status < 200 || m.status >= 300 {
		statusStyle = errorStyle
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("%d", m.status)))
	sb.WriteString(" ")
	sb.WriteString(metaStyle.Render(fmt.Sprintf("%q • %s", m.query, m.duration.Round(time.Millisecond))))
	sb.WriteString("\n\n")

	rendered, err := m.renderMarkdown(asMarkdown(m.contentType, m.body))
	if err != nil {
		sb.WriteString(wrapText(m.body, m.width-4))
	} else {
		sb.WriteString(rendered)
	}
	return sb.String()
}

// asMarkdown fences JSON and plain text so glamour highlights and keeps
// them as they are. Markdown bodies pass through.
func asMarkdown(contentType, body string) string {
	switch {
	case strings.Contains(contentType, "markdown"):
		return body
	case strings.Contains(contentType, "json") || json.Valid([]byte(body)):
		var pretty any
		if err := json.Unmarshal([]byte(body), &pretty); err == nil {
			if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				body = string(out)
			}
		}
		return "```json\n" + body + "\n```"
	default:
		return "```\n" + body + "\n```"
	}
}

func (m *Model) renderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(m.theme),
		glamour.WithWordWrap(max(m.width-4, 20)),
		glamour.WithPreservedNewLines(),
		glamour.WithEmoji(),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return strings.TrimRight(rendered, "\n"), nil
}

// wrapText wraps text at word boundaries to fit within width.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		if len(line) <= width {
			result.WriteString(line)
			continue
		}

		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case len(word) > width:
				if current != "" {
					result.WriteString(current)
					result.WriteString("\n")
				}
				for len(word) > width {
					result.WriteString(word[:width])
					result.WriteString("\n")
					word = word[width:]
				}
				current = word
			case current == "":
				current = word
			case len(current)+1+len(word) > width:
				result.WriteString(current)
				result.WriteString("\n")
				current = word
			default:
				current += " " + word
			}
		}
		result.WriteString(current)
	}
	return result.String()
}
