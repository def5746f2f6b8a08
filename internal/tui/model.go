// Package tui is an interactive type-ahead search built on the proxy.
//
// Every edit of the input line submits a lookup to the "search" queue,
// which aborts the lookup before it, so only the newest answer is ever
// shown. ctrl+r replays the recent queries as one ordered chain. A side
// panel shows the request lifecycle as it happens.
package tui

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/go-logr/logr"

	"github.com/billie-coop/reqproxy/internal/config"
	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/proxy"
	"github.com/billie-coop/reqproxy/internal/transport"
	"github.com/billie-coop/reqproxy/internal/tui/components/activity"
	"github.com/billie-coop/reqproxy/internal/tui/components/results"
	"github.com/billie-coop/reqproxy/internal/tui/components/search"
	"github.com/billie-coop/reqproxy/internal/tui/components/status"
)

// SearchQueue is the blocker queue every lookup goes to.
const SearchQueue = "search"

const helpText = "type to search • enter remember • ctrl+r replay • ctrl+l clear • esc quit"

// historySize bounds how many distinct queries ctrl+r replays.
const historySize = 5

// resultMsg carries a finished lookup from the transport goroutine.
type resultMsg struct {
	query string
	resp  *transport.Response
	err   error
}

// Model is the root bubbletea model.
type Model struct {
	width  int
	height int

	input    *search.Input
	results  *results.Model
	activity *activity.Panel
	status   *status.Bar

	proxy      *proxy.Proxy
	searchPath string
	logger     logr.Logger

	eventSub  <-chan events.Event
	resultsCh chan resultMsg

	history []string
}

// New creates the model. p must be built with a broker for the activity
// panel to show anything.
func New(p *proxy.Proxy, cfg config.Config, logger logr.Logger) *Model {
	m := &Model{
		input:      search.New(),
		results:    results.New(cfg.Theme),
		activity:   activity.New(),
		status:     status.New(),
		proxy:      p,
		searchPath: cfg.SearchPath,
		logger:     logger.WithName("tui"),
		resultsCh:  make(chan resultMsg, 64),
	}
	m.status.SetLeftContent(helpText)
	if b := p.Broker(); b != nil {
		m.eventSub = b.Subscribe()
	}
	return m
}

// Init starts the spinner and the two listeners.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.input.Init(),
		m.results.Init(),
		m.activity.Init(),
		m.status.Init(),
		m.listenForEvents(),
		m.listenForResults(),
	)
}

// Update routes messages to the components.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case events.Event:
		m.activity, _ = m.activity.Update(msg)
		cmds = append(cmds, m.listenForEvents())
		if msg.Type == events.ChainEndedEvent {
			if p, ok := msg.Payload.(events.ChainPayload); ok {
				cmds = append(cmds, m.status.ShowSuccess(fmt.Sprintf("%s finished %d requests", p.Name, p.Length)))
			}
		}
		return m, tea.Batch(cmds...)

	case resultMsg:
		cmds = append(cmds, m.listenForResults())
		if m.showResult(msg) && msg.err != nil {
			cmds = append(cmds, m.status.ShowError(msg.err.Error()))
		}
		return m, tea.Batch(cmds...)

	case search.QueryChangedMsg:
		m.lookup(msg.Query)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		mainWidth, side, bodyHeight := m.layout()
		cmds = append(cmds,
			m.input.SetSize(m.width, 1),
			m.status.SetSize(m.width, footerHeight),
			m.results.SetSize(mainWidth-2, bodyHeight-2),
			m.activity.SetSize(side-2, bodyHeight-2),
		)

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+l":
			m.input.Reset()
			m.lookup("")
			return m, nil
		case "ctrl+r":
			if n := m.replay(); n > 0 {
				return m, m.status.ShowInfo(fmt.Sprintf("replaying %d queries", n))
			}
			return m, m.status.ShowWarning("nothing to replay")
		case "enter":
			if q := m.input.Query(); q != "" {
				m.remember(q)
				return m, m.status.ShowInfo("remembered " + q)
			}
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.results, cmd = m.results.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	cmds = append(cmds, cmd)
	m.status, cmd = m.status.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// lookup submits query to the search queue. An empty query aborts
// whatever is in flight and clears the pane.
func (m *Model) lookup(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		m.proxy.Blocker().AbortAll(SearchQueue)
		m.results.Clear()
		return
	}

	m.results.SetLoading(query)
	m.proxy.BlockReq(m.request(query), SearchQueue)
}

func (m *Model) request(query string) *transport.Request {
	return &transport.Request{
		URL: m.searchPath + "?q=" + url.QueryEscape(query),
		Callback: func(resp *transport.Response, err error) {
			if errors.Is(err, transport.ErrAborted) {
				return
			}
			select {
			case m.resultsCh <- resultMsg{query: query, resp: resp, err: err}:
			default:
				m.logger.V(logging.VERBOSE).Info("Result channel full, dropping result", "query", query)
			}
		},
	}
}

// showResult displays r unless a newer query has replaced it, and
// reports whether it did.
func (m *Model) showResult(r resultMsg) bool {
	if r.query != strings.TrimSpace(m.input.Value()) {
		m.logger.V(logging.DEBUG).Info("Ignoring stale result", "query", r.query)
		return false
	}
	if r.resp == nil {
		m.results.SetResult(r.query, 0, "", nil, r.err, 0)
		return true
	}
	m.results.SetResult(r.query, r.resp.StatusCode, r.resp.Header.Get("Content-Type"), r.resp.Body, r.err, r.resp.Duration)
	m.remember(r.query)
	return true
}

// remember keeps query in the replay history, most recent last.
func (m *Model) remember(query string) {
	if query == "" {
		return
	}
	for i, q := range m.history {
		if q == query {
			m.history = append(m.history[:i], m.history[i+1:]...)
			break
		}
	}
	m.history = append(m.history, query)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// replay sends the history as one chain, oldest first, one at a time.
// It returns how many queries were sent.
func (m *Model) replay() int {
	if len(m.history) == 0 {
		return 0
	}
	c := m.proxy.Chain()
	for _, q := range m.history {
		c.Register(&transport.Request{URL: m.searchPath + "?q=" + url.QueryEscape(q)})
	}
	m.logger.V(logging.DEBUG).Info("Replaying history", "chain", c.Name(), "length", c.Len())
	c.Start()
	return c.Len()
}

// History returns the queries ctrl+r would replay.
func (m *Model) History() []string {
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Model) listenForEvents() tea.Cmd {
	if m.eventSub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-m.eventSub
		if !ok {
			return nil
		}
		return event
	}
}

func (m *Model) listenForResults() tea.Cmd {
	return func() tea.Msg {
		return <-m.resultsCh
	}
}

const (
	sideWidth    = 44
	headerHeight = 4
	footerHeight = 1
)

// layout splits the window into the results pane and the side panel.
func (m *Model) layout() (mainWidth, side, bodyHeight int) {
	side = min(sideWidth, m.width/2)
	mainWidth = m.width - side
	bodyHeight = max(m.height-headerHeight-footerHeight, 3)
	return mainWidth, side, bodyHeight
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))
)

// View renders the whole screen.
func (m *Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Initializing...")
	}
	mainWidth, side, bodyHeight := m.layout()

	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("reqproxy"),
		"",
		m.input.View(),
		"",
	)

	resultsView := paneStyle.
		Width(mainWidth - 2).
		Height(bodyHeight - 2).
		Render(m.results.View())
	activityView := paneStyle.
		Width(side - 2).
		Height(bodyHeight - 2).
		Render(m.activity.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, resultsView, activityView)

	return tea.NewView(lipgloss.JoinVertical(lipgloss.Left, header, body, m.status.View()))
}

// Close aborts the in-flight lookup and stops listening for events.
func (m *Model) Close() {
	m.proxy.Blocker().AbortAll(SearchQueue)
	if b := m.proxy.Broker(); b != nil && m.eventSub != nil {
		b.Unsubscribe(m.eventSub)
	}
}

