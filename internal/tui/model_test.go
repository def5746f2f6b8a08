package tui

import (
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/reqproxy/internal/config"
	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/proxy"
	"github.com/billie-coop/reqproxy/internal/transport"
	"github.com/billie-coop/reqproxy/internal/transport/transporttest"
)

func newTestModel(t *testing.T) (*Model, *transporttest.Transport) {
	t.Helper()
	fake := transporttest.New()
	p := proxy.New(fake, proxy.WithMetrics(false), proxy.WithBroker(events.NewBroker()))
	m := New(p, config.Default(), logging.NewTestLogger())
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	t.Cleanup(m.Close)
	return m, fake
}

func key(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

// typeText feeds s one key at a time and runs the resulting commands the
// way the bubbletea runtime would.
func typeText(t *testing.T, m *Model, s string) {
	t.Helper()
	for _, r := range s {
		_, cmd := m.Update(key(r))
		require.NotNil(t, cmd, "typing %q should report a change", r)
		m.Update(cmd())
	}
}

// nextResult waits for the transport goroutine to hand back a result.
func nextResult(t *testing.T, m *Model) resultMsg {
	t.Helper()
	select {
	case r := <-m.resultsCh:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return resultMsg{}
	}
}

func TestModel_EveryEditAbortsThePreviousLookup(t *testing.T) {
	m, fake := newTestModel(t)

	typeText(t, m, "go")

	assert.Equal(t, []string{"/search?q=g", "/search?q=go"}, fake.URLs())
	first, _ := fake.Handle(0)
	second, _ := fake.Handle(1)
	assert.Equal(t, 1, first.CancelCalls())
	assert.Equal(t, 0, second.CancelCalls())
	assert.Equal(t, 1, m.proxy.Blocker().Len(SearchQueue))
	assert.True(t, m.results.Loading())
	assert.Equal(t, "go", m.results.Query())
}

func TestModel_ShowsLatestResult(t *testing.T) {
	m, fake := newTestModel(t)
	typeText(t, m, "go")

	h, _ := fake.Last()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	h.Complete(&transport.Response{StatusCode: 200, Header: header, Body: []byte(`{"hits":["golang"]}`)})

	m.Update(nextResult(t, m))
	assert.False(t, m.results.Loading())
	assert.Contains(t, m.results.View(), "200")
	assert.Equal(t, []string{"go"}, m.History())
}

func TestModel_AbortedLookupsNeverReachTheScreen(t *testing.T) {
	m, _ := newTestModel(t)
	typeText(t, m, "abc")

	select {
	case r := <-m.resultsCh:
		t.Fatalf("aborted lookup delivered a result for %q", r.query)
	default:
	}
}

func TestModel_IgnoresStaleResult(t *testing.T) {
	m, _ := newTestModel(t)
	typeText(t, m, "new")

	m.Update(resultMsg{query: "ne", resp: &transport.Response{StatusCode: 200}})
	assert.True(t, m.results.Loading(), "a result for an older query must not replace the spinner")
	assert.Empty(t, m.History())
}

func TestModel_FailureWithoutResponse(t *testing.T) {
	m, fake := newTestModel(t)
	typeText(t, m, "x")

	h, _ := fake.Last()
	h.Fail(assert.AnError)
	m.Update(nextResult(t, m))

	assert.False(t, m.results.Loading())
	assert.Contains(t, m.results.View(), assert.AnError.Error())
}

func TestModel_ClearAbortsInFlight(t *testing.T) {
	m, fake := newTestModel(t)
	typeText(t, m, "q")

	m.Update(tea.KeyPressMsg{Code: 'l', Mod: tea.ModCtrl})

	h, _ := fake.Last()
	assert.Equal(t, 1, h.CancelCalls())
	assert.Equal(t, 0, m.proxy.Blocker().Len(SearchQueue))
	assert.Empty(t, m.input.Value())
	assert.False(t, m.results.Loading())
}

func TestModel_ReplayRunsHistoryAsChain(t *testing.T) {
	m, fake := newTestModel(t)
	m.remember("one")
	m.remember("two")
	m.remember("one")

	m.Update(tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})

	require.Equal(t, 1, fake.Count(), "a chain sends one request at a time")
	first, _ := fake.Handle(0)
	assert.Equal(t, "/search?q=two", first.Request().URL)

	first.Complete(&transport.Response{StatusCode: 200})
	require.Eventually(t, func() bool { return fake.Count() == 2 }, 2*time.Second, 5*time.Millisecond)
	second, _ := fake.Handle(1)
	assert.Equal(t, "/search?q=one", second.Request().URL)
}

func TestModel_HistoryIsBounded(t *testing.T) {
	m, _ := newTestModel(t)
	for _, q := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		m.remember(q)
	}
	m.remember("")

	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, m.History())
}

func TestModel_ActivityPanelReceivesEvents(t *testing.T) {
	m, _ := newTestModel(t)
	typeText(t, m, "ab")

	cmd := m.listenForEvents()
	require.NotNil(t, cmd)
	for i := 0; i < 3; i++ {
		m.Update(cmd())
	}
	issued, _, _, aborted := m.activity.Counts()
	assert.Equal(t, 2, issued)
	assert.Equal(t, 1, aborted)
}

func TestModel_View(t *testing.T) {
	m, _ := newTestModel(t)
	typeText(t, m, "hi")

	assert.NotPanics(t, func() { m.View() })
	assert.Contains(t, m.activity.View(), "Activity")
	assert.Contains(t, m.input.View(), "hi")
}

func TestModel_StatusBarReportsReplay(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})
	require.NotNil(t, m.status.Current())
	assert.Equal(t, "nothing to replay", m.status.Current().Content)

	m.remember("one")
	m.Update(tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})
	assert.Equal(t, "replaying 1 queries", m.status.Current().Content)
}
