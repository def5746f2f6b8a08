package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBar_MessageClearsOnItsOwnTick(t *testing.T) {
	b := New()
	clock := time.Unix(100, 0)
	b.now = func() time.Time { return clock }

	cmd := b.ShowError("boom")
	require.NotNil(t, cmd)
	require.NotNil(t, b.Current())
	assert.Equal(t, Error, b.Current().Type)

	first := clearMessageMsg{timestamp: clock}

	// A newer notice survives the older timer.
	clock = clock.Add(time.Second)
	b.ShowInfo("later")
	b, _ = b.Update(first)
	require.NotNil(t, b.Current())
	assert.Equal(t, "later", b.Current().Content)

	b, _ = b.Update(clearMessageMsg{timestamp: clock})
	assert.Nil(t, b.Current())
}

func TestBar_View(t *testing.T) {
	b := New()
	assert.Empty(t, b.View(), "no width yet")

	b.SetSize(80, 1)
	b.SetLeftContent("help")
	assert.Contains(t, b.View(), "help")

	b.ShowSuccess("chain-1 finished 3 requests")
	view := b.View()
	assert.Contains(t, view, "help")
	assert.Contains(t, view, "chain-1 finished 3 requests")
}

func TestBar_ViewTruncatesLongMessages(t *testing.T) {
	b := New()
	b.SetSize(30, 1)
	b.SetLeftContent("left side help")
	b.ShowWarning("a very long warning message that cannot possibly fit in thirty columns")

	assert.Contains(t, b.View(), "...")
}
