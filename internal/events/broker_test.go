package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_RoutesByType(t *testing.T) {
	b := NewBroker()
	aborted := b.Subscribe(RequestAbortedEvent)
	all := b.Subscribe()

	b.Publish(Event{Type: RequestIssuedEvent, Payload: RequestPayload{URL: "/a"}})
	b.Publish(Event{Type: RequestAbortedEvent, Payload: RequestPayload{URL: "/a"}})

	require.Len(t, aborted, 1)
	assert.Equal(t, RequestAbortedEvent, (<-aborted).Type)

	require.Len(t, all, 2)
	assert.Equal(t, RequestIssuedEvent, (<-all).Type)
	assert.Equal(t, RequestAbortedEvent, (<-all).Type)
}

func TestBroker_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBrokerWithBuffer(1)
	ch := b.Subscribe(RequestIssuedEvent)

	b.Publish(Event{Type: RequestIssuedEvent})
	b.Publish(Event{Type: RequestIssuedEvent})

	assert.Len(t, ch, 1)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(RequestIssuedEvent, RequestCompletedEvent)

	b.Unsubscribe(ch)
	b.Publish(Event{Type: RequestIssuedEvent})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	assert.Empty(t, b.subscribers)
}

func TestBroker_Clear(t *testing.T) {
	b := NewBroker()
	first := b.Subscribe(RequestIssuedEvent, RequestFailedEvent)
	second := b.Subscribe()

	b.Clear()

	_, ok := <-first
	assert.False(t, ok)
	_, ok = <-second
	assert.False(t, ok)
}
