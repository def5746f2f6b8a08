package events

import (
	"sync"
)

// Broker fans events out to subscriber channels. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Broker struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
}

// NewBroker creates a broker whose subscriber channels buffer 64 events.
func NewBroker() *Broker {
	return NewBrokerWithBuffer(64)
}

// NewBrokerWithBuffer creates a broker with the given channel buffer size.
func NewBrokerWithBuffer(size int) *Broker {
	if size < 0 {
		size = 0
	}
	return &Broker{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  size,
	}
}

// Subscribe creates a subscription to specific event types, or to all of
// them when none are given.
func (b *Broker) Subscribe(eventTypes ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)

	if len(eventTypes) == 0 {
		eventTypes = []EventType{Wildcard}
	}

	for _, eventType := range eventTypes {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := false
	for eventType, subscribers := range b.subscribers {
		for i, sub := range subscribers {
			if sub == ch {
				b.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
				if !closed {
					close(sub)
					closed = true
				}
				break
			}
		}
		if len(b.subscribers[eventType]) == 0 {
			delete(b.subscribers, eventType)
		}
	}
}

// Publish sends an event to all matching subscribers.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.subscribers[Wildcard] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Clear removes all subscriptions, closing their channels.
func (b *Broker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := make(map[chan Event]bool)
	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			if !closed[ch] {
				close(ch)
				closed[ch] = true
			}
		}
	}

	b.subscribers = make(map[EventType][]chan Event)
}
