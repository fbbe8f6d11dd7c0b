// Package events provides an in-process diagnostic event bus. The engine
// publishes routing, batching, and execution events; the CLI subscribes to
// render activity lines and tests subscribe to observe engine behavior
// without scraping logs.
package events

import "sync"

// BusEvent is any event publishable on an EventBus.
type BusEvent interface {
	EventType() string
}

// EventBus fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan BusEvent
	next int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan BusEvent)}
}

// DefaultBus is the process-wide bus.
var DefaultBus = NewEventBus()

// Subscribe registers a buffered subscription. The returned cancel function
// removes the subscription and closes its channel.
func (b *EventBus) Subscribe(buffer int) (<-chan BusEvent, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan BusEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber whose buffer has room.
func (b *EventBus) Publish(ev BusEvent) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
