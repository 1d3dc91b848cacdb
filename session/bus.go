package session

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw payload published under a topic.
type Handler func(data json.RawMessage)

// Bus is a typed publish/subscribe fan-out. Subscriptions are many-to-many
// and removed through the returned unsubscribe handle; the Bus never owns
// the channel that feeds it.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[string]map[int]Handler{}}
}

// Subscribe registers fn under topic and returns its unsubscribe handle.
// Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]Handler{}
	}
	b.subs[topic][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[topic]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
	}
}

// Publish delivers data to every subscriber of topic. Handlers run on the
// caller's goroutine, outside the bus lock.
func (b *Bus) Publish(topic string, data json.RawMessage) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(data)
	}
}

// SubscriberCount returns the total number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = map[string]map[int]Handler{}
	b.mu.Unlock()
}
