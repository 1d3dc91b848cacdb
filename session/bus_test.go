package session

import (
	"encoding/json"
	"testing"
)

func TestBusFanOut(t *testing.T) {
	b := NewBus()
	var first, second []string
	b.Subscribe("topic.a", func(data json.RawMessage) { first = append(first, string(data)) })
	b.Subscribe("topic.a", func(data json.RawMessage) { second = append(second, string(data)) })
	b.Subscribe("topic.b", func(data json.RawMessage) { t.Errorf("unrelated topic received %s", data) })

	b.Publish("topic.a", json.RawMessage(`{"n":1}`))

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to fire once, got %d and %d", len(first), len(second))
	}
	if first[0] != `{"n":1}` {
		t.Errorf("payload mangled: %s", first[0])
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe("topic", func(json.RawMessage) { calls++ })
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	unsub()
	unsub() // second call is a no-op

	b.Publish("topic", json.RawMessage(`{}`))
	if calls != 0 {
		t.Errorf("unsubscribed handler fired %d times", calls)
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	b := NewBus()
	// Must not panic or block.
	b.Publish("nobody.home", json.RawMessage(`{}`))
}

func TestBusClear(t *testing.T) {
	b := NewBus()
	b.Subscribe("a", func(json.RawMessage) {})
	b.Subscribe("b", func(json.RawMessage) {})
	b.Clear()
	if b.SubscriberCount() != 0 {
		t.Errorf("Clear left %d subscribers", b.SubscriberCount())
	}
}
