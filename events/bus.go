// Package events is the explicit replacement for the ambient "window event"
// channel: components publish to an injected bus and interested views
// subscribe, instead of broadcasting through a global.
package events

import "sync"

type Topic string

const (
	TopicCartChanged   Topic = "cart_changed"
	TopicAuthExpired   Topic = "auth_expired"
	TopicOrdersRefresh Topic = "orders_refresh"
)

type Event struct {
	Topic   Topic
	Payload any
}

type Bus struct {
	mu   sync.RWMutex
	subs map[Topic]map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]chan Event)}
}

// Subscribe returns a buffered channel receiving events for the topic and a
// cancel func that closes it. Events published while the buffer is full are
// dropped for that subscriber.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	ch := make(chan Event, 8)
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish never blocks: a wedged subscriber must not stall a store mutation.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- Event{Topic: topic, Payload: payload}:
		default:
		}
	}
}
