package bus

import (
	"sync"
	"time"
)

// Bus fans events out to in-process subscribers. Matching is by Kind
// prefix, so one subscription can watch a single kind
// ("store.message_saved"), a whole namespace ("peer."), or everything
// ("").
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	nextID int
}

type subscriber struct {
	prefix Kind
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches its
// kind. Delivery never blocks: a subscriber whose channel is full
// misses the event. Events published without a timestamp are stamped
// here.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !evt.Kind.Matches(sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in every kind carrying the given
// prefix. bufSize controls the channel buffer. The returned func
// removes the subscription; the channel is never closed, so events
// already buffered stay readable after unsubscribing.
func (b *Bus) Subscribe(prefix Kind, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
