// Package broker is an in-process publish/subscribe hub for lifecycle
// events. The admin stream endpoint subscribes to it; the lifecycle, cascade
// and community services publish after their state changes are persisted.
package broker

import (
	"sync"
	"time"
)

// Message describes one persisted state change.
type Message struct {
	Kind     string            `json:"kind"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entity_id"`
	ActorID  string            `json:"actor_id,omitempty"`
	At       time.Time         `json:"at"`
	Data     map[string]string `json:"data,omitempty"`
}

// Broker fans messages out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the message.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan Message
	next int

	dropMu  sync.Mutex
	dropped uint64
}

func New() *Broker {
	return &Broker{subs: make(map[int]chan Message)}
}

// Publish delivers m to every current subscriber. A nil Broker is a no-op.
func (b *Broker) Publish(m Message) {
	if b == nil {
		return
	}
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- m:
		default:
			b.countDrop()
		}
	}
}

func (b *Broker) countDrop() {
	b.dropMu.Lock()
	b.dropped++
	b.dropMu.Unlock()
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (b *Broker) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropped
}
