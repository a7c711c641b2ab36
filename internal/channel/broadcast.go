package channel

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans one stream of values out to any number of subscribers.
// Publishing never blocks: each subscriber has its own buffered channel and
// a value that does not fit is dropped for that subscriber (drop-new
// policy). Publishing with zero subscribers is a no-op, not an error.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	buffer int

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroadcaster creates a broadcaster whose subscribers each get a buffer
// of the given size. A non-positive size falls back to 1.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster[T]{
		subs:   make(map[int]chan T),
		buffer: buffer,
	}
}

// Subscribe attaches a new consumer. The returned cancel function detaches
// it and closes its channel; it is safe to call more than once.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan T, b.buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber that has buffer space and returns
// the number of deliveries.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub <- v:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	b.published.Add(1)
	return delivered
}

// Subscribers returns the current consumer count.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns the publish and per-subscriber drop counters.
func (b *Broadcaster[T]) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}
