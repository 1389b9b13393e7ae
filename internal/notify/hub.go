package notify

import "sync"

// Hub fans values out to subscribers. Publish never blocks: a subscriber whose buffer is
// full misses the value and the drop is counted.
type Hub[T any] struct {
	mu sync.Mutex

	subs    map[uint64]chan T
	lastID  uint64
	closed  bool
	dropped uint64
	onDrop  func()
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uint64]chan T)}
}

// OnDrop registers a callback invoked once per dropped delivery, under the hub lock.
func (h *Hub[T]) OnDrop(fn func()) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Publish delivers val to every subscriber with buffer space and returns how many missed it.
func (h *Hub[T]) Publish(val T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	missed := 0
	for _, ch := range h.subs {
		select {
		case ch <- val:
		default:
			missed++
			h.dropped++
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
	return missed
}

// Dropped is the total number of deliveries lost to full buffers.
func (h *Hub[T]) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe registers a new subscriber. Capacity zero is raised to one. Subscribing to a
// closed hub returns an already closed subscription.
func (h *Hub[T]) Subscribe(capacity int) *Subscription[T] {
	if capacity < 1 {
		capacity = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, capacity)
	if h.closed {
		close(ch)
		return &Subscription[T]{ch: ch, hub: h, id: ^uint64(0)}
	}
	id := h.lastID
	h.lastID++
	h.subs[id] = ch
	return &Subscription[T]{ch: ch, hub: h, id: id}
}

// CloseAll closes every subscription and rejects new ones.
func (h *Hub[T]) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id := range h.subs {
		h.closeLocked(id)
	}
}

func (h *Hub[T]) closeLocked(id uint64) {
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	close(ch)
	delete(h.subs, id)
}

type Subscription[T any] struct {
	ch  chan T
	hub *Hub[T]
	id  uint64
}

func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unsubscribes. The channel is closed; values already buffered stay readable.
func (s *Subscription[T]) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.closeLocked(s.id)
}
