package app

import "sync"

// hub fans values out to subscribers without blocking the publisher.
// Subscribers that fall behind miss values.
type hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	size   int
	closed bool
}

func newHub[T any](size int) *hub[T] {
	return &hub[T]{
		subs: make(map[int]chan T),
		size: size,
	}
}

// subscribe returns a channel and its cancel function. After close the
// channel is returned already closed.
func (h *hub[T]) subscribe() (<-chan T, func()) {
	ch := make(chan T, h.size)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.closed = true
}
