package live

import "sync"

// Hub fans change notifications out to listeners. Notifications coalesce:
// a listener that has not consumed the previous signal gets no second one.
type Hub struct {
	mu        sync.Mutex
	listeners map[int]chan struct{}
	next      int
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[int]chan struct{})}
}

// NotifyChanged signals every listener. It never blocks.
func (h *Hub) NotifyChanged() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listen registers a listener. The returned func unregisters it and closes
// the channel.
func (h *Hub) Listen() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := h.next
	h.next++
	h.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			close(ch)
		})
	}
}
