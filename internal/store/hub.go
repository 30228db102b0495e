package store

import "sync"

// Hub fans change notifications out to the live queries of one owner.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[chan struct{}]struct{})}
}

// Watch returns a wake-up channel for ownerID. Pending wake-ups collapse into one.
func (h *Hub) Watch(ownerID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.watchers[ownerID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.watchers[ownerID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(set, ch)
		if len(set) == 0 {
			delete(h.watchers, ownerID)
		}
	}
}

// Notify wakes every live query of ownerID. It never blocks.
func (h *Hub) Notify(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyAll wakes every live query. Feeds call it after (re)subscribing,
// since notifications sent while they were disconnected are gone.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.watchers {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) watching(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[ownerID])
}
