package store

import (
	"context"
	"sync"
)

// Hub fans out key-change signals to in-process watchers. Cross-process
// writers are still only visible through polling; the hub just makes
// local writes propagate without waiting for the next poll tick.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan string
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan string)}
}

// Subscribe returns a channel of changed keys and a cancel func.
// Slow subscribers drop signals instead of blocking writers.
func (h *Hub) Subscribe() (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan string, 16)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Hub) Publish(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- key:
		default:
		}
	}
}

type hubStore struct {
	Store
	hub *Hub
}

// WithHub wraps s so every successful Save publishes the changed key.
func WithHub(s Store, hub *Hub) Store {
	return &hubStore{Store: s, hub: hub}
}

func (s *hubStore) Save(ctx context.Context, key string, value any) error {
	if err := s.Store.Save(ctx, key, value); err != nil {
		return err
	}
	s.hub.Publish(key)
	return nil
}
