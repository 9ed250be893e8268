// Package realtime fans engine events out to live subscribers such as
// WebSocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"triviakit/core"
)

// Source is the part of the event bus the hub listens to.
type Source interface {
	SubscribeAll(handler func(context.Context, core.Event)) func()
}

type subscriber struct {
	user core.UserID
	ch   chan core.Event
}

// Hub is a pub/sub for broadcasting events to channels. A subscriber bound to
// a user only receives that user's events.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Attach forwards every event published on src to the hub.
func (h *Hub) Attach(src Source) func() { return src.SubscribeAll(h.Broadcast) }

// Subscribe registers a channel of size buffer. An empty user receives all events.
func (h *Hub) Subscribe(buffer int, user core.UserID) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{user: user, ch: ch}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Subscribers is the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events discarded because a subscriber was not keeping up.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	// hold the read lock while sending so Unsubscribe cannot close a channel mid-send
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.user != "" && s.user != ev.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
