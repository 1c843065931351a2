package stream

import (
	"context"
	"sync"
	"time"
)

// SecurityEvent is one security-relevant occurrence fanned out to live
// operator feeds (replay detections, failed device auth, chain revocations).
type SecurityEvent struct {
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Hub fan-outs security events to all active subscribers (SSE clients).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan SecurityEvent
	next int
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]chan SecurityEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan SecurityEvent {
	ch := make(chan SecurityEvent, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (h *Hub) Publish(evt SecurityEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking auth paths.
		}
	}
}
