package notify

import (
	"context"
	"sync"
)

// Broadcaster pushes a stored notification to live subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, n Notification) error
}

const subscriberBuffer = 16

// Hub fans notifications out to in-process subscribers keyed by user. A slow
// subscriber whose buffer is full misses the notification; it stays in the
// store.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Notification]struct{})}
}

// Subscribe registers a channel for userID. The returned func unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber of n.UserID without blocking.
func (h *Hub) Publish(_ context.Context, n Notification) error {
	h.deliver(n)
	return nil
}

func (h *Hub) deliver(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			sent++
		default:
		}
	}
	return sent
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
