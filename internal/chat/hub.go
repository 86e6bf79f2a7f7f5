package chat

import (
	"sync"
	"time"
)

// TurnEvent announces a completed exchange to subscribers. Published
// after the turn is persisted, before the pacing delay elapses.
type TurnEvent struct {
	TurnID    string
	UserID    string
	Reply     string
	AudioURL  string
	Timestamp time.Time
}

// Hub fans completed-turn events out to per-user subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan TurnEvent
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan TurnEvent)}
}

// Subscribe registers a listener for one user's turn events. The cancel
// func is idempotent and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan TurnEvent, func()) {
	ch := make(chan TurnEvent, 16)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan TurnEvent)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if m := h.subs[userID]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers to every subscriber of the event's user. Slow
// subscribers drop the event rather than stall the exchange.
func (h *Hub) Publish(evt TurnEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
