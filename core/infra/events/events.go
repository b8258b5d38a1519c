package events

import (
	"sync"
	"time"
)

// Event types emitted on lock and note state changes.
const (
	TypeLockAcquired = "lock.acquired"
	TypeLockReleased = "lock.released"
	TypeLockExpired  = "lock.expired"
	TypeNoteCreated  = "note.created"
	TypeNoteUpdated  = "note.updated"
)

// Event is a single lifecycle notification. Events are advisory: nothing
// consumes them to make lock decisions.
type Event struct {
	Type      string     `json:"type"`
	Resource  string     `json:"resource"`
	Holder    string     `json:"holder,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	At        time.Time  `json:"at"`
}

// Publisher receives lifecycle events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}

// Multi fans a single publish out to several publishers. Nil entries are
// skipped.
func Multi(pubs ...Publisher) Publisher {
	out := make(multi, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

type multi []Publisher

func (m multi) Publish(ev Event) {
	for _, p := range m {
		p.Publish(ev)
	}
}

const subscriberBuffer = 64

// Hub fans events out to in-process subscribers. Sends never block: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Publish stamps the event time if unset and delivers to every subscriber.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel func. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
