package realtime

import (
	"log/slog"
	"sync"

	"inkwell/cmd/internal/notebook"
)

// Hub routes notebook events to per-notebook subscribers. It implements
// notebook.Publisher.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one client's event feed for a single notebook.
type Subscription struct {
	C <-chan notebook.Event

	hub        *Hub
	notebookID string
	ch         chan notebook.Event
	once       sync.Once
}

// Close detaches the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.notebookID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.notebookID)
			}
		}
	})
}

// Subscribe attaches a new subscriber to notebookID. queueSize bounds the
// per-subscriber buffer; events beyond it are dropped.
func (h *Hub) Subscribe(notebookID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = 32
	}

	ch := make(chan notebook.Event, queueSize)
	sub := &Subscription{C: ch, hub: h, notebookID: notebookID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[notebookID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[notebookID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber of notebookID without blocking.
// A full subscriber queue drops the event.
func (h *Hub) Publish(notebookID string, ev notebook.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[notebookID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Debug("realtime.event.dropped", "notebook_id", notebookID, "type", ev.Type)
		}
	}
}
