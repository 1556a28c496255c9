package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

// AllPolls subscribes to the events of every poll.
const AllPolls = ""

const DefaultBacklog = 100

// Hub fans poll events out to subscribers keyed by poll id.
// Publish never blocks: a subscriber whose backlog is full loses its oldest event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	backlog int
	l       *zap.Logger
}

func New(backlog int, l *zap.Logger) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		backlog: backlog,
		l:       l,
	}
}

// Subscribe returns a handle that receives every event for pollID published
// after this call. Use AllPolls to receive events for every poll.
func (h *Hub) Subscribe(pollID string) *Subscription {
	s := &Subscription{
		ch:     make(chan models.PollEvent, h.backlog),
		pollID: pollID,
		hub:    h,
	}
	h.mu.Lock()
	set, ok := h.subs[pollID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[pollID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	h.l.Debug("hub subscribe", zap.String("poll_id", pollID))
	return s
}

func (h *Hub) Publish(event models.PollEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[event.PollID] {
		s.deliver(event)
	}
	if event.PollID != AllPolls {
		for s := range h.subs[AllPolls] {
			s.deliver(event)
		}
	}
}

// Subscribers reports how many handles are attached to pollID.
func (h *Hub) Subscribers(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[pollID])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[s.pollID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.pollID)
		}
	}
	h.mu.Unlock()
}

type Subscription struct {
	mu      sync.Mutex
	ch      chan models.PollEvent
	closed  bool
	pollID  string
	hub     *Hub
	dropped atomic.Uint64
}

// Events is closed once Close has been called.
func (s *Subscription) Events() <-chan models.PollEvent {
	return s.ch
}

// Dropped counts events evicted from a full backlog.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(event models.PollEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case old := <-s.ch:
			s.dropped.Add(1)
			s.hub.l.Warn("subscriber lagging, dropped event",
				zap.String("poll_id", old.PollID),
				zap.String("kind", string(old.Kind)))
		default:
		}
	}
}
