package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNoValue = errors.New("session: no value")

// Store keeps opaque per-session values. Implementations must be safe for
// concurrent use; values expire ttl after their last Set or Touch.
type Store interface {
	Get(ctx context.Context, sid, key string) ([]byte, error)
	Set(ctx context.Context, sid, key string, value []byte, ttl time.Duration) error
	// Touch pushes the expiry of every live value of sid to now+ttl.
	Touch(ctx context.Context, sid string, ttl time.Duration) error
	// Take returns the value and removes it in one step.
	Take(ctx context.Context, sid, key string) ([]byte, error)
	Delete(ctx context.Context, sid, key string) error
	Destroy(ctx context.Context, sid string) error
}

type entry struct {
	value   []byte
	expires time.Time
}

type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]entry
	l    *zap.Logger
	now  func() time.Time
}

func NewMemoryStore(l *zap.Logger) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]entry),
		l:    l,
		now:  time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, sid, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(sid, key, false)
}

func (s *MemoryStore) Take(_ context.Context, sid, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(sid, key, true)
}

func (s *MemoryStore) lookup(sid, key string, remove bool) ([]byte, error) {
	values, ok := s.data[sid]
	if !ok {
		return nil, ErrNoValue
	}
	e, ok := values[key]
	if !ok {
		return nil, ErrNoValue
	}
	if !e.expires.After(s.now()) {
		delete(values, key)
		if len(values) == 0 {
			delete(s.data, sid)
		}
		return nil, ErrNoValue
	}
	if remove {
		delete(values, key)
		if len(values) == 0 {
			delete(s.data, sid)
		}
		return e.value, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, sid, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.data[sid]
	if !ok {
		values = make(map[string]entry)
		s.data[sid] = values
	}
	values[key] = entry{value: v, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sid string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.data[sid]
	if !ok {
		return nil
	}
	now := s.now()
	for key, e := range values {
		if !e.expires.After(now) {
			delete(values, key)
			continue
		}
		e.expires = now.Add(ttl)
		values[key] = e
	}
	if len(values) == 0 {
		delete(s.data, sid)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values, ok := s.data[sid]; ok {
		delete(values, key)
		if len(values) == 0 {
			delete(s.data, sid)
		}
	}
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sid)
	return nil
}

// Sweep drops every expired value and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for sid, values := range s.data {
		for key, e := range values {
			if !e.expires.After(now) {
				delete(values, key)
				removed++
			}
		}
		if len(values) == 0 {
			delete(s.data, sid)
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.l.Debug("expired session values removed", zap.Int("count", n))
			}
		}
	}
}
