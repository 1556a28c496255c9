package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is a view of one client's values in a Store.
type Session struct {
	id    string
	store Store
	ttl   time.Duration
}

func New(id string, store Store, ttl time.Duration) *Session {
	return &Session{id: id, store: store, ttl: ttl}
}

func (s *Session) ID() string {
	return s.id
}

// Get decodes the value under key into dst. It reports false when the key
// is absent or expired.
func (s *Session) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.store.Get(ctx, s.id, key)
	return s.decode(key, raw, err, dst)
}

func (s *Session) Insert(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: failed to encode %q: %w", key, err)
	}
	return s.store.Set(ctx, s.id, key, raw, s.ttl)
}

// Remove decodes the value under key into dst and deletes it. A value can be
// removed only once, even under concurrent callers.
func (s *Session) Remove(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.store.Take(ctx, s.id, key)
	return s.decode(key, raw, err, dst)
}

func (s *Session) Clear(ctx context.Context) error {
	return s.store.Destroy(ctx, s.id)
}

func (s *Session) decode(key string, raw []byte, err error, dst any) (bool, error) {
	if errors.Is(err, ErrNoValue) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err = json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("session: failed to decode %q: %w", key, err)
	}
	return true, nil
}
