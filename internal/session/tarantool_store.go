package session

import (
	"context"
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

// Conn is the subset of *tarantool.Connection used by TarantoolStore.
type Conn interface {
	Select(space, index interface{}, offset, limit, iterator uint32, key interface{}) (*tarantool.Response, error)
	Replace(space interface{}, tuple interface{}) (*tarantool.Response, error)
	Delete(space, index interface{}, key interface{}) (*tarantool.Response, error)
	Update(space, index interface{}, key, ops interface{}) (*tarantool.Response, error)
}

// pageSize bounds every select the store issues.
const pageSize = 256

// TarantoolStore keeps tuples {sid, key, value, expires_unix} in a space whose
// primary index is (sid, key).
//
//	box.schema.space.create('sessions', {if_not_exists = true})
//	box.space.sessions:create_index('primary', {parts = {1, 'string', 2, 'string'}, if_not_exists = true})
type TarantoolStore struct {
	db    Conn
	space string
	l     *zap.Logger
	now   func() time.Time
}

func NewTarantoolStore(db Conn, space string, l *zap.Logger) *TarantoolStore {
	return &TarantoolStore{
		db:    db,
		space: space,
		l:     l,
		now:   time.Now,
	}
}

func (s *TarantoolStore) Get(_ context.Context, sid, key string) ([]byte, error) {
	resp, err := s.db.Select(s.space, "primary", 0, 1, tarantool.IterEq, []interface{}{sid, key})
	if err != nil {
		s.l.Debug("failed to select session value", zap.Error(err))
		return nil, fmt.Errorf("session: database select error: %w", err)
	}
	s.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Int("tuples", len(resp.Data)))
	value, expired, err := s.decode(resp)
	if expired {
		if _, err = s.db.Delete(s.space, "primary", []interface{}{sid, key}); err != nil {
			s.l.Debug("failed to delete expired session value", zap.Error(err))
		}
		return nil, ErrNoValue
	}
	return value, err
}

// Take relies on Delete returning the removed tuple.
func (s *TarantoolStore) Take(_ context.Context, sid, key string) ([]byte, error) {
	resp, err := s.db.Delete(s.space, "primary", []interface{}{sid, key})
	if err != nil {
		s.l.Debug("failed to take session value", zap.Error(err))
		return nil, fmt.Errorf("session: database delete error: %w", err)
	}
	value, expired, err := s.decode(resp)
	if expired {
		return nil, ErrNoValue
	}
	return value, err
}

func (s *TarantoolStore) decode(resp *tarantool.Response) ([]byte, bool, error) {
	if len(resp.Data) == 0 {
		return nil, false, ErrNoValue
	}
	tuple, ok := resp.Data[0].([]interface{})
	if !ok || len(tuple) < 4 {
		s.l.Debug("unexpected session tuple", zap.Any("tuple", resp.Data[0]))
		return nil, false, fmt.Errorf("session: unexpected tuple %v", resp.Data[0])
	}
	expires, ok := toInt64(tuple[3])
	if !ok {
		return nil, false, fmt.Errorf("session: unexpected expiry %v", tuple[3])
	}
	if expires <= s.now().Unix() {
		return nil, true, nil
	}
	switch v := tuple[2].(type) {
	case string:
		return []byte(v), false, nil
	case []byte:
		return v, false, nil
	default:
		return nil, false, fmt.Errorf("session: unexpected value type %T", tuple[2])
	}
}

func (s *TarantoolStore) Set(_ context.Context, sid, key string, value []byte, ttl time.Duration) error {
	tuple := []interface{}{sid, key, string(value), s.now().Add(ttl).Unix()}
	resp, err := s.db.Replace(s.space, tuple)
	if err != nil {
		s.l.Debug("failed to replace session value", zap.Error(err))
		return fmt.Errorf("session: database replace error: %w", err)
	}
	s.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.String("sid", sid),
		zap.String("key", key))
	return nil
}

func (s *TarantoolStore) Delete(_ context.Context, sid, key string) error {
	if _, err := s.db.Delete(s.space, "primary", []interface{}{sid, key}); err != nil {
		s.l.Debug("failed to delete session value", zap.Error(err))
		return fmt.Errorf("session: database delete error: %w", err)
	}
	return nil
}

// Destroy deletes page by page until no tuple of sid is left.
func (s *TarantoolStore) Destroy(ctx context.Context, sid string) error {
	for {
		resp, err := s.db.Select(s.space, "primary", 0, pageSize, tarantool.IterEq, []interface{}{sid})
		if err != nil {
			s.l.Debug("failed to select session", zap.Error(err))
			return fmt.Errorf("session: database select error: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil
		}
		for _, raw := range resp.Data {
			_, key, _, ok := splitTuple(raw)
			if !ok {
				return fmt.Errorf("session: unexpected tuple %v", raw)
			}
			if err = s.Delete(ctx, sid, key); err != nil {
				return err
			}
		}
	}
}

// Touch updates expires_unix in place. Update is a no-op for a tuple that
// Take has already removed, so consumed values stay gone.
func (s *TarantoolStore) Touch(_ context.Context, sid string, ttl time.Duration) error {
	now := s.now()
	expires := now.Add(ttl).Unix()
	var offset uint32
	for {
		resp, err := s.db.Select(s.space, "primary", offset, pageSize, tarantool.IterEq, []interface{}{sid})
		if err != nil {
			s.l.Debug("failed to select session", zap.Error(err))
			return fmt.Errorf("session: database select error: %w", err)
		}
		for _, raw := range resp.Data {
			_, key, exp, ok := splitTuple(raw)
			if !ok || exp <= now.Unix() {
				continue
			}
			ops := []interface{}{[]interface{}{"=", 3, expires}}
			if _, err = s.db.Update(s.space, "primary", []interface{}{sid, key}, ops); err != nil {
				s.l.Debug("failed to touch session value", zap.Error(err))
				return fmt.Errorf("session: database update error: %w", err)
			}
		}
		if len(resp.Data) < pageSize {
			return nil
		}
		offset += pageSize
	}
}

// Sweep walks the primary index in key order and deletes expired tuples.
// It reports how many were removed.
func (s *TarantoolStore) Sweep(ctx context.Context) (int, error) {
	now := s.now().Unix()
	removed := 0
	iterator, from := uint32(tarantool.IterAll), []interface{}{}
	for {
		resp, err := s.db.Select(s.space, "primary", 0, pageSize, iterator, from)
		if err != nil {
			s.l.Debug("failed to scan sessions", zap.Error(err))
			return removed, fmt.Errorf("session: database select error: %w", err)
		}
		for _, raw := range resp.Data {
			sid, key, exp, ok := splitTuple(raw)
			if !ok {
				continue
			}
			from = []interface{}{sid, key}
			if exp > now {
				continue
			}
			if err = s.Delete(ctx, sid, key); err != nil {
				return removed, err
			}
			removed++
		}
		if len(resp.Data) < pageSize {
			return removed, nil
		}
		iterator = tarantool.IterGt
	}
}

// Run sweeps every interval until ctx is done. Failed sweeps are logged and retried.
func (s *TarantoolStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.l.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.l.Debug("expired session values removed", zap.Int("count", n))
			}
		}
	}
}

func splitTuple(raw interface{}) (sid, key string, expires int64, ok bool) {
	tuple, isTuple := raw.([]interface{})
	if !isTuple || len(tuple) < 4 {
		return "", "", 0, false
	}
	if sid, ok = tuple[0].(string); !ok {
		return "", "", 0, false
	}
	if key, ok = tuple[1].(string); !ok {
		return "", "", 0, false
	}
	if expires, ok = toInt64(tuple[3]); !ok {
		return "", "", 0, false
	}
	return sid, key, expires, true
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int16:
		return int64(n), true
	default:
		return 0, false
	}
}
