package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemory() (*MemoryStore, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(zap.NewNop())
	s.now = c.Now
	return s, c
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, c := newMemory()

	require.NoError(t, s.Set(ctx, "sid", "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "sid", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	c.Advance(time.Minute)
	_, err = s.Get(ctx, "sid", "k")
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestMemoryStore_TakeOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemory()
	require.NoError(t, s.Set(ctx, "sid", "k", []byte("v"), time.Minute))

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "sid", "k"); err == nil {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, taken)
}

func TestMemoryStore_IsolatesSessions(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemory()
	require.NoError(t, s.Set(ctx, "a", "k", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", "k", []byte("2"), time.Minute))

	require.NoError(t, s.Destroy(ctx, "a"))
	_, err := s.Get(ctx, "a", "k")
	assert.ErrorIs(t, err, ErrNoValue)

	got, err := s.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s, c := newMemory()
	require.NoError(t, s.Set(ctx, "a", "short", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "a", "long", []byte("2"), time.Hour))
	require.NoError(t, s.Set(ctx, "b", "short", []byte("3"), time.Second))

	c.Advance(time.Minute)
	assert.Equal(t, 2, s.Sweep())
	assert.Len(t, s.data, 1)
}

func TestMemoryStore_RunStopsWithContext(t *testing.T) {
	s, _ := newMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMemoryStore_TouchSlidesLiveValues(t *testing.T) {
	ctx := context.Background()
	s, c := newMemory()
	require.NoError(t, s.Set(ctx, "sid", "user_id", []byte("u1"), time.Minute))
	require.NoError(t, s.Set(ctx, "sid", "reg_state", []byte("1"), 10*time.Second))

	c.Advance(30 * time.Second)
	require.NoError(t, s.Touch(ctx, "sid", time.Minute))
	c.Advance(50 * time.Second)

	got, err := s.Get(ctx, "sid", "user_id")
	require.NoError(t, err)
	assert.Equal(t, []byte("u1"), got)
	_, err = s.Get(ctx, "sid", "reg_state")
	assert.ErrorIs(t, err, ErrNoValue)

	require.NoError(t, s.Touch(ctx, "missing", time.Minute))
	assert.NotContains(t, s.data, "missing")
}

type state struct {
	Challenge string `json:"challenge"`
}

func TestSession_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemory()
	sess := New("sid", store, time.Minute)

	var got state
	ok, err := sess.Get(ctx, "reg_state", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sess.Insert(ctx, "reg_state", state{Challenge: "c1"}))
	ok, err = sess.Get(ctx, "reg_state", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", got.Challenge)

	ok, err = sess.Remove(ctx, "reg_state", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = sess.Remove(ctx, "reg_state", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "sid", "broken", []byte("{"), time.Minute))
	_, err = sess.Get(ctx, "broken", &got)
	assert.Error(t, err)

	require.NoError(t, sess.Insert(ctx, "user_id", "u1"))
	require.NoError(t, sess.Clear(ctx))
	var userID string
	ok, err = sess.Get(ctx, "user_id", &userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func newManager() *Manager {
	m, _, _ := newManagerWithTTL(time.Minute)
	return m
}

func newManagerWithTTL(ttl time.Duration) (*Manager, *MemoryStore, *clock) {
	store, c := newMemory()
	return NewManager(Config{
		CookieName: "webauthn",
		Secret:     []byte("test-secret"),
		TTL:        ttl,
	}, store, zap.NewNop()), store, c
}

func TestManager_IssuesAndReadsCookie(t *testing.T) {
	m := newManager()

	rec := httptest.NewRecorder()
	first, err := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "webauthn", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	second, err := m.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
}

func TestManager_RejectsForeignTokens(t *testing.T) {
	m := newManager()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7d0c0f5e-4a53-4c1a-9a59-3c0f0e0c8e11",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7d0c0f5e-4a53-4c1a-9a59-3c0f0e0c8e11",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, value := range map[string]string{
		"garbage": "not-a-token",
		"forged":  forged,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "webauthn", Value: value})

			sess, err := m.Load(httptest.NewRecorder(), req)
			require.NoError(t, err)
			assert.NotEqual(t, "7d0c0f5e-4a53-4c1a-9a59-3c0f0e0c8e11", sess.ID())
		})
	}
}

func TestManager_ActiveSessionOutlivesTTL(t *testing.T) {
	ctx := context.Background()
	m, _, c := newManagerWithTTL(560 * time.Second)

	rec := httptest.NewRecorder()
	sess, err := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sess.Insert(ctx, "user_id", "u1"))
	cookie := rec.Result().Cookies()[0]

	for elapsed := 100 * time.Second; elapsed <= 1200*time.Second; elapsed += 100 * time.Second {
		c.Advance(100 * time.Second)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		got, err := m.Load(httptest.NewRecorder(), req)
		require.NoError(t, err)
		require.Equal(t, sess.ID(), got.ID())

		var userID string
		ok, err := got.Get(ctx, "user_id", &userID)
		require.NoError(t, err)
		require.True(t, ok, "logged out after %s", elapsed)
		assert.Equal(t, "u1", userID)
	}

	c.Advance(560 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	idle, err := m.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	var userID string
	ok, err := idle.Get(ctx, "user_id", &userID)
	require.NoError(t, err)
	assert.False(t, ok)
}
