package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("session: invalid token")

type Config struct {
	CookieName string
	Secret     []byte
	TTL        time.Duration
	Secure     bool
}

// Manager binds requests to sessions through a signed cookie. The cookie is
// an HS256 JWT whose subject is the session id.
type Manager struct {
	cfg   Config
	store Store
	l     *zap.Logger
}

func NewManager(cfg Config, store Store, l *zap.Logger) *Manager {
	return &Manager{cfg: cfg, store: store, l: l}
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is missing, forged or expired. Stored values and the re-issued
// cookie both slide with activity.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	var sid string
	if cookie, err := r.Cookie(m.cfg.CookieName); err == nil {
		sid, err = m.parse(cookie.Value)
		if err != nil {
			m.l.Debug("session cookie rejected", zap.Error(err))
		}
	}
	if sid == "" {
		sid = uuid.NewString()
	} else if err := m.store.Touch(r.Context(), sid, m.cfg.TTL); err != nil {
		return nil, err
	}

	token, err := m.sign(sid)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return New(sid, m.store, m.cfg.TTL), nil
}

func (m *Manager) sign(sid string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
	})
	return token.SignedString(m.cfg.Secret)
}

func (m *Manager) parse(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if _, err = uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
