package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jaam8/polling_server/internal/models"
	"github.com/jaam8/polling_server/internal/repository"
	"github.com/jaam8/polling_server/internal/session"
	"go.uber.org/zap"
)

const (
	keyRegState  = "reg_state"
	keyAuthState = "auth_state"
	keyUserID    = "user_id"
	keyUsername  = "username"
)

// CredentialProvider verifies WebAuthn ceremonies. Challenges live in the
// returned session data, which the caller keeps until the finish step.
type CredentialProvider interface {
	BeginRegistration(user models.User) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(user models.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
	BeginLogin(user models.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	FinishLogin(user models.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
}

type registrationState struct {
	UserID   string               `json:"user_id"`
	Username string               `json:"username"`
	Data     webauthn.SessionData `json:"data"`
}

type authenticationState struct {
	UserID string               `json:"user_id"`
	Data   webauthn.SessionData `json:"data"`
}

type AuthService struct {
	users *repository.UserRepository
	p     CredentialProvider
	l     *zap.Logger
}

func NewAuthService(users *repository.UserRepository, p CredentialProvider, l *zap.Logger) *AuthService {
	return &AuthService{
		users: users,
		p:     p,
		l:     l,
	}
}

func (s *AuthService) StartRegistration(ctx context.Context, sess *session.Session, username string) (*protocol.CredentialCreation, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.ErrUsernameIsEmpty
	}
	if _, err := sess.Remove(ctx, keyRegState, &registrationState{}); err != nil {
		s.l.Debug("dropping stale registration state", zap.Error(err))
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		user = models.User{ID: uuid.NewString(), Username: username}
	}

	creation, data, err := s.p.BeginRegistration(user)
	if err != nil {
		s.l.Error("failed to begin registration", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("service: failed to begin registration: %w", err)
	}
	state := registrationState{UserID: user.ID, Username: username, Data: *data}
	if err = sess.Insert(ctx, keyRegState, state); err != nil {
		s.l.Error("failed to store registration state", zap.Error(err))
		return nil, fmt.Errorf("service: failed to store registration state: %w", err)
	}
	s.l.Info("registration started",
		zap.String("username", username),
		zap.String("user_id", user.ID))
	return creation, nil
}

func (s *AuthService) FinishRegistration(ctx context.Context, sess *session.Session, response []byte) (models.User, error) {
	var state registrationState
	ok, err := sess.Remove(ctx, keyRegState, &state)
	if err != nil {
		s.l.Warn("unreadable registration state", zap.Error(err))
		return models.User{}, models.ErrCorruptSession
	}
	if !ok {
		s.l.Warn("no pending registration", zap.String("sid", sess.ID()))
		return models.User{}, models.ErrCorruptSession
	}

	user, err := s.users.GetUser(state.UserID)
	if err != nil {
		user = models.User{ID: state.UserID, Username: state.Username}
	}
	credential, err := s.p.FinishRegistration(user, state.Data, response)
	if err != nil {
		s.l.Warn("registration verification failed",
			zap.String("username", state.Username),
			zap.Error(err))
		return models.User{}, models.ErrVerificationFailed
	}

	if err = s.users.AddCredential(state.UserID, state.Username, *credential); err != nil {
		if errors.Is(err, models.ErrUsernameTaken) {
			return models.User{}, err
		}
		s.l.Error("failed to store credential", zap.Error(err))
		return models.User{}, fmt.Errorf("service: failed to store credential: %w", err)
	}
	s.l.Info("registration finished",
		zap.String("username", state.Username),
		zap.String("user_id", state.UserID))
	return models.User{ID: state.UserID, Username: state.Username}, nil
}

func (s *AuthService) StartAuthentication(ctx context.Context, sess *session.Session, username string) (*protocol.CredentialAssertion, error) {
	if _, err := sess.Remove(ctx, keyAuthState, &authenticationState{}); err != nil {
		s.l.Debug("dropping stale authentication state", zap.Error(err))
	}

	user, err := s.users.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		s.l.Warn("unknown user", zap.String("username", username))
		return nil, err
	}
	if len(user.Credentials) == 0 {
		return nil, models.ErrUserHasNoCredentials
	}

	assertion, data, err := s.p.BeginLogin(user)
	if err != nil {
		s.l.Error("failed to begin login", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("service: failed to begin login: %w", err)
	}
	if err = sess.Insert(ctx, keyAuthState, authenticationState{UserID: user.ID, Data: *data}); err != nil {
		s.l.Error("failed to store authentication state", zap.Error(err))
		return nil, fmt.Errorf("service: failed to store authentication state: %w", err)
	}
	s.l.Info("authentication started", zap.String("user_id", user.ID))
	return assertion, nil
}

func (s *AuthService) FinishAuthentication(ctx context.Context, sess *session.Session, response []byte) (models.User, error) {
	var state authenticationState
	ok, err := sess.Remove(ctx, keyAuthState, &state)
	if err != nil {
		s.l.Warn("unreadable authentication state", zap.Error(err))
		return models.User{}, models.ErrCorruptSession
	}
	if !ok {
		s.l.Warn("no pending authentication", zap.String("sid", sess.ID()))
		return models.User{}, models.ErrCorruptSession
	}

	user, err := s.users.GetUser(state.UserID)
	if err != nil {
		return models.User{}, err
	}
	if len(user.Credentials) == 0 {
		return models.User{}, models.ErrUserHasNoCredentials
	}
	credential, err := s.p.FinishLogin(user, state.Data, response)
	if err != nil {
		s.l.Warn("authentication verification failed",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return models.User{}, models.ErrVerificationFailed
	}
	if err = s.users.UpdateCredential(user.ID, *credential); err != nil {
		s.l.Error("failed to update credential", zap.Error(err))
		return models.User{}, fmt.Errorf("service: failed to update credential: %w", err)
	}

	if err = sess.Insert(ctx, keyUserID, user.ID); err != nil {
		return models.User{}, fmt.Errorf("service: failed to store session user: %w", err)
	}
	if err = sess.Insert(ctx, keyUsername, user.Username); err != nil {
		return models.User{}, fmt.Errorf("service: failed to store session user: %w", err)
	}
	s.l.Info("authentication finished",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))
	return models.User{ID: user.ID, Username: user.Username}, nil
}

// CurrentUser returns the identity bound to the session by a successful login.
func (s *AuthService) CurrentUser(ctx context.Context, sess *session.Session) (models.User, error) {
	var user models.User
	ok, err := sess.Get(ctx, keyUserID, &user.ID)
	if err != nil || !ok || user.ID == "" {
		return models.User{}, models.ErrNotAuthenticated
	}
	if _, err = sess.Get(ctx, keyUsername, &user.Username); err != nil {
		return models.User{}, models.ErrNotAuthenticated
	}
	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if err := sess.Clear(ctx); err != nil {
		s.l.Error("failed to clear session", zap.Error(err))
		return fmt.Errorf("service: failed to clear session: %w", err)
	}
	return nil
}

// LookupUserID resolves a username for creator filters.
func (s *AuthService) LookupUserID(username string) (string, bool) {
	return s.users.LookupID(username)
}
