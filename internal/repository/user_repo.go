package repository

import (
	"bytes"
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

// UserRepository maps usernames to stable user ids and their passkeys.
type UserRepository struct {
	mu       sync.RWMutex
	nameToID map[string]string
	users    map[string]*models.User
	l        *zap.Logger
}

func NewUserRepository(l *zap.Logger) *UserRepository {
	return &UserRepository{
		nameToID: make(map[string]string),
		users:    make(map[string]*models.User),
		l:        l,
	}
}

func (r *UserRepository) LookupID(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[username]
	return id, ok
}

func (r *UserRepository) GetUser(userID string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		r.l.Debug("user not found", zap.String("user_id", userID))
		return models.User{}, models.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *UserRepository) GetByUsername(username string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[username]
	if !ok {
		r.l.Debug("username not found", zap.String("username", username))
		return models.User{}, models.ErrUserNotFound
	}
	user, ok := r.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return user.Clone(), nil
}

// AddCredential appends a credential to userID, creating the record and the
// username mapping on first use.
func (r *UserRepository) AddCredential(userID, username string, credential webauthn.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bound, ok := r.nameToID[username]; ok && bound != userID {
		r.l.Debug("username bound to another user",
			zap.String("username", username),
			zap.String("user_id", userID),
			zap.String("bound_id", bound))
		return models.ErrUsernameTaken
	}
	user, ok := r.users[userID]
	if !ok {
		user = &models.User{ID: userID, Username: username}
		r.users[userID] = user
	}
	user.Credentials = append(user.Credentials, credential)
	r.nameToID[username] = userID
	r.l.Debug("credential added",
		zap.String("user_id", userID),
		zap.Int("credentials", len(user.Credentials)))
	return nil
}

// UpdateCredential replaces the stored credential with the same id, carrying
// the new sign counter and flags.
func (r *UserRepository) UpdateCredential(userID string, credential webauthn.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	for i := range user.Credentials {
		if bytes.Equal(user.Credentials[i].ID, credential.ID) {
			user.Credentials[i] = credential
			r.l.Debug("credential updated",
				zap.String("user_id", userID),
				zap.Uint32("sign_count", credential.Authenticator.SignCount))
			return nil
		}
	}
	return models.ErrCredentialNotFound
}
