package models

import (
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserHasNoCredentials = errors.New("user has no credentials")
	ErrUsernameTaken        = errors.New("username is bound to another user")
	ErrUsernameIsEmpty      = errors.New("username is empty")
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrCorruptSession       = errors.New("corrupt session")
	ErrVerificationFailed   = errors.New("credential verification failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
)

// User is a registered passkey holder. Credentials are owned by go-webauthn
// and only stored and replayed here.
type User struct {
	ID          string
	Username    string
	Credentials []webauthn.Credential
}

func (u *User) Clone() User {
	c := *u
	c.Credentials = make([]webauthn.Credential, len(u.Credentials))
	copy(c.Credentials, u.Credentials)
	return c
}

type UserResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
