package passkey

import (
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jaam8/polling_server/internal/models"
)

type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// Provider runs the WebAuthn ceremonies for models.User through go-webauthn.
type Provider struct {
	w *webauthn.WebAuthn
}

func NewProvider(cfg Config) (*Provider, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("passkey: failed to configure webauthn: %w", err)
	}
	return &Provider{w: w}, nil
}

// BeginRegistration excludes the user's existing credentials so the same
// authenticator is not enrolled twice.
func (p *Provider) BeginRegistration(user models.User) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(user.Credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(user.Credentials).CredentialDescriptors()))
	}
	return p.w.BeginRegistration(&passkeyUser{user: user}, options...)
}

func (p *Provider) FinishRegistration(user models.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, err
	}
	return p.w.CreateCredential(&passkeyUser{user: user}, session, parsed)
}

func (p *Provider) BeginLogin(user models.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return p.w.BeginLogin(&passkeyUser{user: user})
}

func (p *Provider) FinishLogin(user models.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, err
	}
	return p.w.ValidateLogin(&passkeyUser{user: user}, session, parsed)
}

type passkeyUser struct {
	user models.User
}

func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *passkeyUser) WebAuthnName() string {
	return u.user.Username
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	return u.user.Username
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.user.Credentials
}
