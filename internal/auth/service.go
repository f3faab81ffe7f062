package auth

import (
	"bytes"
	"fmt"

	"github.com/menumarket/menumarket/internal/config"
	"github.com/menumarket/menumarket/internal/identity"
)

// Service issues session tokens for verified identities.
type Service struct {
	issuer *Issuer
}

// NewService wires a Service around an Issuer.
func NewService(issuer *Issuer) *Service {
	return &Service{issuer: issuer}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresIn int64
	User      identity.User
}

// Login issues a token for a user whose credentials were already verified.
func (s *Service) Login(user identity.User) (Session, error) {
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token.Value,
		ExpiresIn: int64(token.ExpiresAt.Sub(token.IssuedAt).Seconds()),
		User:      user,
	}, nil
}

// KeyRingFromConfig builds the signing key ring from configuration.
func KeyRingFromConfig(cfg config.Config) (*KeyRing, error) {
	previous := make([]Key, 0, len(cfg.JWTPreviousKeys))
	for kid, secret := range cfg.JWTPreviousKeys {
		previous = append(previous, Key{ID: kid, Secret: []byte(secret)})
	}
	return NewKeyRing(Key{ID: cfg.JWTKeyID, Secret: []byte(cfg.JWTSecret)}, previous...)
}

// ReloadKeys brings a live ring in line with cfg. A new JWT_KEY_ID rotates the
// signing key; retired keys missing from JWT_PREVIOUS_KEYS stop verifying.
func ReloadKeys(ring *KeyRing, cfg config.Config) error {
	next := Key{ID: cfg.JWTKeyID, Secret: []byte(cfg.JWTSecret)}
	current := ring.SigningKey()
	switch {
	case next.ID != current.ID:
		if err := ring.Rotate(next); err != nil {
			return fmt.Errorf("rotate to %q: %w", next.ID, err)
		}
	case !bytes.Equal(next.Secret, current.Secret):
		return fmt.Errorf("key %q changed its secret; rotate to a new key id instead", next.ID)
	}
	for _, kid := range ring.PreviousIDs() {
		if _, keep := cfg.JWTPreviousKeys[kid]; !keep {
			ring.Retire(kid)
		}
	}
	return nil
}
