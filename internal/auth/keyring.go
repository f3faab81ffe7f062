package auth

import (
	"errors"
	"sort"
	"sync"
)

// Key is an HMAC signing secret and the id stamped into token headers.
type Key struct {
	ID     string
	Secret []byte
}

// KeySource resolves signing and verification secrets. Implementations are
// handed to the Issuer and Authenticator at construction; secrets never live in code.
type KeySource interface {
	SigningKey() Key
	VerificationKey(kid string) ([]byte, bool)
}

// KeyRing holds the current key plus retired keys that still verify
// outstanding tokens.
type KeyRing struct {
	mu       sync.RWMutex
	current  Key
	previous map[string][]byte
}

// NewKeyRing builds a ring from configuration.
func NewKeyRing(current Key, previous ...Key) (*KeyRing, error) {
	if current.ID == "" || len(current.Secret) == 0 {
		return nil, errors.New("current signing key requires an id and a secret")
	}
	ring := &KeyRing{current: current, previous: make(map[string][]byte, len(previous))}
	for _, k := range previous {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, errors.New("previous signing keys require an id and a secret")
		}
		if k.ID == current.ID {
			return nil, errors.New("previous key id collides with current key id")
		}
		ring.previous[k.ID] = k.Secret
	}
	return ring, nil
}

// SigningKey returns the key new tokens are signed with.
func (r *KeyRing) SigningKey() Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// VerificationKey returns the secret for kid, current or retired.
func (r *KeyRing) VerificationKey(kid string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kid == r.current.ID {
		return r.current.Secret, true
	}
	secret, ok := r.previous[kid]
	return secret, ok
}

// Rotate makes next the signing key and keeps the outgoing key for verification.
func (r *KeyRing) Rotate(next Key) error {
	if next.ID == "" || len(next.Secret) == 0 {
		return errors.New("signing key requires an id and a secret")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, used := r.previous[next.ID]; used || next.ID == r.current.ID {
		return errors.New("key id already in use")
	}
	r.previous[r.current.ID] = r.current.Secret
	r.current = next
	return nil
}

// Retire stops accepting tokens signed with kid.
func (r *KeyRing) Retire(kid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.previous, kid)
}

// PreviousIDs lists the retired key ids still accepted for verification.
func (r *KeyRing) PreviousIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.previous))
	for kid := range r.previous {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}
