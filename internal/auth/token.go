package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/identity"
)

var (
	ErrMissingToken    = errors.New("missing token")
	ErrMalformedToken  = errors.New("malformed token")
	ErrExpiredToken    = errors.New("token expired")
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Claims are the session token claims. Subject carries the identity id.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is a signed session token.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs session tokens.
type Issuer struct {
	keys   KeySource
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer. now may be nil.
func NewIssuer(keys KeySource, ttl time.Duration, issuer string, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{keys: keys, ttl: ttl, issuer: issuer, now: now}
}

// Issue signs a token bound to identityID that expires after the configured TTL.
func (i *Issuer) Issue(identityID string) (Token, error) {
	if identityID == "" {
		return Token{}, errors.New("identity id is required")
	}
	// Claims carry whole seconds; truncate so iat and exp match what is enforced.
	now := i.now().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   identityID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}}

	key := i.keys.SigningKey()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, IssuedAt: claims.IssuedAt.Time, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// IdentityResolver looks identities up by id.
type IdentityResolver interface {
	FindByID(ctx context.Context, id string) (identity.User, error)
}

// Authenticator validates inbound session tokens and resolves the bound identity.
// It never mutates state and is safe for concurrent use.
type Authenticator struct {
	keys   KeySource
	users  IdentityResolver
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. now may be nil.
func NewAuthenticator(keys KeySource, users IdentityResolver, issuer string, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{keys: keys, users: users, issuer: issuer, now: now}
}

// Authenticate verifies raw and returns the identity it names.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (identity.User, error) {
	sub, err := a.verify(raw)
	if err != nil {
		return identity.User{}, err
	}

	user, err := a.users.FindByID(ctx, sub)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrUnknownIdentity
		}
		return identity.User{}, fmt.Errorf("%w: resolve identity: %v", entitlement.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (a *Authenticator) verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		secret, ok := a.keys.VerificationKey(kid)
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrMalformedToken
	}
	return claims.Subject, nil
}
