package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/menumarket/menumarket/internal/config"
	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/identity"
	"github.com/menumarket/menumarket/internal/logging"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	clock  *testClock
	ring   *KeyRing
	users  identity.Repository
	user   identity.User
	issuer *Issuer
	authn  *Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	ring, err := NewKeyRing(Key{ID: "k1", Secret: []byte("first-secret")})
	require.NoError(t, err)

	users := identity.NewMemoryRepository()
	ids, err := identity.NewService(users, logging.Discard(), identity.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	user, err := ids.Register(context.Background(), identity.Registration{Username: "bep_nha", Email: "bep@example.com", Password: "nuoc-mam-42"})
	require.NoError(t, err)

	return &fixture{
		clock:  clock,
		ring:   ring,
		users:  users,
		user:   user,
		issuer: NewIssuer(ring, time.Hour, "menumarket", clock.Now),
		authn:  NewAuthenticator(ring, users, "menumarket", clock.Now),
	}
}

func TestTokenLifecycleBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)
	require.Equal(t, f.clock.now.Add(time.Hour), token.ExpiresAt)

	got, err := f.authn.Authenticate(ctx, token.Value)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, got.ID)

	f.clock.Advance(time.Hour - time.Second)
	_, err = f.authn.Authenticate(ctx, token.Value)
	require.NoError(t, err, "token must be valid just before expiry")

	f.clock.Advance(time.Second)
	_, err = f.authn.Authenticate(ctx, token.Value)
	require.ErrorIs(t, err, ErrExpiredToken, "token must be expired exactly at expiry")
}

func TestTokenLifecycleBoundarySubSecondIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Advance(900 * time.Millisecond)

	token, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)
	issuedAt := f.clock.now.Truncate(time.Second)
	require.Equal(t, issuedAt, token.IssuedAt)
	require.Equal(t, issuedAt.Add(time.Hour), token.ExpiresAt)

	f.clock.now = token.ExpiresAt.Add(-time.Millisecond)
	_, err = f.authn.Authenticate(ctx, token.Value)
	require.NoError(t, err, "token must be valid until its reported expiry")

	f.clock.now = token.ExpiresAt
	_, err = f.authn.Authenticate(ctx, token.Value)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)

	otherRing, err := NewKeyRing(Key{ID: "k1", Secret: []byte("attacker-secret")})
	require.NoError(t, err)
	forged, err := NewIssuer(otherRing, time.Hour, "menumarket", f.clock.Now).Issue(f.user.ID)
	require.NoError(t, err)

	unknownKidRing, err := NewKeyRing(Key{ID: "k9", Secret: []byte("first-secret")})
	require.NoError(t, err)
	unknownKid, err := NewIssuer(unknownKidRing, time.Hour, "menumarket", f.clock.Now).Issue(f.user.ID)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   f.user.ID,
		ExpiresAt: jwt.NewNumericDate(f.clock.now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := NewIssuer(f.ring, time.Hour, "elsewhere", f.clock.Now).Issue(f.user.ID)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-token", ErrMalformedToken},
		{"truncated", valid.Value[:len(valid.Value)-4], ErrMalformedToken},
		{"forged signature", forged.Value, ErrMalformedToken},
		{"unknown key id", unknownKid.Value, ErrMalformedToken},
		{"alg none", unsigned, ErrMalformedToken},
		{"wrong issuer", wrongIssuer.Value, ErrMalformedToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.authn.Authenticate(ctx, tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthenticateUnknownIdentity(t *testing.T) {
	f := newFixture(t)

	token, err := f.issuer.Issue("3f1d0c9e-0000-4000-8000-000000000000")
	require.NoError(t, err)

	_, err = f.authn.Authenticate(context.Background(), token.Value)
	require.ErrorIs(t, err, ErrUnknownIdentity)
}

type brokenResolver struct{}

func (brokenResolver) FindByID(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("connection refused")
}

func TestAuthenticateStoreFailureIsNotAuthFailure(t *testing.T) {
	f := newFixture(t)
	authn := NewAuthenticator(f.ring, brokenResolver{}, "menumarket", f.clock.Now)

	token, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), token.Value)
	require.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrUnknownIdentity)
}

func TestKeyRotationKeepsOutstandingTokensValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)

	require.NoError(t, f.ring.Rotate(Key{ID: "k2", Secret: []byte("second-secret")}))
	require.Equal(t, "k2", f.ring.SigningKey().ID)

	fresh, err := f.issuer.Issue(f.user.ID)
	require.NoError(t, err)

	_, err = f.authn.Authenticate(ctx, old.Value)
	require.NoError(t, err, "token signed with the previous key must still verify")
	_, err = f.authn.Authenticate(ctx, fresh.Value)
	require.NoError(t, err)

	f.ring.Retire("k1")
	_, err = f.authn.Authenticate(ctx, old.Value)
	require.ErrorIs(t, err, ErrMalformedToken)
	_, err = f.authn.Authenticate(ctx, fresh.Value)
	require.NoError(t, err)
}

func TestKeyRingValidation(t *testing.T) {
	_, err := NewKeyRing(Key{ID: "", Secret: []byte("x")})
	require.Error(t, err)

	_, err = NewKeyRing(Key{ID: "k1", Secret: []byte("x")}, Key{ID: "k1", Secret: []byte("y")})
	require.Error(t, err)

	ring, err := NewKeyRing(Key{ID: "k1", Secret: []byte("x")})
	require.NoError(t, err)
	require.Error(t, ring.Rotate(Key{ID: "k1", Secret: []byte("z")}))
}

func TestContextCarriesIdentity(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	require.False(t, ok)

	ctx := WithIdentity(context.Background(), identity.User{ID: "u1"})
	user, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", user.ID)
}

func TestReloadKeys(t *testing.T) {
	ring, err := NewKeyRing(Key{ID: "k1", Secret: []byte("one")}, Key{ID: "k0", Secret: []byte("zero")})
	require.NoError(t, err)

	cfg := config.Config{JWTKeyID: "k2", JWTSecret: "two", JWTPreviousKeys: map[string]string{"k1": "one"}}
	require.NoError(t, ReloadKeys(ring, cfg))
	require.Equal(t, "k2", ring.SigningKey().ID)
	require.Equal(t, []string{"k1"}, ring.PreviousIDs())

	// Same settings again is a no-op.
	require.NoError(t, ReloadKeys(ring, cfg))
	require.Equal(t, []string{"k1"}, ring.PreviousIDs())

	cfg.JWTSecret = "two-changed"
	require.Error(t, ReloadKeys(ring, cfg), "a key id must not silently change its secret")
}
