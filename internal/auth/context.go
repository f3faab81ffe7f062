package auth

import (
	"context"

	"github.com/menumarket/menumarket/internal/identity"
)

type identityKey struct{}

// WithIdentity attaches an authenticated identity to ctx.
func WithIdentity(ctx context.Context, user identity.User) context.Context {
	return context.WithValue(ctx, identityKey{}, user)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (identity.User, bool) {
	user, ok := ctx.Value(identityKey{}).(identity.User)
	return user, ok
}
