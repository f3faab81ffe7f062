package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/auth"
	"github.com/menumarket/menumarket/internal/identity"
	"github.com/menumarket/menumarket/internal/logging"
)

const userIDLocal = "user_id"

// TokenAuthenticator validates a raw session token.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (identity.User, error)
}

// AuthFailureRecorder counts rejected tokens by reason.
type AuthFailureRecorder interface {
	AuthFailure(reason string)
}

// JWTAuth validates the bearer token and attaches the identity to the request.
// Every token problem is a 401; a failed identity lookup is a 500.
func JWTAuth(authn TokenAuthenticator, failures AuthFailureRecorder, logger *slog.Logger) fiber.Handler {
	logger = logging.Component(logger, "auth")
	return func(c *fiber.Ctx) error {
		user, err := authn.Authenticate(c.UserContext(), bearerToken(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			reason := failureReason(err)
			if reason == "" {
				logger.Error("token identity lookup failed", slog.Any("error", err))
				return fiber.NewError(http.StatusInternalServerError, "authentication unavailable")
			}
			if failures != nil {
				failures.AuthFailure(reason)
			}
			return fiber.NewError(http.StatusUnauthorized, publicMessage(err))
		}

		c.Locals(userIDLocal, user.ID)
		c.SetUserContext(auth.WithIdentity(c.UserContext(), user))
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, auth.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, auth.ErrUnknownIdentity):
		return "unknown_identity"
	default:
		return ""
	}
}

// publicMessage never echoes parser details back to the client.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return auth.ErrMissingToken.Error()
	case errors.Is(err, auth.ErrExpiredToken):
		return auth.ErrExpiredToken.Error()
	default:
		return "invalid token"
	}
}
