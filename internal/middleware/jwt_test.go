package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/menumarket/menumarket/internal/auth"
	"github.com/menumarket/menumarket/internal/identity"
	"github.com/menumarket/menumarket/internal/logging"
)

type stubAuthenticator struct {
	users map[string]identity.User
	err   error
}

func (s stubAuthenticator) Authenticate(_ context.Context, raw string) (identity.User, error) {
	if s.err != nil {
		return identity.User{}, s.err
	}
	if raw == "" {
		return identity.User{}, auth.ErrMissingToken
	}
	user, ok := s.users[raw]
	if !ok {
		return identity.User{}, auth.ErrMalformedToken
	}
	return user, nil
}

type reasons []string

func (r *reasons) AuthFailure(reason string) { *r = append(*r, reason) }

func newJWTApp(authn TokenAuthenticator, failures AuthFailureRecorder) *fiber.App {
	app := fiber.New()
	app.Use(JWTAuth(authn, failures, logging.Discard()))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user, ok := auth.IdentityFromContext(c.UserContext())
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		uid, _ := c.Locals(userIDLocal).(string)
		return c.SendString(user.Username + ":" + uid)
	})
	return app
}

func TestJWTAuthAttachesIdentity(t *testing.T) {
	failures := &reasons{}
	app := newJWTApp(stubAuthenticator{users: map[string]identity.User{"good": {ID: "u1", Username: "bep"}}}, failures)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "bep:u1", string(body))
	require.Empty(t, *failures)
}

func TestJWTAuthRejections(t *testing.T) {
	failures := &reasons{}
	app := newJWTApp(stubAuthenticator{users: map[string]identity.User{}}, failures)

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer forged", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, tc.want, resp.StatusCode, tc.header)
	}
	require.Equal(t, reasons{"missing_token", "missing_token", "malformed_token"}, *failures)
}

func TestJWTAuthStoreFailureIs500(t *testing.T) {
	app := newJWTApp(stubAuthenticator{err: context.DeadlineExceeded}, nil)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestJWTAuthWithRealTokens(t *testing.T) {
	ring, err := auth.NewKeyRing(auth.Key{ID: "k1", Secret: []byte("mw-secret")})
	require.NoError(t, err)
	users := identity.NewMemoryRepository()
	require.NoError(t, users.Create(context.Background(), identity.User{ID: "u7", Username: "dau_bep", Email: "dau@example.com", CreatedAt: time.Now()}))

	now := time.Now()
	clock := func() time.Time { return now }
	token, err := auth.NewIssuer(ring, time.Hour, "menumarket", clock).Issue("u7")
	require.NoError(t, err)

	failures := &reasons{}
	app := newJWTApp(auth.NewAuthenticator(ring, users, "menumarket", clock), failures)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "bearer "+token.Value)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	now = now.Add(2 * time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token.Value)
	resp2, err := app.Test(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	require.Equal(t, reasons{"expired_token"}, *failures)
}
