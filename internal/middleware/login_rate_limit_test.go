package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func loginApp(cache *redis.Client, limit int) *fiber.App {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, limit), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	return app
}

func attempt(t *testing.T, app *fiber.App, identifier string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identifier":"`+identifier+`","password":"x"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestLoginRateLimitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	app := loginApp(cache, 3)

	for i := 0; i < 3; i++ {
		if got := attempt(t, app, "Chef@Example.com"); got != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, got)
		}
	}
	if got := attempt(t, app, "chef@example.com"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", got)
	}
	if got := attempt(t, app, "someone-else"); got != http.StatusOK {
		t.Fatalf("other identifiers must not be limited, got %d", got)
	}
	if ttl := mr.TTL(loginRateKeyPrefix + "chef@example.com"); ttl <= 0 {
		t.Fatalf("expected counter to expire, ttl=%s", ttl)
	}
}

func TestLoginRateLimitInProcessFallback(t *testing.T) {
	app := loginApp(nil, 2)

	if got := attempt(t, app, "an"); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
	if got := attempt(t, app, "an"); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
	if got := attempt(t, app, "an"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
}
