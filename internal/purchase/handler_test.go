package purchase

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/menumarket/menumarket/internal/entitlement"
)

func newPurchaseApp(t *testing.T) *fiber.App {
	t.Helper()
	mem := entitlement.NewInMemory()
	entitlement.SeedCoins(mem, "u1", 100)
	h := NewHandler(NewCoordinator(mem, seedItems(t, map[string]int64{"i1": 60, "i2": 50})))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	})
	app.Post("/purchase", h.Purchase)
	app.Post("/menus/:menuId/unlock", h.Unlock)
	return app
}

func doPurchase(t *testing.T, app *fiber.App, path, user, body string) (*http.Response, map[string]receiptResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var out map[string]receiptResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestPurchaseHandlerStatuses(t *testing.T) {
	app := newPurchaseApp(t)

	resp, body := doPurchase(t, app, "/purchase", "u1", `{"itemId":"i1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(40), body["receipt"].Balance)
	require.False(t, body["receipt"].Replayed)

	resp, body = doPurchase(t, app, "/menus/i1/unlock", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, body["receipt"].Replayed)
	require.Equal(t, int64(40), body["receipt"].Balance)

	resp, _ = doPurchase(t, app, "/purchase", "u1", `{"itemId":"i2"}`)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, _ = doPurchase(t, app, "/purchase", "u1", `{"itemId":"nope"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doPurchase(t, app, "/purchase", "u1", `{"itemId":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doPurchase(t, app, "/purchase", "", `{"itemId":"i1"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
