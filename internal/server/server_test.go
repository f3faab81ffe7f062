package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/menumarket/menumarket/internal/config"
	"github.com/menumarket/menumarket/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:          "MenuMarket",
		AppEnv:           "test",
		Port:             "0",
		IdempotencyTTL:   time.Minute,
		JWTSecret:        "e2e-secret",
		JWTKeyID:         "k1",
		TokenTTL:         time.Hour,
		TokenIssuer:      "menumarket",
		StoreTimeout:     time.Second,
		PurchaseLockTTL:  5 * time.Second,
		SignupBonusCoins: 100,
		LoginRateLimit:   50,
	}
}

type client struct {
	t   *testing.T
	srv *Server
}

func (c client) do(method, path, token, body string) (int, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.App().Test(req, 5000)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (c client) signup(username string) string {
	c.t.Helper()
	status, _ := c.do(http.MethodPost, "/api/v1/register", "", `{"username":"`+username+`","email":"`+username+`@example.com","password":"long-enough-pw"}`)
	require.Equal(c.t, http.StatusCreated, status)

	status, body := c.do(http.MethodPost, "/api/v1/login", "", `{"identifier":"`+username+`","password":"long-enough-pw"}`)
	require.Equal(c.t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(c.t, token)
	return token
}

func TestPurchaseFlowEndToEnd(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { srv.runtime.Wait() })
	c := client{t: t, srv: srv}

	chef := c.signup("chef_minh")
	diner := c.signup("diner_lan")

	status, menu1 := c.do(http.MethodPost, "/api/v1/menus", chef, `{"title":"Pho bo","price":60,"content_ref":"recipes/pho.md"}`)
	require.Equal(t, http.StatusCreated, status)
	status, menu2 := c.do(http.MethodPost, "/api/v1/menus", chef, `{"title":"Bun cha","price":50,"content_ref":"recipes/bun-cha.md"}`)
	require.Equal(t, http.StatusCreated, status)
	id1, id2 := menu1["id"].(string), menu2["id"].(string)

	status, _ = c.do(http.MethodGet, "/api/v1/menus/"+id1+"/content", diner, "")
	require.Equal(t, http.StatusPaymentRequired, status)

	status, body := c.do(http.MethodPost, "/api/v1/purchase", diner, `{"itemId":"`+id1+`"}`)
	require.Equal(t, http.StatusOK, status)
	receipt := body["receipt"].(map[string]any)
	require.Equal(t, float64(40), receipt["balance"])
	require.Equal(t, false, receipt["replayed"])

	status, body = c.do(http.MethodPost, "/api/v1/menus/"+id1+"/unlock", diner, "")
	require.Equal(t, http.StatusOK, status)
	replay := body["receipt"].(map[string]any)
	require.Equal(t, true, replay["replayed"])
	require.Equal(t, receipt["granted_at"], replay["granted_at"])
	require.Equal(t, float64(40), replay["balance"])

	status, body = c.do(http.MethodPost, "/api/v1/purchase", diner, `{"itemId":"`+id2+`"}`)
	require.Equal(t, http.StatusPaymentRequired, status)
	require.Equal(t, "insufficient coins", body["error"])

	status, body = c.do(http.MethodGet, "/api/v1/menus/"+id1+"/content", diner, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "recipes/pho.md", body["content_ref"])

	status, body = c.do(http.MethodGet, "/api/v1/me", diner, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(40), body["coins"])
	require.Equal(t, []any{id1}, body["granted_item_ids"])

	status, _ = c.do(http.MethodPost, "/api/v1/purchase", "", `{"itemId":"`+id1+`"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.do(http.MethodPost, "/api/v1/purchase", "not.a.jwt", `{"itemId":"`+id1+`"}`)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestTopUpThenPurchase(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { srv.runtime.Wait() })
	c := client{t: t, srv: srv}

	chef := c.signup("chef_hoa")
	diner := c.signup("diner_tuan")

	_, menu := c.do(http.MethodPost, "/api/v1/menus", chef, `{"title":"Banquet","price":150,"content_ref":"recipes/banquet.md"}`)
	id := menu["id"].(string)

	topup := `{"amount":80,"card_number":"4111111111111111","client_tx_id":"tx-1"}`
	status, body := c.do(http.MethodPost, "/api/v1/wallet/topup", diner, topup)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, float64(180), body["balance"])

	status, body = c.do(http.MethodPost, "/api/v1/wallet/topup", diner, topup)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["replayed"])
	require.Equal(t, float64(180), body["balance"])

	status, body = c.do(http.MethodPost, "/api/v1/purchase", diner, `{"itemId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(30), body["receipt"].(map[string]any)["balance"])

	status, body = c.do(http.MethodGet, "/api/v1/wallet", diner, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(30), body["coins"])
	require.Len(t, body["unlocked"], 1)
}

func TestPublicEndpoints(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { srv.runtime.Wait() })
	c := client{t: t, srv: srv}

	status, body := c.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"postgres": "memory", "redis": "memory"}, body["status"])

	status, body = c.do(http.MethodGet, "/api/v1/menus", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, body["menus"])

	status, body = c.do(http.MethodPost, "/api/v1/login", "", `{"identifier":"nobody","password":"whatever-pw"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid credentials", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(raw), "menumarket_auth_failures_total")
}

func TestNewRequiresBackendsOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	_, err := New(cfg, nil, nil, logging.Discard())
	require.Error(t, err)
}

func TestReloadKeysRotatesAndRetires(t *testing.T) {
	cfg := testConfig()
	srv, err := New(cfg, nil, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { srv.runtime.Wait() })
	c := client{t: t, srv: srv}

	oldToken := c.signup("bep_xoay")

	rotated := cfg
	rotated.JWTKeyID = "k2"
	rotated.JWTSecret = "e2e-secret-2"
	rotated.JWTPreviousKeys = map[string]string{"k1": cfg.JWTSecret}
	require.NoError(t, srv.ReloadKeys(rotated))

	status, _ := c.do(http.MethodGet, "/api/v1/me", oldToken, "")
	require.Equal(t, http.StatusOK, status, "tokens from the previous key stay valid")

	status, body := c.do(http.MethodPost, "/api/v1/login", "", `{"identifier":"bep_xoay","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusOK, status)
	newToken, _ := body["token"].(string)
	require.NotEmpty(t, newToken)

	retired := rotated
	retired.JWTPreviousKeys = map[string]string{}
	require.NoError(t, srv.ReloadKeys(retired))

	status, _ = c.do(http.MethodGet, "/api/v1/me", oldToken, "")
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.do(http.MethodGet, "/api/v1/me", newToken, "")
	require.Equal(t, http.StatusOK, status)
}
