package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/config"
	"github.com/amerfu/llmgate/internal/database"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/billing"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/key"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
	"github.com/amerfu/llmgate/internal/services/usage"
	"github.com/amerfu/llmgate/internal/testutil"
)

const testAdminKey = "test-admin-secret"

// fakeUpstream stands in for both vendors. Setting failStatus makes every
// endpoint return that status until cleared.
type fakeUpstream struct {
	failStatus atomic.Int32
}

func (f *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := f.failStatus.Load(); status > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(status))
			_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			return
		}

		body, _ := io.ReadAll(r.Body)
		stream := gjson.GetBytes(body, "stream").Bool()

		switch r.URL.Path {
		case "/v1/chat/completions":
			if stream {
				writeSSE(w,
					`data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"delta":{"content":"Hi"},"finish_reason":"stop"}]}`+"\n\n",
					`data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5000,"completion_tokens":2000}}`+"\n\n",
					"data: [DONE]\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"Hi"}}],"usage":{"prompt_tokens":5000,"completion_tokens":2000}}`))

		case "/v1/messages":
			if stream {
				writeSSE(w,
					"event: message_start\n"+`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":5,"output_tokens":1}}}`+"\n\n",
					"event: content_block_delta\n"+`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}`+"\n\n",
					"event: message_delta\n"+`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`+"\n\n",
					"event: message_stop\n"+`data: {"type":"message_stop"}`+"\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"Hello"}],"usage":{"input_tokens":5,"output_tokens":7}}`))

		case "/v1/responses":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"resp_1","model":"gpt-4.1","output":[],"usage":{"input_tokens":100,"output_tokens":50}}`))

		default:
			http.NotFound(w, r)
		}
	})
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, e := range events {
		_, _ = io.WriteString(w, e)
		flusher.Flush()
	}
}

type gatewayFixture struct {
	t        *testing.T
	baseURL  string
	upstream *fakeUpstream
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, dbCleanup := testutil.NewTestDB(t)
	t.Cleanup(dbCleanup)

	// The readiness probe checks the package-global connection.
	database.DB = db

	mr := miniredis.RunT(t)

	up := &fakeUpstream{}
	upstreamSrv := httptest.NewServer(up.handler())
	t.Cleanup(upstreamSrv.Close)

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 10 * time.Second
	cfg.Server.StreamIdleTimeout = 10 * time.Second
	cfg.Server.AdminTimeout = 10 * time.Second
	cfg.Admin.Key = testAdminKey
	cfg.Providers.OpenAI = config.ProviderConfig{APIKey: "sk-test", BaseURL: upstreamSrv.URL}
	cfg.Providers.Anthropic = config.ProviderConfig{APIKey: "sk-ant-test", BaseURL: upstreamSrv.URL}
	cfg.Cache = config.CacheConfig{MaxEntries: 1000, TTLSeconds: 300}
	cfg.CORS.AllowedOrigins = []string{"*"}

	logger := zap.NewNop()

	bus, err := cache.NewBus("redis://"+mr.Addr(), "cache_invalidation", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	replicaCache := cache.New(cfg.Cache, logger)
	t.Cleanup(replicaCache.Close)
	bus.Listen(replicaCache.Invalidate)

	accounts := account.NewService(db, logger)
	keys := key.NewService(db, logger)
	prices := pricing.NewService(db, logger)
	usageSvc := usage.NewService(db, logger)
	ledger := billing.NewLedger(billing.NewCachedPrices(replicaCache, prices), accounts, usageSvc, bus, logger)

	handler := New(Deps{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Cache:    replicaCache,
		Bus:      bus,
		Registry: providers.NewRegistry(cfg, logger),
		Accounts: accounts,
		Keys:     keys,
		Prices:   prices,
		Usage:    usageSvc,
		Ledger:   ledger,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &gatewayFixture{t: t, baseURL: srv.URL, upstream: up}
}

// request sends one HTTP request and returns the status and full body.
func (g *gatewayFixture) request(method, path, bearer string, payload interface{}) (int, []byte) {
	g.t.Helper()

	var body io.Reader
	if payload != nil {
		switch p := payload.(type) {
		case string:
			body = strings.NewReader(p)
		default:
			raw, err := json.Marshal(payload)
			require.NoError(g.t, err)
			body = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, g.baseURL+path, body)
	require.NoError(g.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(g.t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(g.t, err)
	return resp.StatusCode, respBody
}

func (g *gatewayFixture) spentUSD(clientKey string) float64 {
	g.t.Helper()
	status, body := g.request(http.MethodGet, "/v1/account", clientKey, nil)
	require.Equal(g.t, http.StatusOK, status, "account snapshot: %s", body)
	return gjson.GetBytes(body, "spent_usd").Float()
}

// adminSpentUSD reads the balance through the admin surface, which works even
// while the account is over budget and the client routes turn it away.
func (g *gatewayFixture) adminSpentUSD() float64 {
	g.t.Helper()
	status, body := g.request(http.MethodGet, "/admin/accounts/acme", testAdminKey, nil)
	require.Equal(g.t, http.StatusOK, status, "admin account read: %s", body)
	return gjson.GetBytes(body, "spent_usd").Float()
}

func TestGatewayEndToEnd(t *testing.T) {
	g := newGatewayFixture(t)

	var clientKey string

	t.Run("admin surface requires the admin secret", func(t *testing.T) {
		status, _ := g.request(http.MethodGet, "/admin/accounts", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = g.request(http.MethodGet, "/admin/accounts", "wrong-secret", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("provision tenant and prices", func(t *testing.T) {
		status, body := g.request(http.MethodPost, "/admin/accounts", testAdminKey, map[string]interface{}{
			"user_id":      "acme",
			"account_name": "Acme Corp",
			"budget_usd":   10.0,
		})
		require.Equal(t, http.StatusOK, status, "create account: %s", body)

		status, body = g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
			"user_id":  "acme",
			"key_name": "primary",
		})
		require.Equal(t, http.StatusOK, status, "create key: %s", body)
		clientKey = gjson.GetBytes(body, "key").String()
		require.True(t, strings.HasPrefix(clientKey, "gw-"))

		for _, model := range []string{"gpt-4o", "claude-sonnet-4-20250514"} {
			status, body = g.request(http.MethodPost, "/admin/costs", testAdminKey, map[string]interface{}{
				"model_name":  model,
				"provider":    "openai",
				"input_rate":  1000.0,
				"output_rate": 1000.0,
			})
			require.Equal(t, http.StatusOK, status, "set price: %s", body)
		}

		status, _ = g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
			"user_id":  "nobody",
			"key_name": "dangling",
		})
		assert.Equal(t, http.StatusNotFound, status, "keys cannot dangle off missing accounts")
	})

	t.Run("a zero budget is exhausted from the start", func(t *testing.T) {
		status, _ := g.request(http.MethodPost, "/admin/accounts", testAdminKey, map[string]interface{}{
			"user_id":    "freeloader",
			"budget_usd": 0.0,
		})
		require.Equal(t, http.StatusOK, status)

		status, body := g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
			"user_id":  "freeloader",
			"key_name": "primary",
		})
		require.Equal(t, http.StatusOK, status)
		zeroKey := gjson.GetBytes(body, "key").String()

		status, body = g.request(http.MethodPost, "/v1/chat/completions", zeroKey, map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "budget_exceeded", gjson.GetBytes(body, "error.type").String())
	})

	t.Run("client auth rejects unknown and missing keys", func(t *testing.T) {
		status, body := g.request(http.MethodPost, "/v1/chat/completions", "", map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "authentication_error", gjson.GetBytes(body, "error.type").String())

		status, _ = g.request(http.MethodPost, "/v1/chat/completions", "gw-"+strings.Repeat("z", 48), map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("request validation happens before the upstream", func(t *testing.T) {
		status, body := g.request(http.MethodPost, "/v1/chat/completions", clientKey, `{"messages":[{"role":"user","content":"hi"}]}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, gjson.GetBytes(body, "error.message").String(), "model")

		status, _ = g.request(http.MethodPost, "/v1/chat/completions", clientKey, `{not json`)
		assert.Equal(t, http.StatusBadRequest, status)

		status, body = g.request(http.MethodPost, "/v1/messages", clientKey, map[string]interface{}{
			"model": "claude-sonnet-4-20250514", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, gjson.GetBytes(body, "error.message").String(), "max_tokens")

		assert.Zero(t, g.spentUSD(clientKey), "validation failures are not billed")
	})

	t.Run("unary completion forwards and bills", func(t *testing.T) {
		status, body := g.request(http.MethodPost, "/v1/chat/completions", clientKey, map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		require.Equal(t, http.StatusOK, status, "completion: %s", body)
		assert.Equal(t, "chatcmpl-1", gjson.GetBytes(body, "id").String(), "upstream body passes through")

		// 7000 tokens at $1000/1M each class.
		assert.InDelta(t, 7.0, g.spentUSD(clientKey), 1e-9)
	})

	t.Run("budget exhaustion turns requests away", func(t *testing.T) {
		status, body := g.request(http.MethodPatch, "/admin/accounts/acme", testAdminKey, map[string]interface{}{
			"budget_usd": 5.0,
		})
		require.Equal(t, http.StatusOK, status, "shrink budget: %s", body)

		// The invalidation rides the bus; poll an unbilled route until the
		// admission gate sees the new budget.
		require.Eventually(t, func() bool {
			status, _ := g.request(http.MethodGet, "/v1/models", clientKey, nil)
			return status == http.StatusTooManyRequests
		}, 5*time.Second, 50*time.Millisecond)

		status, body = g.request(http.MethodPost, "/v1/chat/completions", clientKey, map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "budget_exceeded", gjson.GetBytes(body, "error.type").String())

		assert.InDelta(t, 7.0, g.adminSpentUSD(), 1e-9, "turned-away requests never debit")
	})

	t.Run("restoring the budget restores admission", func(t *testing.T) {
		status, _ := g.request(http.MethodPatch, "/admin/accounts/acme", testAdminKey, map[string]interface{}{
			"budget_usd": 1000.0,
		})
		require.Equal(t, http.StatusOK, status)

		require.Eventually(t, func() bool {
			status, _ := g.request(http.MethodGet, "/v1/models", clientKey, nil)
			return status == http.StatusOK
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("streaming forwards events and bills once", func(t *testing.T) {
		before := g.spentUSD(clientKey)

		req, err := http.NewRequest(http.MethodPost, g.baseURL+"/v1/messages",
			strings.NewReader(`{"model":"claude-sonnet-4-20250514","max_tokens":100,"stream":true,"messages":[{"role":"user","content":"hi"}]}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+clientKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		text := string(body)

		// Events arrive in upstream order, bytes intact.
		startIdx := strings.Index(text, "event: message_start")
		deltaIdx := strings.Index(text, "event: content_block_delta")
		stopIdx := strings.Index(text, "event: message_stop")
		require.True(t, startIdx >= 0 && deltaIdx > startIdx && stopIdx > deltaIdx, "stream: %s", text)
		assert.Contains(t, text, `"output_tokens":7`)

		// 12 tokens at $1000/1M, settled exactly once.
		require.Eventually(t, func() bool {
			spent := g.spentUSD(clientKey)
			return spent > before && spent-before < 0.0121
		}, 5*time.Second, 50*time.Millisecond)
		assert.InDelta(t, before+0.012, g.spentUSD(clientKey), 1e-9)
	})

	t.Run("upstream rejection maps and bills zero", func(t *testing.T) {
		before := g.spentUSD(clientKey)

		g.upstream.failStatus.Store(http.StatusTooManyRequests)
		defer g.upstream.failStatus.Store(0)

		status, body := g.request(http.MethodPost, "/v1/chat/completions", clientKey, map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "rate_limit_exceeded", gjson.GetBytes(body, "error.type").String())
		assert.Equal(t, "upstream says no", gjson.GetBytes(body, "error.message").String())

		assert.InDelta(t, before, g.spentUSD(clientKey), 1e-9, "failed requests cost nothing")
	})

	t.Run("upstream auth failure never leaks upstream detail", func(t *testing.T) {
		g.upstream.failStatus.Store(http.StatusUnauthorized)
		defer g.upstream.failStatus.Store(0)

		status, body := g.request(http.MethodPost, "/v1/chat/completions", clientKey, map[string]interface{}{
			"model": "gpt-4o", "messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "upstream_auth_error", gjson.GetBytes(body, "error.type").String())
		assert.NotContains(t, gjson.GetBytes(body, "error.message").String(), "upstream says no")
	})

	t.Run("usage summary aggregates the ledger", func(t *testing.T) {
		status, body := g.request(http.MethodGet, "/admin/usage/acme", testAdminKey, nil)
		require.Equal(t, http.StatusOK, status, "usage summary: %s", body)

		// Two billable completions plus two failed upstream calls; the gate's
		// own rejections never reach the ledger.
		assert.Equal(t, int64(4), gjson.GetBytes(body, "total_requests").Int())
		assert.InDelta(t, 7.012, gjson.GetBytes(body, "total_cost").Float(), 1e-9)
		assert.InDelta(t, 7.012, gjson.GetBytes(body, "current_spent_usd").Float(), 1e-9)
	})

	t.Run("model allow-list restricts key reach", func(t *testing.T) {
		status, body := g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
			"user_id":        "acme",
			"key_name":       "narrow",
			"allowed_models": []string{"gpt-4o"},
		})
		require.Equal(t, http.StatusOK, status)
		narrowKey := gjson.GetBytes(body, "key").String()

		status, body = g.request(http.MethodPost, "/v1/messages", narrowKey, map[string]interface{}{
			"model": "claude-sonnet-4-20250514", "max_tokens": 100,
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "authorization_error", gjson.GetBytes(body, "error.type").String())

		status, body = g.request(http.MethodGet, "/v1/models", narrowKey, nil)
		require.Equal(t, http.StatusOK, status)
		models := gjson.GetBytes(body, "data.#.id").Array()
		require.Len(t, models, 1, "listing only shows reachable models")
		assert.Equal(t, "gpt-4o", models[0].String())
	})

	t.Run("key revocation propagates across the bus", func(t *testing.T) {
		status, _ := g.request(http.MethodPatch, "/admin/keys/"+clientKey, testAdminKey, map[string]interface{}{
			"is_active": false,
		})
		require.Equal(t, http.StatusOK, status)

		require.Eventually(t, func() bool {
			status, body := g.request(http.MethodGet, "/v1/models", clientKey, nil)
			return status == http.StatusForbidden &&
				gjson.GetBytes(body, "error.type").String() == "authorization_error"
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("probes and metrics are public", func(t *testing.T) {
		status, _ := g.request(http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = g.request(http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, status)

		status, body := g.request(http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(body), "llmgate_http_requests_total")
		// Upstream failures label the status the upstream actually returned.
		assert.Contains(t, string(body), `llmgate_upstream_errors_total{provider="openai",status="429"}`)
		assert.Contains(t, string(body), `llmgate_upstream_errors_total{provider="openai",status="401"}`)

		status, body = g.request(http.MethodGet, "/no/such/route", "", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found_error", gjson.GetBytes(body, "error.type").String())
	})
}

func TestGatewayResponsesEndpoint(t *testing.T) {
	g := newGatewayFixture(t)

	status, _ := g.request(http.MethodPost, "/admin/accounts", testAdminKey, map[string]interface{}{
		"user_id": "acme", "budget_usd": 100.0,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
		"user_id": "acme", "key_name": "primary",
	})
	require.Equal(t, http.StatusOK, status)
	clientKey := gjson.GetBytes(body, "key").String()

	status, _ = g.request(http.MethodPost, "/admin/costs", testAdminKey, map[string]interface{}{
		"model_name": "gpt-4.1", "provider": "openai", "input_rate": 2.0, "output_rate": 8.0,
	})
	require.Equal(t, http.StatusOK, status)

	status, body = g.request(http.MethodPost, "/v1/responses", clientKey, map[string]interface{}{
		"model": "gpt-4.1", "input": "hi",
	})
	require.Equal(t, http.StatusOK, status, "responses call: %s", body)
	assert.Equal(t, "resp_1", gjson.GetBytes(body, "id").String())

	// 100 in at $2/1M + 50 out at $8/1M = $0.0006.
	assert.InDelta(t, 0.0006, g.spentUSD(clientKey), 1e-9)

	// A price update rides the bus into the settle path's cached rate card.
	status, _ = g.request(http.MethodPost, "/admin/costs", testAdminKey, map[string]interface{}{
		"model_name": "gpt-4.1", "provider": "openai", "input_rate": 4.0, "output_rate": 16.0,
	})
	require.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		before := g.spentUSD(clientKey)
		status, _ := g.request(http.MethodPost, "/v1/responses", clientKey, map[string]interface{}{
			"model": "gpt-4.1", "input": "hi",
		})
		if status != http.StatusOK {
			return false
		}
		// 100 in at $4/1M + 50 out at $16/1M = $0.0012 once the new card lands.
		return g.spentUSD(clientKey)-before > 0.00119
	}, 5*time.Second, 50*time.Millisecond)

	status, body = g.request(http.MethodPost, "/v1/responses", clientKey, map[string]interface{}{
		"model": "gpt-4.1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, gjson.GetBytes(body, "error.message").String(), "input")
}

func TestGatewayAccountSnapshot(t *testing.T) {
	g := newGatewayFixture(t)

	status, _ := g.request(http.MethodPost, "/admin/accounts", testAdminKey, map[string]interface{}{
		"user_id": "acme", "account_name": "Acme Corp", "budget_usd": 25.0,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := g.request(http.MethodPost, "/admin/keys", testAdminKey, map[string]interface{}{
		"user_id": "acme", "key_name": "primary", "allowed_models": []string{"gpt-4o"},
	})
	require.Equal(t, http.StatusOK, status)
	clientKey := gjson.GetBytes(body, "key").String()

	status, body = g.request(http.MethodGet, "/v1/account", clientKey, nil)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "acme", gjson.GetBytes(body, "user_id").String())
	assert.Equal(t, "Acme Corp", gjson.GetBytes(body, "account_name").String())
	assert.Equal(t, 25.0, gjson.GetBytes(body, "budget_usd").Float())
	assert.Equal(t, 25.0, gjson.GetBytes(body, "remaining_budget_usd").Float())
	assert.Equal(t, "primary", gjson.GetBytes(body, "key_name").String())
	assert.Equal(t, "gpt-4o", gjson.GetBytes(body, "allowed_models.0").String())

	// The data plane never echoes the bearer key back.
	assert.NotContains(t, string(body), clientKey)
}
