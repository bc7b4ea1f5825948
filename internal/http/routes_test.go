package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backfeed/internal/policy"
	"backfeed/internal/repository/memstore"
	"backfeed/internal/service"
	"backfeed/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, evalLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	svc, err := service.NewAccountingService(store, policy.Default())
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, svc, store, ws.NewHub(), RouteConfig{
		Version:              "test",
		APIRateLimit:         1000,
		APIRateWindow:        time.Minute,
		EvaluationRateLimit:  evalLimit,
		EvaluationRateWindow: time.Hour,
	})
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestEvaluationFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t, 100)

	code, a := call(t, r, nethttp.MethodPost, "/api/v1/users", nil)
	require.Equal(t, nethttp.StatusCreated, code)
	assert.Equal(t, 50.0, a["tokens"])
	code, b := call(t, r, nethttp.MethodPost, "/api/v1/users", map[string]any{"reputation": 60})
	require.Equal(t, nethttp.StatusCreated, code)

	code, c := call(t, r, nethttp.MethodPost, "/api/v1/contributions", map[string]any{"user_id": a["id"]})
	require.Equal(t, nethttp.StatusCreated, code)
	assert.Equal(t, "base", c["contribution_type"])
	assert.Equal(t, 1.0, c["token_fund"])

	path := "/api/v1/contributions/1/evaluations"
	code, receipt := call(t, r, nethttp.MethodPost, path, map[string]any{"user_id": b["id"], "value": 1})
	require.Equal(t, nethttp.StatusCreated, code)
	assert.InDelta(t, 0.1607695, receipt["fee"], 1e-6)
	assert.Greater(t, receipt["contributor_token_reward"], 0.0)

	code, got := call(t, r, nethttp.MethodGet, "/api/v1/contributions/1", nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Greater(t, got["score"], 0.0)
	assert.Greater(t, got["max_score"], 0.5)

	code, list := call(t, r, nethttp.MethodGet, "/api/v1/contributions?order_by=-time", nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, 1.0, list["total"])

	code, stats := call(t, r, nethttp.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, 2.0, stats["users"])
	assert.Equal(t, 1.0, stats["active_evaluations"])

	code, hist := call(t, r, nethttp.MethodGet, "/api/v1/contributions/1/evaluations/history?evaluator_id=2", nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, hist["evaluations"], 1)

	code, ledger := call(t, r, nethttp.MethodGet, "/api/v1/users/1/ledger", nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.NotEmpty(t, ledger["entries"])
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t, 100)
	poor := map[string]any{"tokens": 0.5}
	code, _ := call(t, r, nethttp.MethodPost, "/api/v1/users", poor)
	require.Equal(t, nethttp.StatusCreated, code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"negative reputation", nethttp.MethodPost, "/api/v1/users", map[string]any{"reputation": -100}, nethttp.StatusBadRequest},
		{"unknown referrer", nethttp.MethodPost, "/api/v1/users", map[string]any{"referrer_id": 99}, nethttp.StatusNotFound},
		{"insufficient funds", nethttp.MethodPost, "/api/v1/contributions", map[string]any{"user_id": 1}, nethttp.StatusPaymentRequired},
		{"unknown type", nethttp.MethodPost, "/api/v1/contributions", map[string]any{"user_id": 1, "contribution_type": "essay"}, nethttp.StatusUnprocessableEntity},
		{"missing user", nethttp.MethodPost, "/api/v1/contributions", map[string]any{}, nethttp.StatusBadRequest},
		{"bogus ordering", nethttp.MethodGet, "/api/v1/contributions?order_by=bogus", nil, nethttp.StatusBadRequest},
		{"bad id", nethttp.MethodGet, "/api/v1/users/abc", nil, nethttp.StatusBadRequest},
		{"unknown contribution", nethttp.MethodGet, "/api/v1/contributions/5", nil, nethttp.StatusNotFound},
		{"missing value", nethttp.MethodPost, "/api/v1/contributions/5/evaluations", map[string]any{"user_id": 1}, nethttp.StatusBadRequest},
		{"unknown evaluation", nethttp.MethodGet, "/api/v1/evaluations/3", nil, nethttp.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestInvalidEvaluationValueOverHTTP(t *testing.T) {
	r := newTestRouter(t, 100)
	call(t, r, nethttp.MethodPost, "/api/v1/users", nil)
	call(t, r, nethttp.MethodPost, "/api/v1/users", nil)
	code, _ := call(t, r, nethttp.MethodPost, "/api/v1/contributions", map[string]any{"user_id": 1})
	require.Equal(t, nethttp.StatusCreated, code)

	code, body := call(t, r, nethttp.MethodPost, "/api/v1/contributions/1/evaluations", map[string]any{"user_id": 2, "value": 5})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Contains(t, body["error"], "invalid evaluation value")
}

func TestEvaluationRateLimitPerEvaluator(t *testing.T) {
	r := newTestRouter(t, 2)
	for i := 0; i < 3; i++ {
		call(t, r, nethttp.MethodPost, "/api/v1/users", nil)
	}
	code, _ := call(t, r, nethttp.MethodPost, "/api/v1/contributions", map[string]any{"user_id": 1})
	require.Equal(t, nethttp.StatusCreated, code)

	path := "/api/v1/contributions/1/evaluations"
	for i := 0; i < 2; i++ {
		code, _ = call(t, r, nethttp.MethodPost, path, map[string]any{"user_id": 2, "value": i % 2})
		require.Equal(t, nethttp.StatusCreated, code)
	}
	code, _ = call(t, r, nethttp.MethodPost, path, map[string]any{"user_id": 2, "value": 1})
	assert.Equal(t, nethttp.StatusTooManyRequests, code)

	code, _ = call(t, r, nethttp.MethodPost, path, map[string]any{"user_id": 3, "value": 1})
	assert.Equal(t, nethttp.StatusCreated, code)
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, 100)
	for _, p := range []string{"/health", "/healthz", "/readyz"} {
		code, body := call(t, r, nethttp.MethodGet, p, nil)
		assert.Equal(t, nethttp.StatusOK, code, p)
		assert.NotEmpty(t, body["status"], p)
	}

	_, body := call(t, r, nethttp.MethodGet, "/readyz", nil)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 0.0, body["feed_clients"])
	assert.Equal(t, map[string]any{"store": "healthy"}, body["checks"])

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
