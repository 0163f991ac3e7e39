package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability"
	"github.com/jamesbarnes665/compliGenie-backend/internal/ratelimit"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/resolver"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	legalKey  = "demo-api-key-legal-12345"
	healthKey = "demo-api-key-health-67890"
)

var (
	gateLegal  = tenantcontext.Identity{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), DisplayName: "Demo Legal Platform"}
	gateHealth = tenantcontext.Identity{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), DisplayName: "Demo Healthcare Platform"}
)

// countingResolver delegates to a static key set and counts lookups.
type countingResolver struct {
	inner *resolver.Static
	err   error
	calls atomic.Int64
}

func newCountingResolver() *countingResolver {
	return &countingResolver{inner: resolver.NewStatic(map[string]tenantcontext.Identity{
		legalKey:  gateLegal,
		healthKey: gateHealth,
	})}
}

func (r *countingResolver) Resolve(ctx context.Context, credential string) (tenantcontext.Identity, bool, error) {
	r.calls.Add(1)
	if r.err != nil {
		return tenantcontext.Identity{}, false, r.err
	}
	return r.inner.Resolve(ctx, credential)
}

type gateHarness struct {
	engine   *gin.Engine
	resolver *countingResolver

	mu       sync.Mutex
	captured []context.Context
}

func newGateHarness(t *testing.T, limiter *ratelimit.AuthFailureLimiter) *gateHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &gateHarness{resolver: newCountingResolver()}
	gate := NewTenantGate(TenantGateParams{
		Tenancy:  config.DefaultTenancyConfig(),
		Resolver: h.resolver,
		Log:      zap.NewNop(),
		Limiter:  limiter,
	})

	r := NewEngine(observability.Config{}, nil, zap.NewNop())
	r.Use(gate.Handler())

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/health", ok)
	r.GET("/api/health", ok)
	r.GET("/api/health/db", ok)
	r.GET("/api/healthz", ok)
	r.GET("/api/setup/tenants", ok)
	r.POST("/api/partners/register", ok)
	r.GET("/api/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		h.mu.Lock()
		h.captured = append(h.captured, ctx)
		h.mu.Unlock()

		id, err := tenantcontext.Require(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenantId": id.ID.String()})
	})
	r.GET("/api/rebind", func(c *gin.Context) {
		ctx := c.Request.Context()
		h.mu.Lock()
		h.captured = append(h.captured, ctx)
		h.mu.Unlock()

		tenantcontext.Bind(ctx, gateHealth)
		c.Status(http.StatusOK)
	})

	h.engine = r
	return h
}

func (h *gateHarness) do(method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]map[string]any {
	t.Helper()
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGateRejectsMissingAndUnknownKeysWithSameShape(t *testing.T) {
	h := newGateHarness(t, nil)

	missing := h.do(http.MethodGet, "/api/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.JSONEq(t, `{"error":{"type":"authentication_required","message":"API key required"}}`, missing.Body.String())
	assert.EqualValues(t, 0, h.resolver.calls.Load())

	blank := h.do(http.MethodGet, "/api/whoami", "   ")
	assert.Equal(t, http.StatusUnauthorized, blank.Code)
	assert.EqualValues(t, 0, h.resolver.calls.Load())

	unknown := h.do(http.MethodGet, "/api/whoami", "not-a-key")
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, `{"error":{"type":"authentication_failed","message":"Invalid API key"}}`, unknown.Body.String())
	assert.EqualValues(t, 1, h.resolver.calls.Load())

	a, b := errorBody(t, missing), errorBody(t, unknown)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.ElementsMatch(t, keys(a["error"]), keys(b["error"]))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestGateExemptPathsNeverResolve(t *testing.T) {
	h := newGateHarness(t, nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/health"},
		{http.MethodGet, "/api/health/db"},
		{http.MethodGet, "/api/setup/tenants"},
		{http.MethodPost, "/api/partners/register"},
	} {
		rec := h.do(tc.method, tc.path, "not-a-key")
		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
	}
	assert.EqualValues(t, 0, h.resolver.calls.Load())

	rec := h.do(http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/healthz", legalKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, h.resolver.calls.Load())
}

func TestGateResolverFailureIsServiceUnavailable(t *testing.T) {
	h := newGateHarness(t, nil)
	h.resolver.err = errors.New("connection refused")

	rec := h.do(http.MethodGet, "/api/whoami", legalKey)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", errorBody(t, rec)["error"]["type"])
	assert.EqualValues(t, 1, h.resolver.calls.Load())
}

func TestGateBindsTenantForTheRequestOnly(t *testing.T) {
	h := newGateHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/whoami", legalKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"tenantId":%q}`, gateLegal.ID.String()), rec.Body.String())

	require.Len(t, h.captured, 1)
	_, ok := tenantcontext.Current(h.captured[0])
	assert.False(t, ok, "tenant must be unbound once the request completes")
}

func TestGateParallelRequestsStayIsolated(t *testing.T) {
	h := newGateHarness(t, nil)

	const n = 100
	var wg sync.WaitGroup
	var mismatches atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, want := legalKey, gateLegal
			if i%2 == 1 {
				key, want = healthKey, gateHealth
			}
			rec := h.do(http.MethodGet, "/api/whoami", key)
			var body struct {
				TenantID string `json:"tenantId"`
			}
			if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &body) != nil || body.TenantID != want.ID.String() {
				mismatches.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load())
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.captured, n)
	for _, ctx := range h.captured {
		_, ok := tenantcontext.Current(ctx)
		assert.False(t, ok)
	}
}

func TestGateRebindBecomesInternalError(t *testing.T) {
	h := newGateHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/rebind", legalKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", errorBody(t, rec)["error"]["type"])

	require.Len(t, h.captured, 1)
	_, ok := tenantcontext.Current(h.captured[0])
	assert.False(t, ok, "scope must be released after a panic")

	rec = h.do(http.MethodGet, "/api/whoami", healthKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateThrottlesRepeatedUnknownKeys(t *testing.T) {
	limiter := &ratelimit.AuthFailureLimiter{Limiter: ratelimit.NewLocalLimiter(0.001, 2)}
	h := newGateHarness(t, limiter)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/whoami", "bad-1").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/whoami", "bad-2").Code)

	rec := h.do(http.MethodGet, "/api/whoami", "bad-3")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too_many_requests", errorBody(t, rec)["error"]["type"])
	assert.Equal(t, "1000", rec.Header().Get("Retry-After"))

	// Valid keys are never throttled.
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/whoami", legalKey).Code)
}

func TestMatchesPrefix(t *testing.T) {
	cases := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"/api/health", "/api/health", true},
		{"/api/health/db", "/api/health", true},
		{"/api/healthz", "/api/health", false},
		{"/api", "/api/health", false},
		{"/anything", "/", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesPrefix(tc.path, tc.prefix), "%s vs %s", tc.path, tc.prefix)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, "3", retryAfterSeconds(2100*time.Millisecond))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/api/setup", normalizePrefix(" /api/setup/ "))
	assert.Equal(t, "/health", normalizePrefix("health"))
	assert.Equal(t, "/", normalizePrefix("/"))
	assert.Equal(t, "", normalizePrefix("  "))
}
