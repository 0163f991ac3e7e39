package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func captureGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestGinMiddlewareLogsGateOutcomeWithoutCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "authentication_failed", "401" },
	}))
	r.GET("/api/policies", func(c *gin.Context) {
		c.Set(obscontext.GinGateOutcomeKey, "invalid_credential")
		_ = c.Error(errors.New("unknown key"))
		c.AbortWithStatus(http.StatusUnauthorized)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	req.Header.Set("X-API-Key", "cg_live_secret")
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "/api/policies", fields["route"])
	assert.Equal(t, "invalid_credential", fields["gate_outcome"])
	assert.Equal(t, "authentication_failed", fields["error_type"])
	assert.NotContains(t, fields, "tenant_id")
	for _, v := range fields {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "cg_live_secret")
		}
	}
}

func TestGinMiddlewareReplacesUnsafeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if id != "" {
			req.Header.Set("X-Request-Id", id)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
		assert.NoError(t, err, "request id %q should be replaced", id)
	}
}

func TestQuietRoutesLogAtDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
}
