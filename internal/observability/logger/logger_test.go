package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	tenantID := uuid.New()
	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	ctx = tenantcontext.WithIdentity(ctx, tenantcontext.Identity{ID: tenantID})
	ctx = obscontext.WithJob(ctx, "welcome_email", "job-1")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, tenantID.String(), fields["tenant_id"])
	assert.Equal(t, "welcome_email", fields["job"])
	assert.Equal(t, "job-1", fields["job_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextUnboundOmitsTenant(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	WithContext(context.Background(), zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "tenant_id")
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())

	sql := func() (string, int64) { return "SELECT * FROM tenants WHERE api_key_hash = ?", 0 }
	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sql, errors.New("connection refused"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO policies VALUES (?)"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "SET", operationFromSQL("SET LOCAL app.current_tenant_id = ?"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
