package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), " ")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestTenantIDFromContext(t *testing.T) {
	assert.Empty(t, TenantIDFromContext(context.Background()))

	id := uuid.New()
	ctx := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{ID: id})
	assert.Equal(t, id.String(), TenantIDFromContext(ctx))
}

func TestJob(t *testing.T) {
	_, ok := JobFromContext(context.Background())
	assert.False(t, ok)

	job, ok := JobFromContext(WithJob(context.Background(), "welcome_email", "01J"))
	assert.True(t, ok)
	assert.Equal(t, Job{Name: "welcome_email", ID: "01J"}, job)
}
