package context

import (
	"context"
	"strings"

	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
)

// Gin context keys shared by the tenant gate and the request middlewares. The
// gate releases its tenant scope before the outer middlewares finish, so the
// outcome is copied here for them.
const (
	GinRequestIDKey   = "request_id"
	GinTenantIDKey    = "tenant_id"
	GinGateOutcomeKey = "tenant_gate_outcome"
)

type requestIDKey struct{}
type jobKey struct{}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// TenantIDFromContext returns the bound tenant id or an empty string.
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return tenantcontext.IDString(ctx)
}

// Job identifies a background job for log correlation.
type Job struct {
	Name string
	ID   string
}

func WithJob(ctx context.Context, name, id string) context.Context {
	return context.WithValue(ctx, jobKey{}, Job{Name: name, ID: id})
}

func JobFromContext(ctx context.Context) (Job, bool) {
	if ctx == nil {
		return Job{}, false
	}
	job, ok := ctx.Value(jobKey{}).(Job)
	return job, ok
}
