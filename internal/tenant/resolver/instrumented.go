package resolver

import (
	"context"
	"time"

	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
)

// Instrumented records resolution latency by outcome.
type Instrumented struct {
	inner   tenantdomain.Resolver
	metrics *metrics.Metrics
}

func NewInstrumented(inner tenantdomain.Resolver, m *metrics.Metrics) *Instrumented {
	return &Instrumented{inner: inner, metrics: m}
}

func (r *Instrumented) Resolve(ctx context.Context, credential string) (tenantcontext.Identity, bool, error) {
	start := time.Now()
	id, found, err := r.inner.Resolve(ctx, credential)

	outcome := "found"
	switch {
	case err != nil:
		outcome = "error"
	case !found:
		outcome = "not_found"
	}
	r.metrics.ObserveResolve(ctx, time.Since(start), outcome)
	return id, found, err
}
