package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	obsmetrics "github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	"github.com/jamesbarnes665/compliGenie-backend/internal/ratelimit"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	gateExempt            = "exempt"
	gateNoCredential      = "no_credential"
	gateInvalidCredential = "invalid_credential"
	gateResolverError     = "resolver_error"
	gateBound             = "bound"
	gateThrottled         = "throttled"
)

type TenantGateParams struct {
	fx.In

	Tenancy  config.TenancyConfig
	Resolver tenantdomain.Resolver
	Log      *zap.Logger
	Limiter  *ratelimit.AuthFailureLimiter `optional:"true"`
	Metrics  *obsmetrics.Metrics           `optional:"true"`
}

// TenantGate resolves the request credential to a tenant and binds it for the
// lifetime of the request.
type TenantGate struct {
	header   string
	exempt   []string
	resolver tenantdomain.Resolver
	limiter  *ratelimit.AuthFailureLimiter
	metrics  *obsmetrics.Metrics
	log      *zap.Logger
}

func NewTenantGate(p TenantGateParams) *TenantGate {
	header := strings.TrimSpace(p.Tenancy.CredentialHeader)
	if header == "" {
		header = config.DefaultCredentialHeader
	}
	exempt := make([]string, 0, len(p.Tenancy.ExemptPrefixes))
	for _, prefix := range p.Tenancy.ExemptPrefixes {
		if prefix = normalizePrefix(prefix); prefix != "" {
			exempt = append(exempt, prefix)
		}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &TenantGate{
		header:   header,
		exempt:   exempt,
		resolver: p.Resolver,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
		log:      log.Named("tenant.gate"),
	}
}

func (g *TenantGate) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if g.isExempt(c.Request.URL.Path) {
			g.record(c, gateExempt)
			c.Next()
			return
		}

		credential := strings.TrimSpace(c.GetHeader(g.header))
		if credential == "" {
			g.record(c, gateNoCredential)
			AbortWithError(c, ErrAuthenticationRequired)
			return
		}

		identity, found, err := g.resolver.Resolve(ctx, credential)
		if err != nil {
			g.record(c, gateResolverError)
			logger.WithContext(ctx, g.log).Error("tenant resolution failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !found {
			if wait, limited := g.throttle(c); limited {
				g.record(c, gateThrottled)
				c.Header("Retry-After", retryAfterSeconds(wait))
				AbortWithError(c, ErrTooManyRequests)
				return
			}
			g.record(c, gateInvalidCredential)
			AbortWithError(c, ErrAuthenticationFailed)
			return
		}

		ctx, scope := tenantcontext.Begin(ctx)
		defer scope.End()

		tenantcontext.Bind(ctx, identity)
		c.Set(logger.GinTenantKey, identity.ID.String())
		c.Request = c.Request.WithContext(ctx)
		g.record(c, gateBound)

		c.Next()
	}
}

func (g *TenantGate) record(c *gin.Context, outcome string) {
	c.Set(obscontext.GinGateOutcomeKey, outcome)
	g.metrics.RecordGateOutcome(c.Request.Context(), outcome)
}

// throttle consumes one failed-attempt token for the client and reports how
// long it should wait when none is left. Limiter errors let the request
// through.
func (g *TenantGate) throttle(c *gin.Context) (time.Duration, bool) {
	if g.limiter == nil || g.limiter.Limiter == nil {
		return 0, false
	}
	ctx := c.Request.Context()
	decision, err := g.limiter.Allow(ctx, ratelimit.ClientKey(c.ClientIP()))
	if err != nil {
		logger.WithContext(ctx, g.log).Warn("auth failure limiter unavailable", zap.Error(err))
		return 0, false
	}
	if decision.Allowed {
		return 0, false
	}
	g.metrics.RecordRateLimitDenied(ctx, "tenant_gate", "auth_failure")
	return decision.RetryAfter, true
}

// retryAfterSeconds rounds up to whole seconds with a floor of one.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(d.Seconds())), 1))
}

func (g *TenantGate) isExempt(path string) bool {
	for _, prefix := range g.exempt {
		if matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// matchesPrefix matches on path-segment boundaries: /api/health covers
// /api/health and /api/health/db but not /api/healthz.
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}
	return prefix
}

// recoveryHandler answers panics with the standard 500 payload. A tenant
// rebind is logged as a defect.
func recoveryHandler(log *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		fields := []zap.Field{
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		}
		if err, ok := recovered.(error); ok && isTenantDefect(err) {
			logger.WithContext(c.Request.Context(), log).Error("tenant context defect", fields...)
		} else {
			logger.WithContext(c.Request.Context(), log).Error("panic recovered", fields...)
		}
		_, payload := mapError(ErrInternal)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: payload})
	}
}

func isTenantDefect(err error) bool {
	for _, target := range []error{
		tenantcontext.ErrTenantRebind,
		tenantcontext.ErrZeroTenant,
		tenantcontext.ErrNoScope,
		tenantcontext.ErrScopeEnded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
