package tenant

import (
	"context"

	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/repository"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/resolver"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("tenant",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(NewCache),
	fx.Provide(NewResolver),
	fx.Provide(func(c *resolver.Cached) tenantdomain.KeyCache { return c }),
	fx.Invoke(registerDemoSeed),
)

type ResolverParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    tenantdomain.Repository
	Redis   redis.UniversalClient `optional:"true"`
	Metrics *metrics.Metrics      `optional:"true"`
}

// NewCache fronts the tenants table with Redis. It returns nil when Redis is
// not configured; a nil cache still accepts Invalidate.
func NewCache(p ResolverParams) *resolver.Cached {
	if p.Redis == nil {
		return nil
	}
	return resolver.NewCached(resolver.NewStore(p.DB, p.Repo), p.Redis, resolver.CacheConfig{
		TTL:         p.Config.Redis.TenantCacheTTL,
		NegativeTTL: p.Config.Redis.TenantNegativeTTL,
	}, p.Log, p.Metrics)
}

// NewResolver builds the credential resolver: the tenants table, or the
// Redis cache in front of it, with latency metrics on the outside.
func NewResolver(p ResolverParams, cache *resolver.Cached) tenantdomain.Resolver {
	var r tenantdomain.Resolver = resolver.NewStore(p.DB, p.Repo)
	if cache != nil {
		r = cache
	}
	return resolver.NewInstrumented(r, p.Metrics)
}

func registerDemoSeed(lc fx.Lifecycle, cfg config.Config, svc tenantdomain.Service, log *zap.Logger) {
	if !cfg.SeedDemoTenants || cfg.IsProduction() {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("seeding demo tenants")
			return svc.EnsureDemoTenants(ctx)
		},
	})
}
