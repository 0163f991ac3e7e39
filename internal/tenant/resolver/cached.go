package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix      = "compligenie:tenant:key:"
	defaultPositiveTTL  = 5 * time.Minute
	defaultNegativeTTL  = 30 * time.Second
	sharedLookupTimeout = 5 * time.Second

	cacheResultHit         = "hit"
	cacheResultNegativeHit = "negative_hit"
	cacheResultMiss        = "miss"
	cacheResultError       = "error"
)

type CacheConfig struct {
	TTL         time.Duration
	NegativeTTL time.Duration
}

// Cached decorates a Resolver with a Redis cache keyed by credential hash.
// Cache failures fall through to the inner resolver.
type Cached struct {
	inner       tenantdomain.Resolver
	client      redis.UniversalClient
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	log         *zap.Logger
	metrics     *metrics.Metrics
}

type cachedIdentity struct {
	Found             bool   `json:"found"`
	ID                string `json:"id,omitempty"`
	DisplayName       string `json:"name,omitempty"`
	PaymentAccountRef string `json:"payment_ref,omitempty"`
}

type resolution struct {
	identity tenantcontext.Identity
	found    bool
}

func NewCached(inner tenantdomain.Resolver, client redis.UniversalClient, cfg CacheConfig, log *zap.Logger, m *metrics.Metrics) *Cached {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultPositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = defaultNegativeTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{
		inner:       inner,
		client:      client,
		ttl:         cfg.TTL,
		negativeTTL: cfg.NegativeTTL,
		log:         log.Named("tenant.resolver.cache"),
		metrics:     m,
	}
}

func (c *Cached) Resolve(ctx context.Context, credential string) (tenantcontext.Identity, bool, error) {
	if credential == "" {
		return tenantcontext.Identity{}, false, nil
	}

	hash := tenantdomain.HashAPIKey(credential)
	if res, ok := c.lookup(ctx, hash); ok {
		return res.identity, res.found, nil
	}

	// The lookup is shared by every caller presenting the same key, so it
	// must not inherit the cancellation of whichever request started it.
	ch := c.group.DoChan(hash, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()

		id, found, err := c.inner.Resolve(shared, credential)
		if err != nil {
			return nil, err
		}
		c.store(shared, hash, id, found)
		return resolution{identity: id, found: found}, nil
	})

	select {
	case <-ctx.Done():
		return tenantcontext.Identity{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return tenantcontext.Identity{}, false, r.Err
		}
		res := r.Val.(resolution)
		return res.identity, res.found, nil
	}
}

// Invalidate drops the cached resolution for a key hash. A nil cache is a no-op.
func (c *Cached) Invalidate(ctx context.Context, keyHash string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+keyHash).Err()
}

func (c *Cached) lookup(ctx context.Context, hash string) (resolution, bool) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+hash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordResolverCache(ctx, cacheResultMiss)
			return resolution{}, false
		}
		c.metrics.RecordResolverCache(ctx, cacheResultError)
		c.log.Warn("tenant cache read failed", zap.Error(err))
		return resolution{}, false
	}

	var entry cachedIdentity
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.metrics.RecordResolverCache(ctx, cacheResultError)
		c.log.Warn("tenant cache entry corrupt", zap.Error(err))
		return resolution{}, false
	}
	if !entry.Found {
		c.metrics.RecordResolverCache(ctx, cacheResultNegativeHit)
		return resolution{}, true
	}

	id, err := uuid.Parse(entry.ID)
	if err != nil || id == uuid.Nil {
		c.metrics.RecordResolverCache(ctx, cacheResultError)
		return resolution{}, false
	}
	c.metrics.RecordResolverCache(ctx, cacheResultHit)
	return resolution{
		identity: tenantcontext.Identity{
			ID:                id,
			DisplayName:       entry.DisplayName,
			PaymentAccountRef: entry.PaymentAccountRef,
		},
		found: true,
	}, true
}

func (c *Cached) store(ctx context.Context, hash string, id tenantcontext.Identity, found bool) {
	entry := cachedIdentity{Found: found}
	ttl := c.negativeTTL
	if found {
		entry.ID = id.ID.String()
		entry.DisplayName = id.DisplayName
		entry.PaymentAccountRef = id.PaymentAccountRef
		ttl = c.ttl
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+hash, raw, ttl).Err(); err != nil {
		c.log.Warn("tenant cache write failed", zap.Error(err))
	}
}
