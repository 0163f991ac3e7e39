package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/email"
	"github.com/jamesbarnes665/compliGenie-backend/internal/ratelimit"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/repository"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant/resolver"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/internal/worker"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentEmail struct {
	to       []string
	template string
	data     interface{}
	tenant   tenantcontext.Identity
	bound    bool
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (r *recordingEmail) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	id, bound := tenantcontext.Current(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{to: to, template: templateName, data: data, tenant: id, bound: bound})
	return nil
}

type fixture struct {
	db    *gorm.DB
	svc   tenantdomain.Service
	pool  *worker.Pool
	email *recordingEmail
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}, &tenantdomain.TenantBranding{}))

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pool := worker.New(worker.Params{
		Config: worker.Config{Concurrency: 2, JobTimeout: time.Second},
		Log:    zap.NewNop(),
		Clock:  clk,
	})
	rec := &recordingEmail{}

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: config.Config{DashboardDomain: "compligenie.com"},
		Clock:  clk,
		Repo:   repository.Provide(),
		Jobs:   pool,
		Email:  rec,
	})
	return fixture{db: db, svc: svc, pool: pool, email: rec}
}

func drain(t *testing.T, pool *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))
}

func validRegistration() tenantdomain.RegisterRequest {
	return tenantdomain.RegisterRequest{
		CompanyName:              "Acme Legal Partners",
		Email:                    "Ops@AcmeLegal.com",
		Website:                  "https://acmelegal.com",
		Industry:                 "Legal",
		EstimatedMonthlyPolicies: 40,
	}
}

func TestRegisterIssuesKeyThatResolves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.APIKey, tenantdomain.APIKeyPrefix))
	assert.True(t, strings.HasPrefix(resp.Subdomain, "acme-legal-partners-"))
	assert.Len(t, resp.Subdomain, len("acme-legal-partners-")+6)
	assert.Equal(t, "https://"+resp.Subdomain+".compligenie.com", resp.DashboardURL)
	assert.NotEmpty(t, resp.StripeOnboardingURL)
	assert.NotEmpty(t, resp.Message)

	// only the hash is persisted
	var stored tenantdomain.Tenant
	require.NoError(t, f.db.First(&stored, "subdomain = ?", resp.Subdomain).Error)
	assert.Equal(t, tenantdomain.HashAPIKey(resp.APIKey), stored.APIKeyHash)
	assert.NotContains(t, stored.APIKeyHash, resp.APIKey)
	assert.Equal(t, "ops@acmelegal.com", stored.ContactEmail)
	assert.Equal(t, tenantdomain.IndustryLegal, stored.Industry)

	id, found, err := resolver.NewStore(f.db, repository.Provide()).Resolve(ctx, resp.APIKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored.ID, id.ID)
	assert.Equal(t, "Acme Legal Partners", id.DisplayName)
}

func TestRegisterSendsWelcomeAsNewTenant(t *testing.T) {
	f := setup(t)

	// a caller with a different tenant bound must not leak into the job
	caller := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{ID: uuid.New()})
	resp, err := f.svc.Register(caller, validRegistration())
	require.NoError(t, err)
	drain(t, f.pool)

	var stored tenantdomain.Tenant
	require.NoError(t, f.db.First(&stored, "subdomain = ?", resp.Subdomain).Error)

	require.Len(t, f.email.sent, 1)
	sent := f.email.sent[0]
	assert.Equal(t, []string{"ops@acmelegal.com"}, sent.to)
	assert.Equal(t, email.TemplateWelcome, sent.template)
	assert.True(t, sent.bound)
	assert.Equal(t, stored.ID, sent.tenant.ID)
	data, ok := sent.data.(email.WelcomeData)
	require.True(t, ok)
	assert.Equal(t, resp.DashboardURL, data.DashboardURL)
}

func TestRegisterValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*tenantdomain.RegisterRequest)
		want   error
	}{
		{"short name", func(r *tenantdomain.RegisterRequest) { r.CompanyName = "A" }, tenantdomain.ErrInvalidCompanyName},
		{"bad email", func(r *tenantdomain.RegisterRequest) { r.Email = "not-an-email" }, tenantdomain.ErrInvalidEmail},
		{"free email", func(r *tenantdomain.RegisterRequest) { r.Email = "founder@gmail.com" }, tenantdomain.ErrFreeEmailDomain},
		{"free email case", func(r *tenantdomain.RegisterRequest) { r.Email = "founder@ProtonMail.com" }, tenantdomain.ErrFreeEmailDomain},
		{"website", func(r *tenantdomain.RegisterRequest) { r.Website = "acme" }, tenantdomain.ErrInvalidWebsite},
		{"industry", func(r *tenantdomain.RegisterRequest) { r.Industry = "crypto" }, tenantdomain.ErrInvalidIndustry},
		{"volume", func(r *tenantdomain.RegisterRequest) { r.EstimatedMonthlyPolicies = 10001 }, tenantdomain.ErrInvalidVolume},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRegistration()
			tc.mutate(&req)
			_, err := f.svc.Register(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	req := validRegistration()
	req.CompanyName = "acme legal partners"
	_, err = f.svc.Register(ctx, req)
	assert.ErrorIs(t, err, tenantdomain.ErrConflict)
}

func TestEnsureDemoTenantsIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureDemoTenants(ctx))
	require.NoError(t, f.svc.EnsureDemoTenants(ctx))

	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(tenantdomain.DemoTenants)), count)

	store := resolver.NewStore(f.db, repository.Provide())
	for _, demo := range tenantdomain.DemoTenants {
		id, found, err := store.Resolve(ctx, demo.APIKey)
		require.NoError(t, err)
		require.True(t, found, demo.Subdomain)
		assert.Equal(t, demo.ID, id.ID)
		assert.True(t, id.HasPaymentAccount())
	}
}

func TestCreateTestTenantAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.CreateTestTenant(ctx, tenantdomain.TestTenantRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Name, "Test Tenant "))
	assert.NotEmpty(t, created.APIKey)

	_, err = f.svc.CreateTestTenant(ctx, tenantdomain.TestTenantRequest{Industry: "crypto"})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidIndustry)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.TenantID, list[0].ID)
	assert.Equal(t, tenantdomain.IndustryGeneral, list[0].Industry)
}

func TestCurrentAndBrandingRequireTenant(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Current(context.Background())
	assert.ErrorIs(t, err, tenantcontext.ErrNoTenant)
	_, err = f.svc.Branding(context.Background())
	assert.ErrorIs(t, err, tenantcontext.ErrNoTenant)

	require.NoError(t, f.svc.EnsureDemoTenants(context.Background()))
	demo := tenantdomain.DemoTenants[0]
	ctx := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{
		ID:                demo.ID,
		DisplayName:       demo.Name,
		PaymentAccountRef: demo.PaymentAccountRef,
	})

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, demo.ID, current.TenantID)
	assert.True(t, current.PaymentOnboarded)

	branding, err := f.svc.Branding(ctx)
	require.NoError(t, err)
	assert.Equal(t, demo.Name, branding.CompanyName)

	// tenants without a branding row get defaults
	other := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{ID: uuid.New(), DisplayName: "Bare"})
	branding, err = f.svc.Branding(other)
	require.NoError(t, err)
	assert.Equal(t, "Bare", branding.CompanyName)
	assert.Equal(t, "#000000", branding.PrimaryColor)
}

func TestRegisterConflictsWhileNameIsLocked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	svc := New(Params{
		DB:     f.db,
		Log:    zap.NewNop(),
		Config: config.Config{DashboardDomain: "compligenie.com"},
		Clock:  clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Jobs:   f.pool,
		Email:  f.email,
		Locker: locker,
	})

	held, err := locker.Acquire(ctx, "register:acme legal partners", time.Minute)
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegistration())
	assert.ErrorIs(t, err, tenantdomain.ErrConflict)

	require.NoError(t, held.Release(ctx))
	_, err = svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	drain(t, f.pool)

	keys := mr.Keys()
	assert.Empty(t, keys, "registration releases its lock")
}

func TestRotateAPIKeyRetiresOldKeyFromCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := resolver.NewCached(
		resolver.NewStore(f.db, repository.Provide()),
		client,
		resolver.CacheConfig{TTL: time.Hour},
		zap.NewNop(),
		nil,
	)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := New(Params{
		DB:     f.db,
		Log:    zap.NewNop(),
		Config: config.Config{DashboardDomain: "compligenie.com"},
		Clock:  clock.NewFakeClock(now),
		Repo:   repository.Provide(),
		Jobs:   f.pool,
		Email:  f.email,
		Keys:   cache,
	})

	created, err := svc.CreateTestTenant(ctx, tenantdomain.TestTenantRequest{Name: "Rotating Co"})
	require.NoError(t, err)

	// warm the cache with the old key
	id, found, err := cache.Resolve(ctx, created.APIKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, mr.Keys(), 1)

	_, err = svc.RotateAPIKey(ctx)
	assert.ErrorIs(t, err, tenantcontext.ErrNoTenant)

	resp, err := svc.RotateAPIKey(tenantcontext.WithIdentity(ctx, id))
	require.NoError(t, err)
	assert.Equal(t, created.TenantID, resp.TenantID)
	assert.Equal(t, now, resp.RotatedAt)
	assert.NotEqual(t, created.APIKey, resp.APIKey)
	assert.True(t, strings.HasPrefix(resp.APIKey, tenantdomain.APIKeyPrefix))

	_, found, err = cache.Resolve(ctx, created.APIKey)
	require.NoError(t, err)
	assert.False(t, found, "old key must stop resolving before the cache TTL")

	next, found, err := cache.Resolve(ctx, resp.APIKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.TenantID, next.ID)
}

func TestRotateAPIKeyUnknownTenant(t *testing.T) {
	f := setup(t)
	ghost := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{ID: uuid.New()})

	_, err := f.svc.RotateAPIKey(ghost)
	assert.ErrorIs(t, err, tenantdomain.ErrNotFound)
}
