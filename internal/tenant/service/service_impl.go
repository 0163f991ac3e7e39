package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/email"
	"github.com/jamesbarnes665/compliGenie-backend/internal/ratelimit"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/internal/worker"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	jobWelcomeEmail     = "welcome_email"
	registerLockTTL     = 10 * time.Second
	registrationMessage = "Registration successful! Check your email for onboarding instructions."
	maxSubdomainSlugLen = 50
)

var freeEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"aol.com":        {},
	"icloud.com":     {},
	"mail.com":       {},
	"protonmail.com": {},
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	Repo   tenantdomain.Repository
	Jobs   *worker.Pool
	Email  email.Provider
	Locker *ratelimit.Locker     `optional:"true"`
	Keys   tenantdomain.KeyCache `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	repo            tenantdomain.Repository
	jobs            *worker.Pool
	email           email.Provider
	locker          *ratelimit.Locker
	keys            tenantdomain.KeyCache
	dashboardDomain string
}

func New(p Params) tenantdomain.Service {
	domain := strings.TrimSpace(p.Config.DashboardDomain)
	if domain == "" {
		domain = "compligenie.com"
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("tenant.service"),
		clock:           p.Clock,
		repo:            p.Repo,
		jobs:            p.Jobs,
		email:           p.Email,
		locker:          p.Locker,
		keys:            p.Keys,
		dashboardDomain: domain,
	}
}

func (s *Service) Register(ctx context.Context, req tenantdomain.RegisterRequest) (*tenantdomain.RegisterResponse, error) {
	start := s.clock.Now()

	input, err := validateRegistration(req)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, "register:"+strings.ToLower(input.name), registerLockTTL)
		switch {
		case errors.Is(err, ratelimit.ErrLockHeld):
			return nil, tenantdomain.ErrConflict
		case err != nil:
			s.log.Warn("registration lock unavailable", zap.Error(err))
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("release registration lock", zap.Error(err))
				}
			}()
		}
	}

	exists, err := s.repo.ExistsByName(ctx, s.db, input.name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, tenantdomain.ErrConflict
	}

	plain, hash, err := tenantdomain.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tenant := &tenantdomain.Tenant{
		ID:           uuid.New(),
		Name:         input.name,
		Subdomain:    newSubdomain(input.name),
		APIKeyHash:   hash,
		ContactEmail: input.email,
		Industry:     input.industry,
		Settings: datatypes.JSONMap{
			"industry":                 input.industry,
			"website":                  input.website,
			"phone":                    strings.TrimSpace(req.Phone),
			"description":              strings.TrimSpace(req.Description),
			"estimatedMonthlyPolicies": req.EstimatedMonthlyPolicies,
			"registrationDate":         now.Format(time.RFC3339),
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	branding := &tenantdomain.TenantBranding{
		TenantID:       tenant.ID,
		PrimaryColor:   "#000000",
		SecondaryColor: "#666666",
		CompanyName:    input.name,
		CompanyEmail:   input.email,
		CompanyPhone:   strings.TrimSpace(req.Phone),
		CompanyWebsite: input.website,
		FooterText:     fmt.Sprintf("Prepared by %s", input.name),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, tenant); err != nil {
			return err
		}
		return s.repo.UpsertBranding(ctx, tx, branding)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, tenantdomain.ErrConflict
		}
		return nil, err
	}

	dashboardURL := fmt.Sprintf("https://%s.%s", tenant.Subdomain, s.dashboardDomain)
	onboardingURL := dashboardURL + "/onboarding/payments"
	s.enqueueWelcome(ctx, tenant.Identity(), input.email, email.WelcomeData{
		CompanyName:   tenant.Name,
		Subdomain:     tenant.Subdomain,
		DashboardURL:  dashboardURL,
		OnboardingURL: onboardingURL,
	})

	s.log.Info("partner registered",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("industry", tenant.Industry),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)

	return &tenantdomain.RegisterResponse{
		APIKey:              plain,
		Subdomain:           tenant.Subdomain,
		DashboardURL:        dashboardURL,
		StripeOnboardingURL: onboardingURL,
		Message:             registrationMessage,
	}, nil
}

// enqueueWelcome sends the welcome email in the background as the new tenant.
// The caller's tenant, if any, is never inherited.
func (s *Service) enqueueWelcome(ctx context.Context, id tenantcontext.Identity, to string, data email.WelcomeData) {
	if s.jobs == nil || s.email == nil {
		return
	}
	_, err := s.jobs.SubmitIsolated(ctx, jobWelcomeEmail, func(jobCtx context.Context) error {
		tenantcontext.Bind(jobCtx, id)
		return s.email.SendTemplate(jobCtx, []string{to}, email.TemplateWelcome, data)
	})
	if err != nil {
		s.log.Warn("welcome email not queued", zap.String("tenant_id", id.ID.String()), zap.Error(err))
	}
}

func (s *Service) CreateTestTenant(ctx context.Context, req tenantdomain.TestTenantRequest) (*tenantdomain.TestTenantResponse, error) {
	suffix := uuid.NewString()[:6]
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Test Tenant " + suffix
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, tenantdomain.ErrInvalidCompanyName
	}
	industry := strings.ToLower(strings.TrimSpace(req.Industry))
	if industry == "" {
		industry = tenantdomain.IndustryGeneral
	}
	if !tenantdomain.IsValidIndustry(industry) {
		return nil, tenantdomain.ErrInvalidIndustry
	}

	plain, hash, err := tenantdomain.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	subdomain := newSubdomain(name)
	tenant := &tenantdomain.Tenant{
		ID:           uuid.New(),
		Name:         name,
		Subdomain:    subdomain,
		APIKeyHash:   hash,
		ContactEmail: "setup@" + subdomain + ".invalid",
		Industry:     industry,
		Settings:     datatypes.JSONMap{"industry": industry, "isTestAccount": true},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, tenantdomain.ErrConflict
		}
		return nil, err
	}

	s.log.Info("test tenant created", zap.String("tenant_id", tenant.ID.String()))
	return &tenantdomain.TestTenantResponse{
		TenantID:  tenant.ID,
		Name:      tenant.Name,
		Subdomain: tenant.Subdomain,
		APIKey:    plain,
	}, nil
}

func (s *Service) List(ctx context.Context) ([]tenantdomain.Summary, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]tenantdomain.Summary, 0, len(items))
	for _, t := range items {
		resp = append(resp, tenantdomain.Summary{
			ID:        t.ID,
			Name:      t.Name,
			Subdomain: t.Subdomain,
			Industry:  t.Industry,
			IsActive:  t.IsActive,
			CreatedAt: t.CreatedAt,
		})
	}
	return resp, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, s.db)
}

func (s *Service) Current(ctx context.Context) (*tenantdomain.CurrentResponse, error) {
	id, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	return &tenantdomain.CurrentResponse{
		TenantID:          id.ID,
		Name:              id.DisplayName,
		PaymentOnboarded:  id.HasPaymentAccount(),
		PaymentAccountRef: id.PaymentAccountRef,
	}, nil
}

func (s *Service) Branding(ctx context.Context) (*tenantdomain.TenantBranding, error) {
	id, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	branding, err := s.repo.FindBranding(ctx, s.db, id.ID)
	if err != nil {
		return nil, err
	}
	if branding == nil {
		return &tenantdomain.TenantBranding{
			TenantID:       id.ID,
			PrimaryColor:   "#000000",
			SecondaryColor: "#666666",
			CompanyName:    id.DisplayName,
		}, nil
	}
	return branding, nil
}

// RotateAPIKey replaces the bound tenant's key. The old key stops resolving
// as soon as the cached resolution is dropped.
func (s *Service) RotateAPIKey(ctx context.Context) (*tenantdomain.RotateKeyResponse, error) {
	id, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}

	plain, hash, err := tenantdomain.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var previous string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.IsActive {
			return tenantdomain.ErrNotFound
		}
		previous = current.APIKeyHash
		return s.repo.UpdateAPIKeyHash(ctx, tx, id.ID, hash, now)
	})
	if err != nil {
		return nil, err
	}

	if s.keys != nil {
		if err := s.keys.Invalidate(context.WithoutCancel(ctx), previous); err != nil {
			s.log.Error("rotated key still cached",
				zap.String("tenant_id", id.ID.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("api key rotated", zap.String("tenant_id", id.ID.String()))
	return &tenantdomain.RotateKeyResponse{
		TenantID:  id.ID,
		APIKey:    plain,
		RotatedAt: now,
	}, nil
}

// EnsureDemoTenants seeds the demo tenants once. Existing rows are left untouched.
func (s *Service) EnsureDemoTenants(ctx context.Context) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, demo := range tenantdomain.DemoTenants {
			existing, err := s.repo.FindByID(ctx, tx, demo.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			tenant := &tenantdomain.Tenant{
				ID:                demo.ID,
				Name:              demo.Name,
				Subdomain:         demo.Subdomain,
				APIKeyHash:        tenantdomain.HashAPIKey(demo.APIKey),
				ContactEmail:      "demo@" + demo.Subdomain + ".compligenie.com",
				PaymentAccountRef: demo.PaymentAccountRef,
				Industry:          demo.Industry,
				Settings:          datatypes.JSONMap{"industry": demo.Industry, "revenueSplit": 0.5, "isTestAccount": true},
				IsActive:          true,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := s.repo.Insert(ctx, tx, tenant); err != nil {
				return fmt.Errorf("seed %s: %w", demo.Subdomain, err)
			}
			if err := s.repo.UpsertBranding(ctx, tx, &tenantdomain.TenantBranding{
				TenantID:       demo.ID,
				PrimaryColor:   "#1e3a8a",
				SecondaryColor: "#64748b",
				CompanyName:    demo.Name,
				FooterText:     demo.Name + " | Demo account",
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return fmt.Errorf("seed %s branding: %w", demo.Subdomain, err)
			}
			s.log.Info("demo tenant seeded", zap.String("tenant_id", demo.ID.String()))
		}
		return nil
	})
}

type registration struct {
	name     string
	email    string
	website  string
	industry string
}

func validateRegistration(req tenantdomain.RegisterRequest) (registration, error) {
	name := strings.TrimSpace(req.CompanyName)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return registration{}, tenantdomain.ErrInvalidCompanyName
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return registration{}, tenantdomain.ErrInvalidEmail
	}
	contact := strings.ToLower(addr.Address)
	at := strings.LastIndex(contact, "@")
	if at < 0 || at == len(contact)-1 {
		return registration{}, tenantdomain.ErrInvalidEmail
	}
	if _, free := freeEmailDomains[contact[at+1:]]; free {
		return registration{}, tenantdomain.ErrFreeEmailDomain
	}

	website := strings.TrimSpace(req.Website)
	u, err := url.ParseRequestURI(website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return registration{}, tenantdomain.ErrInvalidWebsite
	}

	industry := strings.ToLower(strings.TrimSpace(req.Industry))
	if !tenantdomain.IsValidIndustry(industry) {
		return registration{}, tenantdomain.ErrInvalidIndustry
	}

	if req.EstimatedMonthlyPolicies < 0 || req.EstimatedMonthlyPolicies > 10000 {
		return registration{}, tenantdomain.ErrInvalidVolume
	}

	return registration{
		name:     name,
		email:    contact,
		website:  website,
		industry: industry,
	}, nil
}

func newSubdomain(name string) string {
	base := slug.Make(name)
	if len(base) > maxSubdomainSlugLen {
		base = strings.Trim(base[:maxSubdomainSlugLen], "-")
	}
	if base == "" {
		base = "partner"
	}
	return base + "-" + uuid.NewString()[:6]
}
