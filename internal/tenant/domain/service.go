package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"gorm.io/gorm"
)

const (
	IndustryLegal      = "legal"
	IndustryHealthcare = "healthcare"
	IndustryHR         = "hr"
	IndustryInsurance  = "insurance"
	IndustryGeneral    = "general"
)

// Resolver maps a presented credential to the owning tenant. Not found is
// reported as (zero, false, nil); a non-nil error means the lookup itself failed.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (tenantcontext.Identity, bool, error)
}

// KeyCache drops cached resolutions when a key stops being valid.
type KeyCache interface {
	Invalidate(ctx context.Context, keyHash string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByKeyHash(ctx context.Context, db *gorm.DB, hash string) (*Tenant, error)
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Tenant, error)
	ExistsByName(ctx context.Context, db *gorm.DB, name string) (bool, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
	List(ctx context.Context, db *gorm.DB) ([]Tenant, error)
	FindBranding(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (*TenantBranding, error)
	UpsertBranding(ctx context.Context, db *gorm.DB, branding *TenantBranding) error
	UpdateAPIKeyHash(ctx context.Context, db *gorm.DB, id uuid.UUID, hash string, at time.Time) error
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	CreateTestTenant(ctx context.Context, req TestTenantRequest) (*TestTenantResponse, error)
	List(ctx context.Context) ([]Summary, error)
	Count(ctx context.Context) (int64, error)
	Current(ctx context.Context) (*CurrentResponse, error)
	Branding(ctx context.Context) (*TenantBranding, error)
	RotateAPIKey(ctx context.Context) (*RotateKeyResponse, error)
	EnsureDemoTenants(ctx context.Context) error
}

type RegisterRequest struct {
	CompanyName              string `json:"companyName"`
	Email                    string `json:"email"`
	Website                  string `json:"website"`
	Phone                    string `json:"phone"`
	Description              string `json:"description"`
	Industry                 string `json:"industry"`
	EstimatedMonthlyPolicies int    `json:"estimatedMonthlyPolicies"`
}

type RegisterResponse struct {
	APIKey              string `json:"apiKey"`
	Subdomain           string `json:"subdomain"`
	DashboardURL        string `json:"dashboardUrl"`
	StripeOnboardingURL string `json:"stripeOnboardingUrl"`
	Message             string `json:"message"`
}

type TestTenantRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

type TestTenantResponse struct {
	TenantID  uuid.UUID `json:"tenantId"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	APIKey    string    `json:"apiKey"`
}

// Summary is a tenant without credentials.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Industry  string    `json:"industry"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// RotateKeyResponse carries the replacement key. It is shown once.
type RotateKeyResponse struct {
	TenantID  uuid.UUID `json:"tenantId"`
	APIKey    string    `json:"apiKey"`
	RotatedAt time.Time `json:"rotatedAt"`
}

type CurrentResponse struct {
	TenantID          uuid.UUID `json:"tenantId"`
	Name              string    `json:"name"`
	PaymentOnboarded  bool      `json:"paymentOnboarded"`
	PaymentAccountRef string    `json:"paymentAccountRef,omitempty"`
}

var (
	ErrInvalidCompanyName = errors.New("invalid_company_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrFreeEmailDomain    = errors.New("free_email_domain")
	ErrInvalidWebsite     = errors.New("invalid_website")
	ErrInvalidIndustry    = errors.New("invalid_industry")
	ErrInvalidVolume      = errors.New("invalid_estimated_monthly_policies")
	ErrConflict           = errors.New("company_already_registered")
	ErrNotFound           = errors.New("tenant_not_found")
)

// IsValidIndustry reports whether industry is one of the supported verticals.
func IsValidIndustry(industry string) bool {
	switch industry {
	case IndustryLegal, IndustryHealthcare, IndustryHR, IndustryInsurance, IndustryGeneral:
		return true
	default:
		return false
	}
}
