package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"gorm.io/datatypes"
)

// Tenant is a partner organization. Only the hash of its API key is stored.
type Tenant struct {
	ID                uuid.UUID         `gorm:"type:char(36);primaryKey"`
	Name              string            `gorm:"type:varchar(100);not null;uniqueIndex:ux_tenants_name"`
	Subdomain         string            `gorm:"type:varchar(120);not null;uniqueIndex:ux_tenants_subdomain"`
	APIKeyHash        string            `gorm:"column:api_key_hash;type:char(64);not null;uniqueIndex:ux_tenants_api_key_hash"`
	ContactEmail      string            `gorm:"column:contact_email;type:varchar(254);not null"`
	PaymentAccountRef string            `gorm:"column:payment_account_ref;type:varchar(120);not null;default:''"`
	Industry          string            `gorm:"type:varchar(32);not null"`
	Settings          datatypes.JSONMap `gorm:"type:json"`
	IsActive          bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time         `gorm:"not null"`
	UpdatedAt         time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Identity returns the request-scoped view of the tenant.
func (t Tenant) Identity() tenantcontext.Identity {
	return tenantcontext.Identity{
		ID:                t.ID,
		DisplayName:       t.Name,
		PaymentAccountRef: t.PaymentAccountRef,
	}
}

// TenantBranding customizes rendered documents.
type TenantBranding struct {
	TenantID       uuid.UUID `gorm:"column:tenant_id;type:char(36);primaryKey"`
	LogoURL        string    `gorm:"column:logo_url;type:text;not null;default:''"`
	PrimaryColor   string    `gorm:"column:primary_color;type:varchar(7);not null;default:'#000000'"`
	SecondaryColor string    `gorm:"column:secondary_color;type:varchar(7);not null;default:'#666666'"`
	CompanyName    string    `gorm:"column:company_name;type:varchar(200);not null;default:''"`
	CompanyAddress string    `gorm:"column:company_address;type:text;not null;default:''"`
	CompanyPhone   string    `gorm:"column:company_phone;type:varchar(40);not null;default:''"`
	CompanyEmail   string    `gorm:"column:company_email;type:varchar(254);not null;default:''"`
	CompanyWebsite string    `gorm:"column:company_website;type:text;not null;default:''"`
	FooterText     string    `gorm:"column:footer_text;type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (TenantBranding) TableName() string { return "tenant_branding" }
