package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumns = `id, name, subdomain, api_key_hash, contact_email, payment_account_ref, industry, settings, is_active, created_at, updated_at`

type repo struct{}

func Provide() tenantdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) FindByKeyHash(ctx context.Context, db *gorm.DB, hash string) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key_hash = ? AND is_active = ?`,
		hash,
		true,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == uuid.Nil {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == uuid.Nil {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) ExistsByName(ctx context.Context, db *gorm.DB, name string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("LOWER(name) = LOWER(?)", name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&tenantdomain.Tenant{}).Count(&count).Error
	return count, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]tenantdomain.Tenant, error) {
	var tenants []tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC`,
	).Scan(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) FindBranding(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (*tenantdomain.TenantBranding, error) {
	var branding tenantdomain.TenantBranding
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, logo_url, primary_color, secondary_color, company_name, company_address, company_phone, company_email, company_website, footer_text, created_at, updated_at
		 FROM tenant_branding WHERE tenant_id = ?`,
		tenantID,
	).Scan(&branding).Error
	if err != nil {
		return nil, err
	}
	if branding.TenantID == uuid.Nil {
		return nil, nil
	}
	return &branding, nil
}

func (r *repo) UpsertBranding(ctx context.Context, db *gorm.DB, branding *tenantdomain.TenantBranding) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"logo_url", "primary_color", "secondary_color", "company_name", "company_address", "company_phone", "company_email", "company_website", "footer_text", "updated_at"}),
		}).
		Create(branding).Error
}

func (r *repo) UpdateAPIKeyHash(ctx context.Context, db *gorm.DB, id uuid.UUID, hash string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"api_key_hash": hash, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tenantdomain.ErrNotFound
	}
	return nil
}
