package rls

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithTenant scopes the current postgres transaction to tenantID for
// row-level security policies keyed on app.current_tenant_id.
func WithTenant(tx *gorm.DB, tenantID uuid.UUID) error {
	return tx.Exec(
		"SELECT set_config('app.current_tenant_id', ?, true)",
		tenantID.String(),
	).Error
}
