package resolver

import (
	"context"
	"fmt"

	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"gorm.io/gorm"
)

// Store resolves credentials against the tenants table.
type Store struct {
	db   *gorm.DB
	repo tenantdomain.Repository
}

func NewStore(db *gorm.DB, repo tenantdomain.Repository) *Store {
	return &Store{db: db, repo: repo}
}

func (s *Store) Resolve(ctx context.Context, credential string) (tenantcontext.Identity, bool, error) {
	if credential == "" {
		return tenantcontext.Identity{}, false, nil
	}

	hash := tenantdomain.HashAPIKey(credential)
	tenant, err := s.repo.FindByKeyHash(ctx, s.db, hash)
	if err != nil {
		return tenantcontext.Identity{}, false, fmt.Errorf("find tenant by key hash: %w", err)
	}
	if tenant == nil || !tenantdomain.HashesEqual(tenant.APIKeyHash, hash) {
		return tenantcontext.Identity{}, false, nil
	}
	return tenant.Identity(), true, nil
}
