package resolver

import (
	"context"

	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
)

// Static resolves from a fixed key set. Keys are held only as hashes.
type Static struct {
	byHash map[string]tenantcontext.Identity
}

func NewStatic(keys map[string]tenantcontext.Identity) *Static {
	byHash := make(map[string]tenantcontext.Identity, len(keys))
	for key, id := range keys {
		byHash[tenantdomain.HashAPIKey(key)] = id
	}
	return &Static{byHash: byHash}
}

func (s *Static) Resolve(_ context.Context, credential string) (tenantcontext.Identity, bool, error) {
	if credential == "" {
		return tenantcontext.Identity{}, false, nil
	}
	id, ok := s.byHash[tenantdomain.HashAPIKey(credential)]
	if !ok {
		return tenantcontext.Identity{}, false, nil
	}
	return id, true, nil
}
