package pdf

import (
	"context"
	"errors"

	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrForbidden is returned when a document belongs to another tenant.
var ErrForbidden = errors.New("forbidden")

// Renderer turns policy documents into PDF bytes for the current tenant.
type Renderer interface {
	RenderPolicy(ctx context.Context, doc *policydomain.Document, branding *tenantdomain.TenantBranding) ([]byte, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type PDFProvider struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) Renderer {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFProvider{log: log.Named("pdf"), metrics: p.Metrics}
}
