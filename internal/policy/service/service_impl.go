package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy/generator"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy/prompt"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/pdf"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/internal/worker"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db/pagination"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/rls"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	jobGeneratePolicy = "policy_generate"
	maxClientNameLen  = 200
	maxTokens         = 8000
	temperature       = 0.7

	modeSync  = "sync"
	modeAsync = "async"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      policydomain.Repository
	Generator policydomain.Generator
	Tenants   tenantdomain.Service
	Renderer  pdf.Renderer
	Jobs      *worker.Pool
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	repo      policydomain.Repository
	generator policydomain.Generator
	tenants   tenantdomain.Service
	renderer  pdf.Renderer
	jobs      *worker.Pool
	metrics   *metrics.Metrics
}

func New(p Params) policydomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("policy.service"),
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		generator: p.Generator,
		tenants:   p.Tenants,
		renderer:  p.Renderer,
		jobs:      p.Jobs,
		metrics:   p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, req policydomain.GenerateRequest) (*policydomain.Document, error) {
	id, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	req, err = normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, id, req, modeSync)
}

// GenerateAsync validates req and queues generation for the caller's tenant.
// The returned job id is the worker job id; the stored policy carries it and
// GetByJob finds it.
func (s *Service) GenerateAsync(ctx context.Context, req policydomain.GenerateRequest) (string, error) {
	if _, err := tenantcontext.Require(ctx); err != nil {
		return "", err
	}
	req, err := normalizeRequest(req)
	if err != nil {
		return "", err
	}

	return s.jobs.Submit(ctx, jobGeneratePolicy, func(jobCtx context.Context) error {
		id, err := tenantcontext.Require(jobCtx)
		if err != nil {
			return err
		}
		_, err = s.generate(jobCtx, id, req, modeAsync)
		return err
	})
}

func (s *Service) generate(ctx context.Context, tenant tenantcontext.Identity, req policydomain.GenerateRequest, mode string) (*policydomain.Document, error) {
	start := s.clock.Now()
	log := logger.WithContext(ctx, s.log)

	tmpl, err := prompt.Load(req.Industry)
	if err != nil {
		return nil, policydomain.ErrInvalidIndustry
	}
	enriched := prompt.Enrich(tmpl, prompt.Vars{
		CompanyName:   req.ClientName,
		TenantName:    tenant.DisplayName,
		CompanySize:   req.CompanySize,
		AITools:       req.AITools,
		Jurisdictions: req.Jurisdictions,
	})

	resp, err := s.generator.Generate(ctx, policydomain.GenerationRequest{
		Prompt:      enriched,
		Industry:    req.Industry,
		ClientName:  req.ClientName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate policy content: %w", err)
	}

	title, sections, err := generator.Parse(resp.Content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	doc := &policydomain.Document{
		ID:          s.genID.Generate(),
		TenantID:    tenant.ID,
		ClientName:  req.ClientName,
		Title:       title,
		Industry:    req.Industry,
		Version:     policydomain.DocumentVersion,
		Sections:    sections,
		GeneratedAt: now,
	}
	doc.PageCount = generator.PageCount(doc.WordCount())
	var jobID *string
	if job, ok := obscontext.JobFromContext(ctx); ok && mode == modeAsync {
		doc.JobID = job.ID
		jobID = &job.ID
	}

	rawSections, err := json.Marshal(doc.Sections)
	if err != nil {
		return nil, err
	}
	err = s.withTenant(ctx, tenant.ID, func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &policydomain.Policy{
			ID:          doc.ID,
			TenantID:    doc.TenantID,
			ClientName:  doc.ClientName,
			Title:       doc.Title,
			Industry:    doc.Industry,
			Version:     doc.Version,
			Sections:    datatypes.JSON(rawSections),
			PageCount:   doc.PageCount,
			GeneratedAt: doc.GeneratedAt,
			CreatedAt:   now,
			JobID:       jobID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store policy: %w", err)
	}

	s.metrics.RecordPolicyGenerated(ctx, req.Industry, mode)
	log.Info("policy generated",
		zap.String("policy_id", doc.ID.String()),
		zap.String("industry", doc.Industry),
		zap.String("mode", mode),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("page_count", doc.PageCount),
		zap.Int("tokens_used", resp.TokensUsed),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*policydomain.Document, error) {
	tenant, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id <= 0 {
		return nil, policydomain.ErrInvalidID
	}

	var policy *policydomain.Policy
	err = s.withTenant(ctx, tenant.ID, func(tx *gorm.DB) error {
		var err error
		policy, err = s.repo.FindByID(ctx, tx, tenant.ID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, policydomain.ErrNotFound
	}
	return toDocument(policy)
}

// GetByJob returns the policy produced by an async generation job. A job that
// has not finished, failed, or belongs to another tenant is ErrNotFound.
func (s *Service) GetByJob(ctx context.Context, jobID string) (*policydomain.Document, error) {
	tenant, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	jobID = strings.TrimSpace(jobID)
	if _, err := correlation.IssuedAt(jobID); err != nil {
		return nil, policydomain.ErrInvalidJobID
	}

	var policy *policydomain.Policy
	err = s.withTenant(ctx, tenant.ID, func(tx *gorm.DB) error {
		var err error
		policy, err = s.repo.FindByJobID(ctx, tx, tenant.ID, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, policydomain.ErrNotFound
	}
	return toDocument(policy)
}

func (s *Service) List(ctx context.Context, req policydomain.ListRequest) (policydomain.ListResponse, error) {
	tenant, err := tenantcontext.Require(ctx)
	if err != nil {
		return policydomain.ListResponse{}, err
	}

	page := pagination.Pagination{PageToken: strings.TrimSpace(req.PageToken), PageSize: req.PageSize}
	var items []policydomain.Policy
	err = s.withTenant(ctx, tenant.ID, func(tx *gorm.DB) error {
		var err error
		items, err = s.repo.List(ctx, tx, tenant.ID, page)
		return err
	})
	if err != nil {
		return policydomain.ListResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, page.Limit(), func(p policydomain.Policy) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt}
	})
	if err != nil {
		return policydomain.ListResponse{}, err
	}

	summaries := make([]policydomain.Summary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, policydomain.Summary{
			ID:          item.ID,
			ClientName:  item.ClientName,
			Title:       item.Title,
			Industry:    item.Industry,
			PageCount:   item.PageCount,
			GeneratedAt: item.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}
	return policydomain.ListResponse{PageInfo: pageInfo, Policies: summaries}, nil
}

// RenderPDF renders one of the caller's policies with the caller's branding.
func (s *Service) RenderPDF(ctx context.Context, rawID string) ([]byte, *policydomain.Document, error) {
	doc, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, nil, err
	}
	branding, err := s.tenants.Branding(ctx)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.renderer.RenderPolicy(ctx, doc, branding)
	if err != nil {
		return nil, nil, err
	}
	return out, doc, nil
}

// withTenant runs fn in a transaction scoped to tenantID for row-level
// security on postgres.
func (s *Service) withTenant(ctx context.Context, tenantID uuid.UUID, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			if err := rls.WithTenant(tx, tenantID); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func toDocument(p *policydomain.Policy) (*policydomain.Document, error) {
	var sections []policydomain.Section
	if len(p.Sections) > 0 {
		if err := json.Unmarshal(p.Sections, &sections); err != nil {
			return nil, fmt.Errorf("decode policy sections: %w", err)
		}
	}
	return &policydomain.Document{
		ID:          p.ID,
		TenantID:    p.TenantID,
		ClientName:  p.ClientName,
		Title:       p.Title,
		Industry:    p.Industry,
		Version:     p.Version,
		Sections:    sections,
		GeneratedAt: p.GeneratedAt,
		PageCount:   p.PageCount,
		JobID:       jobIDOf(p),
	}, nil
}

func jobIDOf(p *policydomain.Policy) string {
	if p.JobID == nil {
		return ""
	}
	return *p.JobID
}

func normalizeRequest(req policydomain.GenerateRequest) (policydomain.GenerateRequest, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	if n := utf8.RuneCountInString(req.ClientName); n == 0 || n > maxClientNameLen {
		return req, policydomain.ErrInvalidClientName
	}
	req.Industry = strings.ToLower(strings.TrimSpace(req.Industry))
	if !policydomain.IsValidIndustry(req.Industry) {
		return req, policydomain.ErrInvalidIndustry
	}
	if req.CompanySize < 0 {
		return req, policydomain.ErrInvalidCompanySize
	}
	return req, nil
}
