package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	IndustryLegal      = "legal"
	IndustryHealthcare = "healthcare"
	IndustryHR         = "hr"
	IndustryInsurance  = "insurance"
	IndustryGeneral    = "general"
)

func IsValidIndustry(industry string) bool {
	switch industry {
	case IndustryLegal, IndustryHealthcare, IndustryHR, IndustryInsurance, IndustryGeneral:
		return true
	default:
		return false
	}
}

type GenerateRequest struct {
	ClientName           string   `json:"clientName"`
	Industry             string   `json:"industry"`
	CompanySize          int      `json:"companySize"`
	AITools              []string `json:"aiTools"`
	Jurisdictions        []string `json:"jurisdictions"`
	ComplianceFrameworks []string `json:"complianceFrameworks"`
}

type GenerateResponse struct {
	PolicyID    snowflake.ID `json:"policyId"`
	Title       string       `json:"title"`
	PageCount   int          `json:"pageCount"`
	Sections    int          `json:"sections"`
	GeneratedAt string       `json:"generatedAt"`
	Duration    float64      `json:"duration"`
	Message     string       `json:"message"`
}

type GenerateAsyncResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobResponse reports the outcome of an async generation job.
type JobResponse struct {
	JobID    string    `json:"jobId"`
	Status   string    `json:"status"`
	QueuedAt string    `json:"queuedAt"`
	Policy   *Document `json:"policy"`
}

type ListRequest struct {
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Policies []Summary `json:"policies"`
}

type Summary struct {
	ID          snowflake.ID `json:"id"`
	ClientName  string       `json:"clientName"`
	Title       string       `json:"title"`
	Industry    string       `json:"industry"`
	PageCount   int          `json:"pageCount"`
	GeneratedAt string       `json:"generatedAt"`
}

// GenerationRequest is what a Generator receives.
type GenerationRequest struct {
	Prompt      string
	Industry    string
	ClientName  string
	MaxTokens   int
	Temperature float64
}

type GenerationResponse struct {
	Content    string
	TokensUsed int
}

// Generator produces raw policy content from an enriched prompt. Content is
// either a JSON document with title and sections or plain text with
// header lines.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, policy *Policy) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (*Policy, error)
	List(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, page pagination.Pagination) ([]Policy, error)
	FindByJobID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, jobID string) (*Policy, error)
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*Document, error)
	GenerateAsync(ctx context.Context, req GenerateRequest) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	GetByJob(ctx context.Context, jobID string) (*Document, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	RenderPDF(ctx context.Context, id string) ([]byte, *Document, error)
}

var (
	ErrInvalidClientName  = errors.New("invalid_client_name")
	ErrInvalidIndustry    = errors.New("invalid_industry")
	ErrInvalidCompanySize = errors.New("invalid_company_size")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidJobID       = errors.New("invalid_job_id")
	ErrEmptyContent       = errors.New("empty_generation_content")
	ErrNotFound           = errors.New("not_found")
)
