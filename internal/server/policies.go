package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db/pagination"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type generatePolicyRequest struct {
	ClientName           string   `json:"clientName"`
	Industry             string   `json:"industry"`
	CompanySize          int      `json:"companySize"`
	AITools              []string `json:"aiTools"`
	Jurisdictions        []string `json:"jurisdictions"`
	ComplianceFrameworks []string `json:"complianceFrameworks"`
}

func (r generatePolicyRequest) toDomain() policydomain.GenerateRequest {
	return policydomain.GenerateRequest{
		ClientName:           strings.TrimSpace(r.ClientName),
		Industry:             strings.TrimSpace(r.Industry),
		CompanySize:          r.CompanySize,
		AITools:              trimAll(r.AITools),
		Jurisdictions:        trimAll(r.Jurisdictions),
		ComplianceFrameworks: trimAll(r.ComplianceFrameworks),
	}
}

func (s *Server) GeneratePolicy(c *gin.Context) {
	start := time.Now()

	var req generatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	logger.WithContext(ctx, s.log).Info("generating policy",
		zap.String("client_name", strings.TrimSpace(req.ClientName)),
		zap.String("industry", strings.TrimSpace(req.Industry)),
	)

	doc, err := s.policySvc.Generate(ctx, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, policydomain.GenerateResponse{
		PolicyID:    doc.ID,
		Title:       doc.Title,
		PageCount:   doc.PageCount,
		Sections:    len(doc.Sections),
		GeneratedAt: doc.GeneratedAt.UTC().Format(time.RFC3339),
		Duration:    time.Since(start).Seconds(),
		Message:     "Policy generated successfully",
	})
}

func (s *Server) GeneratePolicyAsync(c *gin.Context) {
	var req generatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	jobID, err := s.policySvc.GenerateAsync(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, policydomain.GenerateAsyncResponse{
		JobID:   jobID,
		Status:  "queued",
		Message: "Policy generation queued",
	})
}

func (s *Server) ListPolicies(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	resp, err := s.policySvc.List(ctx, policydomain.ListRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId":  tenantcontext.IDString(ctx),
		"policies":  resp.Policies,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetPolicyByID(c *gin.Context) {
	doc, err := s.policySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (s *Server) GetPolicyJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	doc, err := s.policySvc.GetByJob(c.Request.Context(), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	queuedAt, _ := correlation.IssuedAt(jobID)
	c.JSON(http.StatusOK, policydomain.JobResponse{
		JobID:    jobID,
		Status:   "completed",
		QueuedAt: queuedAt.Format(time.RFC3339),
		Policy:   doc,
	})
}

func (s *Server) RenderPolicyPDF(c *gin.Context) {
	out, doc, err := s.policySvc.RenderPDF(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("policy-%s.pdf", doc.ID.String())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", out)
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
