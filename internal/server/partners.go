package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
)

type registerPartnerRequest struct {
	CompanyName              string `json:"companyName"`
	Email                    string `json:"email"`
	Website                  string `json:"website"`
	Phone                    string `json:"phone"`
	Description              string `json:"description"`
	Industry                 string `json:"industry"`
	EstimatedMonthlyPolicies int    `json:"estimatedMonthlyPolicies"`
}

func (s *Server) RegisterPartner(c *gin.Context) {
	var req registerPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Register(c.Request.Context(), tenantdomain.RegisterRequest{
		CompanyName:              strings.TrimSpace(req.CompanyName),
		Email:                    strings.TrimSpace(req.Email),
		Website:                  strings.TrimSpace(req.Website),
		Phone:                    strings.TrimSpace(req.Phone),
		Description:              strings.TrimSpace(req.Description),
		Industry:                 strings.TrimSpace(req.Industry),
		EstimatedMonthlyPolicies: req.EstimatedMonthlyPolicies,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCurrentTenant(c *gin.Context) {
	resp, err := s.tenantSvc.Current(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RotateAPIKey(c *gin.Context) {
	resp, err := s.tenantSvc.RotateAPIKey(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
