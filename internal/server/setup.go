package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jamesbarnes665/compliGenie-backend/internal/setuptoken"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
)

const setupTokenHeader = "X-Setup-Token"

// SetupAllowed hides the setup routes in production and checks the operator
// token when a hash is configured.
func (s *Server) SetupAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.IsProduction() {
			AbortWithError(c, ErrNotFound)
			return
		}

		hash := strings.TrimSpace(s.cfg.Setup.TokenHash)
		if hash == "" {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader(setupTokenHeader))
		if token == "" || !setuptoken.Verify(token, hash) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

type createTestTenantRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

func (s *Server) CreateTestTenant(c *gin.Context) {
	var req createTestTenantRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.tenantSvc.CreateTestTenant(c.Request.Context(), tenantdomain.TestTenantRequest{
		Name:     strings.TrimSpace(req.Name),
		Industry: strings.TrimSpace(req.Industry),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Test tenant created successfully",
		"tenantId":  resp.TenantID,
		"name":      resp.Name,
		"subdomain": resp.Subdomain,
		"apiKey":    resp.APIKey,
	})
}

func (s *Server) ListTenants(c *gin.Context) {
	resp, err := s.tenantSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
