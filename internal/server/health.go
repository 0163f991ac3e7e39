package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	"go.uber.org/zap"
)

const healthCheckTimeout = 3 * time.Second

type healthResponse struct {
	Status      string    `json:"status"`
	Database    string    `json:"database"`
	TenantCount int64     `json:"tenantCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health reports database reachability and the tenant count. It always
// answers 200 so load balancers can tell the process apart from its database.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Database:  "disconnected",
		Timestamp: time.Now().UTC(),
	}

	if s.pingDatabase(ctx) {
		resp.Database = "connected"
		count, err := s.tenantSvc.Count(ctx)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("health tenant count failed", zap.Error(err))
		} else {
			resp.TenantCount = count
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) pingDatabase(ctx context.Context) bool {
	if s.db == nil {
		return false
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}
