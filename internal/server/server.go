package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability"
	obsmiddleware "github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	obsmetrics "github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	obstracing "github.com/jamesbarnes665/compliGenie-backend/internal/observability/tracing"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewTenantGate),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.CustomRecovery(recoveryHandler(log.Named("http"))))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	if path := obsCfg.MetricsPath; path != "" {
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	gate       *TenantGate
	tenantSvc  tenantdomain.Service
	policySvc  policydomain.Service
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Gate       *TenantGate
	TenantSvc  tenantdomain.Service
	PolicySvc  policydomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        log.Named("http"),
		gate:       p.Gate,
		tenantSvc:  p.TenantSvc,
		policySvc:  p.PolicySvc,
		obsMetrics: p.ObsMetrics,
	}

	// Everything registered after this point passes through the gate,
	// including unmatched routes.
	svc.engine.Use(svc.gate.Handler())

	svc.registerHealthRoutes()
	svc.registerSetupRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/api/health", s.Health)
}

func (s *Server) registerSetupRoutes() {
	setup := s.engine.Group("/api/setup", s.SetupAllowed())
	{
		setup.POST("/test-tenant", s.CreateTestTenant)
		setup.GET("/tenants", s.ListTenants)
	}
}

func (s *Server) registerPublicRoutes() {
	s.engine.POST("/api/partners/register", s.RegisterPartner)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/tenant", s.GetCurrentTenant)
	api.POST("/tenant/api-key/rotate", s.RotateAPIKey)

	// -------- Policies --------
	api.POST("/policies/generate", s.GeneratePolicy)
	api.POST("/policies/generate-async", s.GeneratePolicyAsync)
	api.GET("/policies", s.ListPolicies)
	api.GET("/policies/:id", s.GetPolicyByID)
	api.GET("/policies/:id/pdf", s.RenderPolicyPDF)
	api.GET("/policy-jobs/:job_id", s.GetPolicyJob)
}
