package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/entitle/internal/access"
	"github.com/smallbiznis/entitle/internal/audit"
	auditdomain "github.com/smallbiznis/entitle/internal/audit/domain"
	"github.com/smallbiznis/entitle/internal/authorization"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/config"
	"github.com/smallbiznis/entitle/internal/entitlement"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/smallbiznis/entitle/internal/flag"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
	"github.com/smallbiznis/entitle/internal/observability"
	obsmiddleware "github.com/smallbiznis/entitle/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/entitle/internal/observability/metrics"
	obstracing "github.com/smallbiznis/entitle/internal/observability/tracing"
	"github.com/smallbiznis/entitle/internal/permission"
	"github.com/smallbiznis/entitle/internal/plan"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	"github.com/smallbiznis/entitle/internal/subscription"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	cache.Module,
	plan.Module,
	subscription.Module,
	flag.Module,
	entitlement.Module,
	permission.Module,
	access.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subdomain.Service
	flagSvc         flagdomain.Service
	resolver        entdomain.Resolver
	permissions     *permission.Service
	engineSvc       *access.Engine
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subdomain.Service
	FlagSvc         flagdomain.Service
	Resolver        entdomain.Resolver
	Permissions     *permission.Service
	Engine          *access.Engine
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		flagSvc:         p.FlagSvc,
		resolver:        p.Resolver,
		permissions:     p.Permissions,
		engineSvc:       p.Engine,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.PrincipalRequired())

	api.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
	api.POST("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanCreate), s.CreatePlan)
	api.GET("/plans/:code", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlan)

	tenants := api.Group("/tenants/:tenant_id")
	tenants.Use(s.TenantRequired())

	tenants.GET("/subscription", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	tenants.POST("/subscription", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	tenants.POST("/subscription/change-plan", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionChangePlan), s.ChangePlan)
	tenants.POST("/subscription/transition", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionTransition), s.TransitionSubscription)

	tenants.GET("/overrides", s.authorize(authorization.ObjectOverride, authorization.ActionOverrideView), s.ListOverrides)
	tenants.PUT("/overrides/:key", s.authorize(authorization.ObjectOverride, authorization.ActionOverrideManage), s.UpsertOverride)
	tenants.POST("/overrides/:key/expire", s.authorize(authorization.ObjectOverride, authorization.ActionOverrideManage), s.ExpireOverride)

	tenants.GET("/flags", s.authorize(authorization.ObjectFeatureFlag, authorization.ActionFeatureFlagView), s.ListFlags)
	tenants.GET("/flags/:key", s.authorize(authorization.ObjectFeatureFlag, authorization.ActionFeatureFlagView), s.GetFlag)
	tenants.PUT("/flags/:key", s.authorize(authorization.ObjectFeatureFlag, authorization.ActionFeatureFlagManage), s.SetFlag)
	tenants.PUT("/flags", s.authorize(authorization.ObjectFeatureFlag, authorization.ActionFeatureFlagManage), s.BulkSetFlags)
	tenants.POST("/flags/reset", s.authorize(authorization.ObjectFeatureFlag, authorization.ActionFeatureFlagManage), s.ResetFlags)

	tenants.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	tenants.GET("/entitlements", s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementView), s.GetEntitlements)
	tenants.GET("/capabilities", s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementView), s.GetCapabilities)
	tenants.GET("/access/:key", s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementView), s.CheckAccess)
}
