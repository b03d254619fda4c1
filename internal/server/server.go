package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/audit"
	auditdomain "github.com/pathlight-ai/pathlight/internal/audit/domain"
	"github.com/pathlight-ai/pathlight/internal/auth"
	"github.com/pathlight-ai/pathlight/internal/catalog"
	"github.com/pathlight-ai/pathlight/internal/clock"
	"github.com/pathlight-ai/pathlight/internal/config"
	"github.com/pathlight-ai/pathlight/internal/ledger"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	"github.com/pathlight-ai/pathlight/internal/observability"
	obsmiddleware "github.com/pathlight-ai/pathlight/internal/observability/logger"
	obsmetrics "github.com/pathlight-ai/pathlight/internal/observability/metrics"
	obstracing "github.com/pathlight-ai/pathlight/internal/observability/tracing"
	"github.com/pathlight-ai/pathlight/internal/payment"
	"github.com/pathlight-ai/pathlight/internal/payment/checkout"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
	"github.com/pathlight-ai/pathlight/internal/payment/webhook"
	"github.com/pathlight-ai/pathlight/internal/providers/ai"
	"github.com/pathlight-ai/pathlight/internal/ratelimit"
	appredis "github.com/pathlight-ai/pathlight/internal/redis"
	"github.com/pathlight-ai/pathlight/internal/scheduler"
	"github.com/pathlight-ai/pathlight/internal/subscription"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	appredis.Module,
	clock.Module,
	audit.Module,
	auth.Module,
	ledger.Module,
	subscription.Module,
	catalog.Module,
	payment.Module,
	ai.Module,
	ratelimit.Module,
	scheduler.Module,
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
	r.Use(obstracing.GinMiddleware(obsCfg.ServiceName))
	r.Use(httpMetrics.GinMiddleware())
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	db     *gorm.DB
	genID  *snowflake.Node

	verifier *auth.Verifier
	limiter  *ratelimit.Limiter
	pricing  *config.PricingHolder

	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	auditSvc        auditdomain.Service
	catalog         *catalog.Catalog
	paymentClient   paymentdomain.Client
	checkoutSvc     *checkout.Service
	webhookSvc      *webhook.Service
	aiProvider      ai.Provider

	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	DB    *gorm.DB
	GenID *snowflake.Node

	Verifier *auth.Verifier
	Limiter  *ratelimit.Limiter
	Pricing  *config.PricingHolder

	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
	Catalog         *catalog.Catalog
	PaymentClient   paymentdomain.Client
	CheckoutSvc     *checkout.Service
	WebhookSvc      *webhook.Service
	AIProvider      ai.Provider

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		db:              p.DB,
		genID:           p.GenID,
		verifier:        p.Verifier,
		limiter:         p.Limiter,
		pricing:         p.Pricing,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditSvc:        p.AuditSvc,
		catalog:         p.Catalog,
		paymentClient:   p.PaymentClient,
		checkoutSvc:     p.CheckoutSvc,
		webhookSvc:      p.WebhookSvc,
		aiProvider:      p.AIProvider,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerBillingRoutes()
	svc.registerAccountRoutes()
	svc.registerMeteredRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/api/billing")

	billing.POST("/webhook", s.HandleBillingWebhook)
	billing.GET("/catalog", s.GetCatalog)

	billing.POST("/checkout", s.AuthRequired(), s.StartCheckout)
	billing.POST("/portal", s.AuthRequired(), s.CreatePortalSession)
	billing.GET("/credits", s.AuthRequired(), s.GetCredits)
}

func (s *Server) registerAccountRoutes() {
	account := s.engine.Group("/api/account", s.AuthRequired())

	account.GET("/subscription", s.GetSubscription)
}

func (s *Server) registerMeteredRoutes() {
	api := s.engine.Group("/api", s.AuthRequired(), s.MeteredRateLimit())

	api.POST("/ai/generate", s.Metered("ai_generate"))
	api.POST("/ai/chat", s.Metered("ai_chat"))
	api.POST("/ai/analyze", s.Metered("ai_analyze"))
	api.POST("/ai/merge", s.Metered("ai_merge"))

	api.POST("/import/document", s.Metered("import_document"))
	api.POST("/import/document/vision", s.Metered("import_document_vision"))
	api.POST("/import/url", s.Metered("import_url"))

	api.POST("/resume/generate", s.Metered("resume_generate"))
}
