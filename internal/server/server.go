package server

import (
	"github.com/gin-gonic/gin"
	auditdomain "github.com/mesahq/mesa/internal/audit/domain"
	"github.com/mesahq/mesa/internal/config"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	"github.com/mesahq/mesa/internal/observability/metrics"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	"github.com/mesahq/mesa/internal/scheduler"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	webhookdomain "github.com/mesahq/mesa/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	TenantSvc  tenantdomain.Service
	SubSvc     subscriptiondomain.Service
	PMSvc      pmdomain.Service
	InvoiceSvc invoicedomain.Service
	WebhookSvc webhookdomain.Service
	AuditRepo  auditdomain.Repository
	Scheduler  *scheduler.Scheduler
}

type Server struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            config.Config
	tenantSvc      tenantdomain.Service
	subSvc         subscriptiondomain.Service
	pmSvc          pmdomain.Service
	invoiceSvc     invoicedomain.Service
	webhookSvc     webhookdomain.Service
	auditRepo      auditdomain.Repository
	scheduler      *scheduler.Scheduler
	webhookLimiter *rateLimiter
}

func New(p Params) *Server {
	return &Server{
		db:             p.DB,
		log:            p.Log.Named("server"),
		cfg:            p.Cfg,
		tenantSvc:      p.TenantSvc,
		subSvc:         p.SubSvc,
		pmSvc:          p.PMSvc,
		invoiceSvc:     p.InvoiceSvc,
		webhookSvc:     p.WebhookSvc,
		auditRepo:      p.AuditRepo,
		scheduler:      p.Scheduler,
		webhookLimiter: newRateLimiter(p.Cfg.HTTP.WebhookRateLimit, p.Cfg.HTTP.WebhookRateWindow),
	}
}

// Router assembles the HTTP surface. Tenant-scoped routes sit behind the
// resolver middleware; webhook and operational routes do not.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/webhooks/:provider", s.HandleWebhook)

	api := r.Group("/api")
	api.Use(s.withPrincipal())
	{
		api.POST("/tenants", s.RegisterTenant)

		billing := api.Group("/billing")
		billing.Use(s.requireTenant())
		{
			billing.GET("/access", s.BillingAccess)
			billing.GET("/subscription", s.GetSubscription)
			billing.POST("/subscription/cancel", s.CancelSubscription)
			billing.POST("/subscription/reactivate", s.ReactivateSubscription)
			billing.POST("/subscription/plan", s.ChangePlan)

			billing.GET("/payment-methods", s.ListPaymentMethods)
			billing.POST("/payment-methods", s.AddPaymentMethod)
			billing.POST("/payment-methods/:id/default", s.SetDefaultPaymentMethod)
			billing.DELETE("/payment-methods/:id", s.DeactivatePaymentMethod)

			billing.GET("/invoices", s.ListInvoices)
			billing.GET("/invoices/:id", s.GetInvoice)
			billing.GET("/invoices/:id/html", s.GetInvoiceHTML)
		}

		api.GET("/audit-logs", s.ListAuditLogs)
	}

	if !s.cfg.IsProduction() {
		internal := r.Group("/internal")
		internal.POST("/test/cleanup", s.TestCleanup)
		internal.POST("/scheduler/run", s.RunSchedulerOnce)
	}

	return r
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(503, gin.H{"status": "degraded"})
		return
	}
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) RunSchedulerOnce(c *gin.Context) {
	s.scheduler.RunOnce(c.Request.Context())
	c.JSON(200, gin.H{"status": "ok"})
}
