package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mesahq/mesa/internal/audit/domain"
	"github.com/mesahq/mesa/internal/billingcycle"
	"github.com/mesahq/mesa/internal/cache"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/events"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tenantCacheTTL bounds staleness of resolver lookups. Deactivation takes
// effect within this window at worst.
const tenantCacheTTL = 30 * time.Second

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Clock     clock.Clock
	Repo      tenantdomain.Repository
	SubSvc    subscriptiondomain.Service
	AuditSvc  auditdomain.Service
	Processor processor.Processor
	Outbox    *events.Outbox
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	clock     clock.Clock
	repo      tenantdomain.Repository
	subSvc    subscriptiondomain.Service
	auditSvc  auditdomain.Service
	processor processor.Processor
	outbox    *events.Outbox
	cache     cache.Cache[snowflake.ID, *tenantdomain.Tenant]
}

func NewService(p Params) tenantdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("tenant.service"),
		genID:     p.GenID,
		cfg:       p.Cfg,
		clock:     p.Clock,
		repo:      p.Repo,
		subSvc:    p.SubSvc,
		auditSvc:  p.AuditSvc,
		processor: p.Processor,
		outbox:    p.Outbox,
		cache:     cache.NewTTLCache[snowflake.ID, *tenantdomain.Tenant](),
	}
}

func (s *Service) Resolve(ctx context.Context, principal tenantdomain.Principal) (snowflake.ID, error) {
	if principal.UserID == 0 {
		return 0, tenantdomain.ErrUnauthenticated
	}
	if principal.TenantID == nil || *principal.TenantID == 0 {
		return 0, tenantdomain.ErrNoTenant
	}

	tenant, err := s.load(ctx, *principal.TenantID)
	if err != nil {
		return 0, err
	}
	if !tenant.IsActive {
		return 0, tenantdomain.ErrInactive
	}
	return tenant.ID, nil
}

func (s *Service) IsCrossTenantSuperuser(principal tenantdomain.Principal) bool {
	return principal.UserID != 0 && principal.Role == tenantdomain.RoleSuperuser
}

func (s *Service) RecordScopeBypass(ctx context.Context, principal tenantdomain.Principal, target snowflake.ID) error {
	targetID := target.String()
	return s.auditSvc.Log(ctx, &target, "tenant.scope_bypass", "tenant", &targetID, map[string]any{
		"actor_user_id": principal.UserID.String(),
		"actor_role":    principal.Role,
	})
}

func (s *Service) Register(ctx context.Context, req tenantdomain.RegisterRequest) (*tenantdomain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidRequest
	}
	plan := req.Plan
	if plan == "" {
		plan = billingcycle.Catalog[0].Code
	}
	if _, err := billingcycle.LookupPlan(plan); err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	periodMonths := req.PeriodMonths
	if periodMonths == 0 {
		periodMonths = 1
	}

	tenant := &tenantdomain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
		UpdatedAt:    s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, tenant); err != nil {
			return err
		}
		if _, err := s.subSvc.StartTrial(ctx, tx, tenant.ID, plan, periodMonths); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			TenantID:  tenant.ID,
			Type:      events.EventTenantRegistered,
			Payload:   map[string]any{"name": tenant.Name, "plan": plan},
			DedupeKey: "register:" + tenant.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	targetID := tenant.ID.String()
	if err := s.auditSvc.Log(ctx, &tenant.ID, "tenant.registered", "tenant", &targetID, map[string]any{
		"name": tenant.Name,
		"plan": plan,
	}); err != nil {
		s.log.Warn("audit write for registration failed", zap.Error(err))
	}

	s.log.Info("tenant registered",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("plan", plan),
	)
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*tenantdomain.Tenant, error) {
	return s.load(ctx, tenantID)
}

func (s *Service) EnsureCustomerRef(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (string, error) {
	db := tx
	if db == nil {
		db = s.db
	}
	tenant, err := s.repo.Find(ctx, db, tenantID)
	if err != nil {
		return "", err
	}
	if tenant.ProcessorCustomerRef != nil && *tenant.ProcessorCustomerRef != "" {
		return *tenant.ProcessorCustomerRef, nil
	}

	ref, err := s.processor.CreateCustomer(ctx, processor.CustomerParams{
		Name:  tenant.Name,
		Email: tenant.ContactEmail,
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.SetCustomerRef(ctx, db, tenantID, ref); err != nil {
		return "", err
	}
	s.cache.Delete(tenantID)

	s.log.Info("processor customer created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("customer_ref", ref),
	)
	return ref, nil
}

func (s *Service) Deactivate(ctx context.Context, tenantID snowflake.ID) error {
	if err := s.repo.SetActive(ctx, s.db, tenantID, false); err != nil {
		return err
	}
	s.cache.Delete(tenantID)

	targetID := tenantID.String()
	if err := s.auditSvc.Log(ctx, &tenantID, "tenant.deactivated", "tenant", &targetID, nil); err != nil {
		s.log.Warn("audit write for deactivation failed", zap.Error(err))
	}
	return nil
}

func (s *Service) load(ctx context.Context, tenantID snowflake.ID) (*tenantdomain.Tenant, error) {
	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}
	tenant, err := s.repo.Find(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(tenantID, tenant, tenantCacheTTL)
	return tenant, nil
}
