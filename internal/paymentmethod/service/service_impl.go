package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mesahq/mesa/internal/audit/domain"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/events"
	"github.com/mesahq/mesa/internal/observability/logger"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Clock     clock.Clock
	Repo      pmdomain.Repository
	SubRepo   subscriptiondomain.Repository
	SubSvc    subscriptiondomain.Service
	TenantSvc tenantdomain.Service
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
	repo      pmdomain.Repository
	subRepo   subscriptiondomain.Repository
	subSvc    subscriptiondomain.Service
	tenantSvc tenantdomain.Service
	auditSvc  auditdomain.Service
	processor processor.Processor
	outbox    *events.Outbox
}

func NewService(p Params) pmdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("paymentmethod.service"),
		genID:     p.GenID,
		cfg:       p.Cfg,
		clock:     p.Clock,
		repo:      p.Repo,
		subRepo:   p.SubRepo,
		subSvc:    p.SubSvc,
		tenantSvc: p.TenantSvc,
		auditSvc:  p.AuditSvc,
		processor: p.Processor,
		outbox:    p.Outbox,
	}
}

func (s *Service) Add(ctx context.Context, tenantID snowflake.ID, req pmdomain.AddRequest) (*pmdomain.PaymentMethod, error) {
	methodType := strings.ToLower(strings.TrimSpace(req.Type))
	if methodType == "" {
		methodType = pmdomain.TypeCard
	}
	switch methodType {
	case pmdomain.TypeCard, pmdomain.TypeBank, pmdomain.TypeManual:
	default:
		return nil, pmdomain.ErrInvalidInstrument
	}

	method := &pmdomain.PaymentMethod{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Type:      methodType,
		IsActive:  true,
		CreatedAt: s.clock.Now(),
		UpdatedAt: s.clock.Now(),
	}

	switch strings.ToLower(strings.TrimSpace(req.Provider)) {
	case pmdomain.ProviderExternal:
		if err := s.fillFromProcessor(ctx, tenantID, req, method); err != nil {
			return nil, err
		}
	case pmdomain.ProviderLocal:
		if s.cfg.IsProduction() {
			return nil, pmdomain.ErrLocalModeDenied
		}
		if err := s.fillFromRequest(req, method); err != nil {
			return nil, err
		}
	default:
		return nil, pmdomain.ErrUnknownProvider
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.CountActive(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		makeDefault := req.SetDefault || active == 0
		if makeDefault {
			if err := s.repo.ClearDefault(ctx, tx, tenantID); err != nil {
				return err
			}
			method.IsDefault = true
		}
		if err := s.repo.Insert(ctx, tx, method); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			TenantID: tenantID,
			Type:     events.EventPaymentMethodChanged,
			Payload: map[string]any{
				"payment_method_id": method.ID.String(),
				"change":            "added",
			},
			DedupeKey: "pm-added:" + method.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	targetID := method.ID.String()
	if err := s.auditSvc.Log(ctx, &tenantID, "payment_method.added", "payment_method", &targetID, map[string]any{
		"provider": method.Provider,
		"brand":    method.Brand,
		"last4":    logger.MaskInstrument(method.Last4),
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	// A tenant in past_due gets an immediate retry with the new method.
	if err := s.subSvc.OnPaymentMethodAdded(ctx, tenantID); err != nil &&
		!errors.Is(err, subscriptiondomain.ErrNotFound) {
		s.log.Warn("post-add retry failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
	return method, nil
}

func (s *Service) fillFromProcessor(ctx context.Context, tenantID snowflake.ID, req pmdomain.AddRequest, method *pmdomain.PaymentMethod) error {
	methodRef := strings.TrimSpace(req.MethodRef)
	if methodRef == "" {
		return pmdomain.ErrInvalidInstrument
	}

	customerRef, err := s.tenantSvc.EnsureCustomerRef(ctx, nil, tenantID)
	if err != nil {
		return err
	}

	instrument, err := s.processor.AttachPaymentMethod(ctx, customerRef, methodRef)
	if err != nil {
		return err
	}

	method.Provider = pmdomain.ProviderExternal
	method.ProviderRef = &instrument.ProviderRef
	method.Last4 = instrument.Last4
	method.Brand = instrument.Brand
	method.ExpMonth = instrument.ExpMonth
	method.ExpYear = instrument.ExpYear
	method.HolderName = instrument.HolderName
	if instrument.Type != "" {
		method.Type = instrument.Type
	}
	return nil
}

func (s *Service) fillFromRequest(req pmdomain.AddRequest, method *pmdomain.PaymentMethod) error {
	last4 := strings.TrimSpace(req.Last4)
	if len(last4) != 4 {
		return pmdomain.ErrInvalidInstrument
	}
	for _, r := range last4 {
		if r < '0' || r > '9' {
			return pmdomain.ErrInvalidInstrument
		}
	}
	brand := strings.ToLower(strings.TrimSpace(req.Brand))
	if method.Type == pmdomain.TypeCard && !pmdomain.KnownBrands[brand] {
		return pmdomain.ErrInvalidInstrument
	}
	if req.ExpMonth < 1 || req.ExpMonth > 12 {
		return pmdomain.ErrInvalidInstrument
	}
	// Expiry must be this month or later.
	now := s.clock.Now()
	endOfExpiry := time.Date(req.ExpYear, time.Month(req.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !endOfExpiry.After(now) {
		return pmdomain.ErrInvalidInstrument
	}

	method.Provider = pmdomain.ProviderLocal
	method.Last4 = last4
	method.Brand = brand
	method.ExpMonth = req.ExpMonth
	method.ExpYear = req.ExpYear
	method.HolderName = strings.TrimSpace(req.HolderName)
	return nil
}

func (s *Service) SetDefault(ctx context.Context, tenantID snowflake.ID, methodID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		method, err := s.repo.Find(ctx, tx, tenantID, methodID)
		if err != nil {
			return err
		}
		if !method.IsActive {
			return pmdomain.ErrInvalidState
		}
		if err := s.repo.ClearDefault(ctx, tx, tenantID); err != nil {
			return err
		}
		method.IsDefault = true
		return s.repo.Update(ctx, tx, method)
	})
}

func (s *Service) Deactivate(ctx context.Context, tenantID snowflake.ID, methodID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		method, err := s.repo.Find(ctx, tx, tenantID, methodID)
		if err != nil {
			return err
		}
		if !method.IsActive {
			return nil
		}

		active, err := s.repo.CountActive(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if active <= 1 {
			sub, err := s.subRepo.FindByTenant(ctx, tx, tenantID)
			if err != nil && !errors.Is(err, subscriptiondomain.ErrNotFound) {
				return err
			}
			// A billing subscription must always retain a usable method.
			if sub != nil && sub.Status != subscriptiondomain.StatusTrial &&
				sub.Status != subscriptiondomain.StatusCanceled {
				return pmdomain.ErrInvalidState
			}
		}

		wasDefault := method.IsDefault
		method.IsActive = false
		method.IsDefault = false
		if err := s.repo.Update(ctx, tx, method); err != nil {
			return err
		}

		if wasDefault {
			if err := s.promoteNewestActive(ctx, tx, tenantID); err != nil {
				return err
			}
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			TenantID: tenantID,
			Type:     events.EventPaymentMethodChanged,
			Payload: map[string]any{
				"payment_method_id": method.ID.String(),
				"change":            "deactivated",
			},
			DedupeKey: "pm-deactivated:" + method.ID.String(),
		})
	})
	if err != nil {
		return err
	}

	targetID := methodID.String()
	if err := s.auditSvc.Log(ctx, &tenantID, "payment_method.deactivated", "payment_method", &targetID, nil); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return nil
}

func (s *Service) promoteNewestActive(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error {
	methods, err := s.repo.List(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	for _, candidate := range methods {
		if candidate.IsActive {
			candidate.IsDefault = true
			return s.repo.Update(ctx, tx, candidate)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]*pmdomain.PaymentMethod, error) {
	return s.repo.List(ctx, s.db, tenantID)
}
