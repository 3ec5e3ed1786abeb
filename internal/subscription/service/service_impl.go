package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mesahq/mesa/internal/audit/domain"
	"github.com/mesahq/mesa/internal/billingcycle"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/events"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	"github.com/mesahq/mesa/internal/notify"
	"github.com/mesahq/mesa/internal/observability/metrics"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"github.com/mesahq/mesa/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	PMRepo     pmdomain.Repository
	TenantRepo tenantdomain.Repository
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service
	Processor  processor.Processor
	Outbox     *events.Outbox
	Notifier   notify.Notifier
	Metrics    *metrics.BillingMetrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	pmRepo     pmdomain.Repository
	tenantRepo tenantdomain.Repository
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
	processor  processor.Processor
	outbox     *events.Outbox
	notifier   notify.Notifier
	metrics    *metrics.BillingMetrics
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		clock:      p.Clock,
		repo:       p.Repo,
		pmRepo:     p.PMRepo,
		tenantRepo: p.TenantRepo,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
		processor:  p.Processor,
		outbox:     p.Outbox,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}
}

func (s *Service) StartTrial(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, plan string, periodMonths int) (*subscriptiondomain.Subscription, error) {
	planEntry, err := billingcycle.LookupPlan(plan)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if !supportedPeriod(periodMonths) {
		return nil, subscriptiondomain.ErrInvalidPeriod
	}

	now := s.clock.Now()
	trialEnd := now.AddDate(0, 0, s.cfg.Billing.TrialDays)

	sub := &subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		TenantID:           tenantID,
		Plan:               planEntry.Code,
		PeriodMonths:       periodMonths,
		Status:             subscriptiondomain.StatusTrial,
		Currency:           s.cfg.Billing.DefaultCurrency,
		TrialStart:         &now,
		TrialEnd:           &trialEnd,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		return nil, err
	}

	// Zero-amount invoice marking the trial period, so every period the
	// tenant was served has a billing artifact.
	_, err = s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Amount:         0,
		Currency:       sub.Currency,
		PeriodStart:    now,
		PeriodEnd:      trialEnd,
		Succeeded:      true,
		Trial:          true,
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByTenant(ctx, s.db, tenantID)
}

func (s *Service) Access(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.Access, error) {
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return subscriptiondomain.Access{}, err
	}
	return subscriptiondomain.Access{
		Status:              sub.Status,
		Plan:                sub.Plan,
		PeriodMonths:        sub.PeriodMonths,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		TrialEnd:            sub.TrialEnd,
		CancelAt:            sub.CancelAt,
		PaymentPromptNeeded: sub.Status == subscriptiondomain.StatusPastDue,
		Blocked: sub.Status == subscriptiondomain.StatusSuspended ||
			sub.Status == subscriptiondomain.StatusCanceled,
	}, nil
}

func (s *Service) Apply(ctx context.Context, input subscriptiondomain.TransitionInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ApplyTx(ctx, tx, input)
	})
}

// ApplyTx runs one state-machine event. The subscription row is locked for
// the duration, which serializes transitions per tenant; the idempotency
// key check happens under that lock and before any external side effect.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, input subscriptiondomain.TransitionInput) error {
	if input.TenantID == 0 || input.IdempotencyKey == "" {
		return subscriptiondomain.ErrInvalidTransition
	}

	sub, err := s.repo.FindByTenant(ctx, db.LockForUpdate(tx), input.TenantID)
	if err != nil {
		return err
	}

	applied, err := s.repo.TransitionExists(ctx, tx, input.IdempotencyKey)
	if err != nil {
		return err
	}
	if applied {
		s.log.Debug("transition already applied",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("idempotency_key", input.IdempotencyKey),
		)
		return nil
	}

	from := sub.Status
	if from.Terminal() {
		return s.rejectTransition(sub, input)
	}

	var to subscriptiondomain.Status
	switch input.Event {
	case subscriptiondomain.EventTrialExpired:
		to, err = s.applyTrialExpired(ctx, tx, sub)
	case subscriptiondomain.EventPeriodRollover:
		to, err = s.applyPeriodRollover(ctx, tx, sub, input)
	case subscriptiondomain.EventRetryCharge:
		to, err = s.applyRetryCharge(ctx, tx, sub)
	case subscriptiondomain.EventRetryChargeSucceeded:
		to, err = s.applyRetrySucceeded(ctx, tx, sub, input)
	case subscriptiondomain.EventRetryChargeFailed:
		to, err = s.applyRetryFailed(ctx, tx, sub, input)
	case subscriptiondomain.EventCancelRequested:
		to, err = s.applyCancelRequested(sub)
	case subscriptiondomain.EventReactivationRequested:
		to, err = s.applyReactivation(ctx, tx, sub)
	default:
		err = subscriptiondomain.ErrInvalidTransition
	}
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		return s.rejectTransition(sub, input)
	}
	if err != nil {
		return err
	}

	sub.Status = to
	if err := s.repo.Update(ctx, tx, sub); err != nil {
		return err
	}

	inserted, err := s.repo.InsertTransition(ctx, tx, &subscriptiondomain.Transition{
		ID:             s.genID.Generate(),
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		IdempotencyKey: input.IdempotencyKey,
		Event:          string(input.Event),
		FromStatus:     string(from),
		ToStatus:       string(to),
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// Unreachable while the row lock is held; kept as a hard stop.
		return subscriptiondomain.ErrInvalidTransition
	}

	if err := s.outbox.PublishTx(ctx, tx, events.Event{
		TenantID: sub.TenantID,
		Type:     events.EventSubscriptionChanged,
		Payload: events.SubscriptionChangedPayload{
			SubscriptionID: sub.ID.String(),
			TenantID:       sub.TenantID.String(),
			FromStatus:     string(from),
			ToStatus:       string(to),
			EventKind:      string(input.Event),
		}.ToMap(),
		DedupeKey: "transition:" + input.IdempotencyKey,
	}); err != nil {
		return err
	}

	s.metrics.RecordTransition(ctx, string(from), string(to))
	s.log.Info("subscription transition",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("event", string(input.Event)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *Service) rejectTransition(sub *subscriptiondomain.Subscription, input subscriptiondomain.TransitionInput) error {
	s.log.Warn("illegal transition rejected",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("event", string(input.Event)),
		zap.String("status", string(sub.Status)),
	)
	return subscriptiondomain.ErrInvalidTransition
}

func (s *Service) applyTrialExpired(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (subscriptiondomain.Status, error) {
	if sub.Status != subscriptiondomain.StatusTrial {
		return "", subscriptiondomain.ErrInvalidTransition
	}
	now := s.clock.Now()

	if sub.CancelAt != nil && !sub.CancelAt.After(now) {
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplateCanceled, nil)
		return subscriptiondomain.StatusCanceled, nil
	}

	periodStart := now
	if sub.TrialEnd != nil {
		periodStart = *sub.TrialEnd
	}
	start, end, err := billingcycle.PeriodBounds(periodStart, sub.PeriodMonths)
	if err != nil {
		return "", err
	}
	amount, err := s.planPrice(sub.Plan, sub.PeriodMonths)
	if err != nil {
		return "", err
	}

	method, err := s.pmRepo.FindDefault(ctx, tx, sub.TenantID)
	if errors.Is(err, pmdomain.ErrNotFound) {
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplateTrialEnded, map[string]any{
			"reason": "no_payment_method",
		})
		return subscriptiondomain.StatusSuspended, nil
	}
	if err != nil {
		return "", err
	}

	outcome := s.charge(ctx, sub, method, amount, fmt.Sprintf("First billing period (%s)", sub.Plan))
	if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Amount:         amount,
		Currency:       sub.Currency,
		PeriodStart:    start,
		PeriodEnd:      end,
		Succeeded:      outcome.Succeeded,
		ChargeRef:      outcome.ChargeRef,
		FailureCode:    outcome.FailureCode,
	}); err != nil {
		return "", err
	}

	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	if outcome.Succeeded {
		sub.RetryCount = 0
		return subscriptiondomain.StatusActive, nil
	}
	s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentFailed, map[string]any{
		"failure_code": outcome.FailureCode,
	})
	return subscriptiondomain.StatusPastDue, nil
}

func (s *Service) applyPeriodRollover(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, input subscriptiondomain.TransitionInput) (subscriptiondomain.Status, error) {
	if sub.Status != subscriptiondomain.StatusActive {
		return "", subscriptiondomain.ErrInvalidTransition
	}
	now := s.clock.Now()

	if sub.CancelAt != nil && !sub.CancelAt.After(now) {
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplateCanceled, nil)
		return subscriptiondomain.StatusCanceled, nil
	}

	// A pending downgrade takes effect at the boundary.
	if sub.PendingPlan != nil && *sub.PendingPlan != "" {
		sub.Plan = *sub.PendingPlan
		sub.PendingPlan = nil
	}

	start, end, err := billingcycle.PeriodBounds(sub.CurrentPeriodEnd, sub.PeriodMonths)
	if err != nil {
		return "", err
	}
	amount, err := s.planPrice(sub.Plan, sub.PeriodMonths)
	if err != nil {
		return "", err
	}
	if sub.CreditAmount > 0 {
		if sub.CreditAmount >= amount {
			sub.CreditAmount -= amount
			amount = 0
		} else {
			amount -= sub.CreditAmount
			sub.CreditAmount = 0
		}
	}

	outcome := processor.ChargeOutcome{Succeeded: true, ChargeRef: input.ChargeRef}
	if input.ChargeRef == "" && amount > 0 {
		method, err := s.pmRepo.FindDefault(ctx, tx, sub.TenantID)
		if errors.Is(err, pmdomain.ErrNotFound) {
			outcome = processor.ChargeOutcome{Succeeded: false, FailureCode: "no_payment_method"}
		} else if err != nil {
			return "", err
		} else {
			outcome = s.charge(ctx, sub, method, amount, fmt.Sprintf("Billing period renewal (%s)", sub.Plan))
		}
	}

	if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Amount:         amount,
		Currency:       sub.Currency,
		PeriodStart:    start,
		PeriodEnd:      end,
		Succeeded:      outcome.Succeeded,
		ChargeRef:      outcome.ChargeRef,
		FailureCode:    outcome.FailureCode,
	}); err != nil {
		return "", err
	}

	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	if outcome.Succeeded {
		sub.RetryCount = 0
		return subscriptiondomain.StatusActive, nil
	}
	s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentFailed, map[string]any{
		"failure_code": outcome.FailureCode,
	})
	return subscriptiondomain.StatusPastDue, nil
}

func (s *Service) applyRetryCharge(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (subscriptiondomain.Status, error) {
	if sub.Status != subscriptiondomain.StatusPastDue {
		return "", subscriptiondomain.ErrInvalidTransition
	}
	amount, err := s.planPrice(sub.Plan, sub.PeriodMonths)
	if err != nil {
		return "", err
	}

	method, err := s.pmRepo.FindDefault(ctx, tx, sub.TenantID)
	if errors.Is(err, pmdomain.ErrNotFound) {
		return s.recordRetryFailure(ctx, tx, sub, "no_payment_method")
	}
	if err != nil {
		return "", err
	}

	outcome := s.charge(ctx, sub, method, amount, fmt.Sprintf("Payment retry (%s)", sub.Plan))
	if outcome.Succeeded {
		if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			Plan:           sub.Plan,
			Amount:         amount,
			Currency:       sub.Currency,
			PeriodStart:    sub.CurrentPeriodStart,
			PeriodEnd:      sub.CurrentPeriodEnd,
			Succeeded:      true,
			ChargeRef:      outcome.ChargeRef,
		}); err != nil {
			return "", err
		}
		sub.RetryCount = 0
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentRecovered, nil)
		return subscriptiondomain.StatusActive, nil
	}
	return s.recordRetryFailure(ctx, tx, sub, outcome.FailureCode)
}

func (s *Service) recordRetryFailure(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, failureCode string) (subscriptiondomain.Status, error) {
	sub.RetryCount++
	if sub.RetryCount >= s.cfg.Billing.RetryLimit {
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplateSuspended, map[string]any{
			"failure_code": failureCode,
		})
		return subscriptiondomain.StatusSuspended, nil
	}
	s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentFailed, map[string]any{
		"failure_code": failureCode,
		"retry_count":  sub.RetryCount,
	})
	return subscriptiondomain.StatusPastDue, nil
}

// applyRetrySucceeded handles the webhook-settled success path: the
// processor already collected the payment, so no local charge is made.
func (s *Service) applyRetrySucceeded(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, input subscriptiondomain.TransitionInput) (subscriptiondomain.Status, error) {
	if sub.Status != subscriptiondomain.StatusPastDue {
		return "", subscriptiondomain.ErrInvalidTransition
	}
	amount := input.ChargeAmount
	if amount == 0 {
		var err error
		amount, err = s.planPrice(sub.Plan, sub.PeriodMonths)
		if err != nil {
			return "", err
		}
	}
	if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Amount:         amount,
		Currency:       sub.Currency,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		Succeeded:      true,
		ChargeRef:      input.ChargeRef,
	}); err != nil {
		return "", err
	}
	sub.RetryCount = 0
	s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentRecovered, nil)
	return subscriptiondomain.StatusActive, nil
}

func (s *Service) applyRetryFailed(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, input subscriptiondomain.TransitionInput) (subscriptiondomain.Status, error) {
	switch sub.Status {
	case subscriptiondomain.StatusActive:
		// Rollover charge failure reported asynchronously.
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplatePaymentFailed, nil)
		return subscriptiondomain.StatusPastDue, nil
	case subscriptiondomain.StatusPastDue:
		return s.recordRetryFailure(ctx, tx, sub, "processor_reported")
	default:
		return "", subscriptiondomain.ErrInvalidTransition
	}
}

func (s *Service) applyCancelRequested(sub *subscriptiondomain.Subscription) (subscriptiondomain.Status, error) {
	// Cancellation is effective at period end; access remains until then.
	cancelAt := sub.CurrentPeriodEnd
	sub.CancelAt = &cancelAt
	return sub.Status, nil
}

func (s *Service) applyReactivation(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (subscriptiondomain.Status, error) {
	if sub.Status != subscriptiondomain.StatusSuspended {
		return "", subscriptiondomain.ErrInvalidTransition
	}
	method, err := s.pmRepo.FindDefault(ctx, tx, sub.TenantID)
	if errors.Is(err, pmdomain.ErrNotFound) {
		return "", subscriptiondomain.ErrInvalidState
	}
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	start, end, err := billingcycle.PeriodBounds(now, sub.PeriodMonths)
	if err != nil {
		return "", err
	}
	amount, err := s.planPrice(sub.Plan, sub.PeriodMonths)
	if err != nil {
		return "", err
	}

	outcome := s.charge(ctx, sub, method, amount, fmt.Sprintf("Reactivation (%s)", sub.Plan))
	if !outcome.Succeeded {
		return "", subscriptiondomain.ErrChargeFailed
	}
	if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Amount:         amount,
		Currency:       sub.Currency,
		PeriodStart:    start,
		PeriodEnd:      end,
		Succeeded:      true,
		ChargeRef:      outcome.ChargeRef,
	}); err != nil {
		return "", err
	}

	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.CancelAt = nil
	sub.RetryCount = 0
	return subscriptiondomain.StatusActive, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	err := s.Apply(ctx, subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventCancelRequested,
		IdempotencyKey: fmt.Sprintf("cancel:%d:%d", tenantID, s.clock.Now().Unix()),
	})
	if err != nil {
		return nil, err
	}
	targetID := tenantID.String()
	if err := s.auditSvc.Log(ctx, &tenantID, "subscription.cancel_requested", "subscription", &targetID, nil); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return s.repo.FindByTenant(ctx, s.db, tenantID)
}

func (s *Service) Reactivate(ctx context.Context, tenantID snowflake.ID) error {
	err := s.Apply(ctx, subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventReactivationRequested,
		IdempotencyKey: fmt.Sprintf("reactivate:%d:%d", tenantID, s.clock.Now().Unix()),
	})
	if err != nil {
		return err
	}
	targetID := tenantID.String()
	if auditErr := s.auditSvc.Log(ctx, &tenantID, "subscription.reactivated", "subscription", &targetID, nil); auditErr != nil {
		s.log.Warn("audit write failed", zap.Error(auditErr))
	}
	return nil
}

func (s *Service) ChangePlan(ctx context.Context, tenantID snowflake.ID, newPlan string) (*subscriptiondomain.PlanChangeResult, error) {
	newEntry, err := billingcycle.LookupPlan(newPlan)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	var result subscriptiondomain.PlanChangeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenant(ctx, db.LockForUpdate(tx), tenantID)
		if err != nil {
			return err
		}
		if sub.Plan == newEntry.Code {
			result = subscriptiondomain.PlanChangeResult{Plan: sub.Plan}
			return nil
		}
		oldEntry, err := billingcycle.LookupPlan(sub.Plan)
		if err != nil {
			return err
		}

		// During trial the plan switches freely; billing has not started.
		if sub.Status == subscriptiondomain.StatusTrial {
			sub.Plan = newEntry.Code
			result = subscriptiondomain.PlanChangeResult{Plan: sub.Plan}
			return s.repo.Update(ctx, tx, sub)
		}
		if sub.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrInvalidState
		}

		oldPrice, err := billingcycle.Price(oldEntry.MonthlyPrice, sub.PeriodMonths, billingcycle.DefaultDiscounts)
		if err != nil {
			return err
		}
		newPrice, err := billingcycle.Price(newEntry.MonthlyPrice, sub.PeriodMonths, billingcycle.DefaultDiscounts)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		totalDays := int(sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart).Hours() / 24)
		daysRemaining := int(sub.CurrentPeriodEnd.Sub(now).Hours() / 24)
		if daysRemaining < 0 {
			daysRemaining = 0
		}
		if daysRemaining > totalDays {
			daysRemaining = totalDays
		}
		proration, err := billingcycle.Prorate(oldPrice, newPrice, daysRemaining, totalDays)
		if err != nil {
			return err
		}

		if newEntry.Rank > oldEntry.Rank {
			// Upgrade: charge the prorated difference now.
			if proration.Charge > 0 {
				method, err := s.pmRepo.FindDefault(ctx, tx, sub.TenantID)
				if errors.Is(err, pmdomain.ErrNotFound) {
					return subscriptiondomain.ErrInvalidState
				}
				if err != nil {
					return err
				}
				outcome := s.charge(ctx, sub, method, proration.Charge, fmt.Sprintf("Plan upgrade to %s", newEntry.Code))
				if !outcome.Succeeded {
					return subscriptiondomain.ErrChargeFailed
				}
				if _, err := s.invoiceSvc.FinalizeTx(ctx, tx, invoicedomain.FinalizeInput{
					TenantID:       sub.TenantID,
					SubscriptionID: sub.ID,
					Plan:           newEntry.Code,
					Amount:         proration.Charge,
					Currency:       sub.Currency,
					PeriodStart:    now,
					PeriodEnd:      sub.CurrentPeriodEnd,
					Succeeded:      true,
					ChargeRef:      outcome.ChargeRef,
				}); err != nil {
					return err
				}
			}
			sub.Plan = newEntry.Code
			sub.PendingPlan = nil
			result = subscriptiondomain.PlanChangeResult{
				Plan:           sub.Plan,
				ProratedCharge: proration.Charge,
			}
		} else {
			// Downgrade: effective next rollover, remainder carried as credit.
			pending := newEntry.Code
			sub.PendingPlan = &pending
			sub.CreditAmount += proration.Credit
			result = subscriptiondomain.PlanChangeResult{
				Plan:        sub.Plan,
				PendingPlan: pending,
				Credit:      proration.Credit,
			}
		}

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			TenantID: sub.TenantID,
			Type:     events.EventSubscriptionPlanMoved,
			Payload: map[string]any{
				"plan":         result.Plan,
				"pending_plan": result.PendingPlan,
			},
			DedupeKey: fmt.Sprintf("plan-change:%d:%d", sub.ID, now.Unix()),
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) OnPaymentMethodAdded(ctx context.Context, tenantID snowflake.ID) error {
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}
	if sub.Status != subscriptiondomain.StatusPastDue {
		return nil
	}
	return s.Apply(ctx, subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventRetryCharge,
		IdempotencyKey: fmt.Sprintf("pm-retry:%d:%d", sub.ID, s.genID.Generate()),
	})
}

// charge runs a bounded external charge. Timeouts and processor outages
// fold into a failed outcome so the caller always lands in a defined
// state; the processor's eventual webhook remains authoritative.
func (s *Service) charge(ctx context.Context, sub *subscriptiondomain.Subscription, method *pmdomain.PaymentMethod, amount int64, description string) processor.ChargeOutcome {
	chargeCtx := ctx
	if s.cfg.Processor.ChargeTimeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, s.cfg.Processor.ChargeTimeout)
		defer cancel()
	}

	var customerRef string
	if tenant, err := s.tenantRepo.Find(ctx, s.db, sub.TenantID); err == nil &&
		tenant.ProcessorCustomerRef != nil {
		customerRef = *tenant.ProcessorCustomerRef
	}
	methodRef := ""
	if method.ProviderRef != nil {
		methodRef = *method.ProviderRef
	}

	outcome, err := s.processor.Charge(chargeCtx, processor.ChargeRequest{
		CustomerRef: customerRef,
		MethodRef:   methodRef,
		Amount:      amount,
		Currency:    sub.Currency,
		Description: description,
		ReferenceID: sub.ID.String(),
	})
	if err != nil {
		s.log.Warn("charge attempt failed at processor",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.Error(err),
		)
		s.metrics.RecordChargeAttempt(ctx, "unavailable")
		return processor.ChargeOutcome{Succeeded: false, FailureCode: "processor_unavailable"}
	}
	if outcome.Succeeded {
		s.metrics.RecordChargeAttempt(ctx, "succeeded")
	} else {
		s.metrics.RecordChargeAttempt(ctx, "declined")
	}
	return outcome
}

func (s *Service) planPrice(plan string, periodMonths int) (int64, error) {
	entry, err := billingcycle.LookupPlan(plan)
	if err != nil {
		return 0, err
	}
	return billingcycle.Price(entry.MonthlyPrice, periodMonths, billingcycle.DefaultDiscounts)
}

func supportedPeriod(months int) bool {
	for _, period := range billingcycle.SupportedPeriods {
		if months == period {
			return true
		}
	}
	return false
}
