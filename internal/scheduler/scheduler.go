// Package scheduler runs the periodic billing sweeps: trial expiries,
// period rollovers, past-due charge retries and trial reminders. Every
// piece of work funnels into the state machine with a deterministic
// idempotency key, so concurrent scheduler instances and repeated runs
// are harmless.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/notify"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Clock    clock.Clock
	SubRepo  subscriptiondomain.Repository
	SubSvc   subscriptiondomain.Service
	Notifier notify.Notifier
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.SchedulerConfig
	clock    clock.Clock
	subRepo  subscriptiondomain.Repository
	subSvc   subscriptiondomain.Service
	notifier notify.Notifier
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		cfg:      p.Cfg.Scheduler,
		clock:    p.Clock,
		subRepo:  p.SubRepo,
		subSvc:   p.SubSvc,
		notifier: p.Notifier,
	}
}

// RunOnce executes one full sweep. The cron trigger and tests both call
// this entry point.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sweepTrialExpiries(ctx)
	s.sweepRollovers(ctx)
	s.sweepRetries(ctx)
	s.sweepTrialReminders(ctx)
}

func (s *Scheduler) sweepTrialExpiries(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.subRepo.DueTrials(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("trial sweep fetch failed", zap.Error(err))
		return
	}
	for _, sub := range subs {
		key := fmt.Sprintf("trial:%d:%d", sub.ID, sub.TrialEnd.Unix())
		s.apply(ctx, sub.TenantID, subscriptiondomain.EventTrialExpired, key)
	}
}

func (s *Scheduler) sweepRollovers(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.subRepo.DueRollovers(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("rollover sweep fetch failed", zap.Error(err))
		return
	}
	for _, sub := range subs {
		key := fmt.Sprintf("rollover:%d:%d", sub.ID, sub.CurrentPeriodEnd.Unix())
		s.apply(ctx, sub.TenantID, subscriptiondomain.EventPeriodRollover, key)
	}
}

// sweepRetries attempts at most one charge retry per subscription per
// hour; the hour bucket in the idempotency key is the backoff policy.
func (s *Scheduler) sweepRetries(ctx context.Context) {
	subs, err := s.subRepo.PastDue(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("retry sweep fetch failed", zap.Error(err))
		return
	}
	hourBucket := s.clock.Now().Format("2006010215")
	for _, sub := range subs {
		key := fmt.Sprintf("retry:%d:%s", sub.ID, hourBucket)
		s.apply(ctx, sub.TenantID, subscriptiondomain.EventRetryCharge, key)
	}
}

func (s *Scheduler) sweepTrialReminders(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.subRepo.TrialsEndingWithin(ctx, s.db, now, s.cfg.TrialReminderAhead, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("trial reminder fetch failed", zap.Error(err))
		return
	}
	for _, sub := range subs {
		s.notifier.Notify(ctx, sub.TenantID, notify.TemplateTrialReminder, map[string]any{
			"trial_end": sub.TrialEnd,
			"plan":      sub.Plan,
		})
	}
}

func (s *Scheduler) apply(ctx context.Context, tenantID snowflake.ID, event subscriptiondomain.EventKind, key string) {
	err := s.subSvc.Apply(ctx, subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          event,
		IdempotencyKey: key,
	})
	if err != nil && !errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		s.log.Error("scheduled transition failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}
