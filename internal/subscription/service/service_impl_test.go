package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/mesahq/mesa/internal/audit/repository"
	auditservice "github.com/mesahq/mesa/internal/audit/service"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/events"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	"github.com/mesahq/mesa/internal/invoice/render"
	invoicerepo "github.com/mesahq/mesa/internal/invoice/repository"
	invoiceservice "github.com/mesahq/mesa/internal/invoice/service"
	"github.com/mesahq/mesa/internal/notify"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	pmrepo "github.com/mesahq/mesa/internal/paymentmethod/repository"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	"github.com/mesahq/mesa/internal/subscription/repository"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	tenantrepo "github.com/mesahq/mesa/internal/tenant/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	clk  *testClock
	svc  subscriptiondomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&tenantdomain.Tenant{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Transition{},
		&pmdomain.PaymentMethod{},
		&invoicedomain.Invoice{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	createOutboxTable(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	log := zap.NewNop()
	cfg := config.Config{
		Environment: "test",
		Billing: config.BillingConfig{
			TrialDays:       14,
			RetryLimit:      3,
			DefaultCurrency: "USD",
		},
	}
	outbox := events.NewOutbox(db, node)

	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       invoicerepo.Provide(),
		TenantRepo: tenantrepo.Provide(),
		Renderer:   render.NewRenderer(),
		Outbox:     outbox,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	svc := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Cfg:        cfg,
		Clock:      clk,
		Repo:       repository.Provide(),
		PMRepo:     pmrepo.Provide(),
		TenantRepo: tenantrepo.Provide(),
		InvoiceSvc: invoiceSvc,
		AuditSvc:   auditSvc,
		Processor:  processor.NewLocal(log, "whsec_test"),
		Outbox:     outbox,
		Notifier:   notify.NewLogNotifier(log),
	})

	return &fixture{db: db, node: node, clk: clk, svc: svc}
}

func createOutboxTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS billing_events (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP
		)`,
	).Error; err != nil {
		t.Fatalf("create billing_events: %v", err)
	}
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_billing_events_dedupe
		 ON billing_events (tenant_id, dedupe_key)`,
	).Error; err != nil {
		t.Fatalf("index billing_events: %v", err)
	}
}

func (f *fixture) createTenant(t *testing.T, name string) snowflake.ID {
	t.Helper()
	tenant := &tenantdomain.Tenant{
		ID:           f.node.Generate(),
		Name:         name,
		ContactEmail: "owner@" + name + ".test",
		IsActive:     true,
		CreatedAt:    f.clk.Now(),
		UpdatedAt:    f.clk.Now(),
	}
	if err := f.db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant.ID
}

func (f *fixture) createSub(t *testing.T, tenantID snowflake.ID, status subscriptiondomain.Status, plan string, months int) *subscriptiondomain.Subscription {
	t.Helper()
	now := f.clk.Now()
	sub := &subscriptiondomain.Subscription{
		ID:                 f.node.Generate(),
		TenantID:           tenantID,
		Plan:               plan,
		PeriodMonths:       months,
		Status:             status,
		Currency:           "USD",
		CurrentPeriodStart: now.AddDate(0, 0, -15),
		CurrentPeriodEnd:   now.AddDate(0, 0, 15),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == subscriptiondomain.StatusTrial {
		trialStart := now.AddDate(0, 0, -14)
		trialEnd := now.AddDate(0, 0, -1)
		sub.TrialStart = &trialStart
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodStart = trialStart
		sub.CurrentPeriodEnd = trialEnd
	}
	if err := f.db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func (f *fixture) addMethod(t *testing.T, tenantID snowflake.ID, ref string) *pmdomain.PaymentMethod {
	t.Helper()
	method := &pmdomain.PaymentMethod{
		ID:        f.node.Generate(),
		TenantID:  tenantID,
		Type:      pmdomain.TypeCard,
		Provider:  pmdomain.ProviderExternal,
		Last4:     "4242",
		Brand:     "visa",
		ExpMonth:  12,
		ExpYear:   2099,
		IsDefault: true,
		IsActive:  true,
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}
	method.ProviderRef = &ref
	if err := f.db.Create(method).Error; err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	return method
}

func (f *fixture) reload(t *testing.T, tenantID snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := f.svc.Get(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	return sub
}

func (f *fixture) countInvoices(t *testing.T, tenantID snowflake.ID) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	return count
}

func (f *fixture) countTransitions(t *testing.T, tenantID snowflake.ID) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&subscriptiondomain.Transition{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		t.Fatalf("count transitions: %v", err)
	}
	return count
}

func TestStartTrialCreatesTrialInvoice(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-trial")

	sub, err := f.svc.StartTrial(context.Background(), f.db, tenantID, "basic", 1)
	if err != nil {
		t.Fatalf("start trial: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusTrial {
		t.Fatalf("expected trial, got %s", sub.Status)
	}
	wantEnd := f.clk.Now().AddDate(0, 0, 14)
	if !sub.TrialEnd.Equal(wantEnd) {
		t.Fatalf("expected trial end %v, got %v", wantEnd, sub.TrialEnd)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load trial invoice: %v", err)
	}
	if invoice.Amount != 0 || invoice.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected zero-amount paid invoice, got %d %s", invoice.Amount, invoice.Status)
	}
}

func TestStartTrialRejectsUnknownPlan(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-badplan")

	if _, err := f.svc.StartTrial(context.Background(), f.db, tenantID, "platinum", 1); !errors.Is(err, subscriptiondomain.ErrInvalidPlan) {
		t.Fatalf("expected invalid plan, got %v", err)
	}
	if _, err := f.svc.StartTrial(context.Background(), f.db, tenantID, "basic", 5); !errors.Is(err, subscriptiondomain.ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
}

func TestTrialExpiredChargesAndActivates(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-activate")
	sub := f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)
	f.addMethod(t, tenantID, "pm_ok")

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventTrialExpired,
		IdempotencyKey: "trial:1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := f.reload(t, tenantID)
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if !got.CurrentPeriodStart.Equal(*sub.TrialEnd) {
		t.Fatalf("expected period anchored at trial end, got %v", got.CurrentPeriodStart)
	}
	if !got.CurrentPeriodEnd.Equal(sub.TrialEnd.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected period end %v", got.CurrentPeriodEnd)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.Amount != 500 || invoice.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid 500, got %d %s", invoice.Amount, invoice.Status)
	}
}

func TestTrialExpiredWithoutMethodSuspends(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-nopm")
	f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventTrialExpired,
		IdempotencyKey: "trial:1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := f.reload(t, tenantID); got.Status != subscriptiondomain.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got.Status)
	}
	if count := f.countInvoices(t, tenantID); count != 0 {
		t.Fatalf("expected no invoice without a charge attempt, got %d", count)
	}
}

func TestTrialExpiredDeclinedGoesPastDue(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-declined")
	f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)
	f.addMethod(t, tenantID, "pm_fail")

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventTrialExpired,
		IdempotencyKey: "trial:1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := f.reload(t, tenantID); got.Status != subscriptiondomain.StatusPastDue {
		t.Fatalf("expected past_due, got %s", got.Status)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.Status != invoicedomain.StatusFailed {
		t.Fatalf("expected failed invoice, got %s", invoice.Status)
	}
}

func TestIdempotentReplayAppliesOnce(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-replay")
	f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)
	f.addMethod(t, tenantID, "pm_ok")

	input := subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventTrialExpired,
		IdempotencyKey: "trial:replay",
	}
	if err := f.svc.Apply(context.Background(), input); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := f.svc.Apply(context.Background(), input); err != nil {
		t.Fatalf("replay should ack, got %v", err)
	}

	if count := f.countTransitions(t, tenantID); count != 1 {
		t.Fatalf("expected one transition, got %d", count)
	}
	if count := f.countInvoices(t, tenantID); count != 1 {
		t.Fatalf("expected one invoice, got %d", count)
	}
}

func TestRetryChargeRecovers(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-recover")
	sub := f.createSub(t, tenantID, subscriptiondomain.StatusPastDue, "basic", 1)
	sub.RetryCount = 1
	if err := f.db.Save(sub).Error; err != nil {
		t.Fatalf("save: %v", err)
	}
	f.addMethod(t, tenantID, "pm_ok")

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventRetryCharge,
		IdempotencyKey: "retry:1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := f.reload(t, tenantID)
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected retry counter reset, got %d", got.RetryCount)
	}
}

func TestRetryExhaustionSuspends(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-exhaust")
	sub := f.createSub(t, tenantID, subscriptiondomain.StatusPastDue, "basic", 1)
	sub.RetryCount = 2
	if err := f.db.Save(sub).Error; err != nil {
		t.Fatalf("save: %v", err)
	}
	f.addMethod(t, tenantID, "pm_fail")

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventRetryCharge,
		IdempotencyKey: "retry:last",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := f.reload(t, tenantID)
	if got.Status != subscriptiondomain.StatusSuspended {
		t.Fatalf("expected suspended after retry limit, got %s", got.Status)
	}
	if got.RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %d", got.RetryCount)
	}
}

func TestProcessorOutageLandsPastDueNotSuspended(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-outage")
	f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)
	f.addMethod(t, tenantID, "pm_unavailable")

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventTrialExpired,
		IdempotencyKey: "trial:outage",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := f.reload(t, tenantID); got.Status != subscriptiondomain.StatusPastDue {
		t.Fatalf("expected past_due on outage, got %s", got.Status)
	}
}

func TestCancelThenRolloverCancels(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-cancel")
	sub := f.createSub(t, tenantID, subscriptiondomain.StatusActive, "basic", 1)
	f.addMethod(t, tenantID, "pm_ok")

	canceled, err := f.svc.Cancel(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != subscriptiondomain.StatusActive {
		t.Fatalf("cancel must not change status, got %s", canceled.Status)
	}
	if canceled.CancelAt == nil || !canceled.CancelAt.Equal(sub.CurrentPeriodEnd) {
		t.Fatalf("expected cancel_at at period end, got %v", canceled.CancelAt)
	}

	f.clk.t = sub.CurrentPeriodEnd.Add(time.Hour)
	err = f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventPeriodRollover,
		IdempotencyKey: "rollover:1",
	})
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if got := f.reload(t, tenantID); got.Status != subscriptiondomain.StatusCanceled {
		t.Fatalf("expected canceled, got %s", got.Status)
	}
}

func TestTerminalStateRejectsEvents(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-terminal")
	f.createSub(t, tenantID, subscriptiondomain.StatusCanceled, "basic", 1)

	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventPeriodRollover,
		IdempotencyKey: "rollover:terminal",
	})
	if !errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestChangePlanUpgradeChargesProrated(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-upgrade")
	f.createSub(t, tenantID, subscriptiondomain.StatusActive, "basic", 1)
	f.addMethod(t, tenantID, "pm_ok")

	result, err := f.svc.ChangePlan(context.Background(), tenantID, "premium")
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.Plan != "premium" {
		t.Fatalf("expected premium, got %s", result.Plan)
	}
	// 15 of 30 days remain: (9900-500)*15/30.
	if result.ProratedCharge != 4700 {
		t.Fatalf("expected prorated charge 4700, got %d", result.ProratedCharge)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.Amount != 4700 || invoice.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid 4700, got %d %s", invoice.Amount, invoice.Status)
	}
}

func TestChangePlanDowngradeDefersWithCredit(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-downgrade")
	sub := f.createSub(t, tenantID, subscriptiondomain.StatusActive, "premium", 1)
	f.addMethod(t, tenantID, "pm_ok")

	result, err := f.svc.ChangePlan(context.Background(), tenantID, "basic")
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.Plan != "premium" || result.PendingPlan != "basic" {
		t.Fatalf("expected pending downgrade, got %+v", result)
	}
	if result.Credit != 4700 {
		t.Fatalf("expected credit 4700, got %d", result.Credit)
	}

	// At the boundary the pending plan lands and credit covers the renewal.
	f.clk.t = sub.CurrentPeriodEnd.Add(time.Hour)
	err = f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventPeriodRollover,
		IdempotencyKey: "rollover:downgrade",
	})
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	got := f.reload(t, tenantID)
	if got.Plan != "basic" || got.PendingPlan != nil {
		t.Fatalf("expected plan basic applied, got %s pending %v", got.Plan, got.PendingPlan)
	}
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if got.CreditAmount != 4200 {
		t.Fatalf("expected remaining credit 4200, got %d", got.CreditAmount)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.Order("created_at DESC, id DESC").First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.Amount != 0 || invoice.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected fully credited renewal, got %d %s", invoice.Amount, invoice.Status)
	}
}

func TestChangePlanDuringTrialSwitchesFreely(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-trialswitch")
	f.createSub(t, tenantID, subscriptiondomain.StatusTrial, "basic", 1)

	result, err := f.svc.ChangePlan(context.Background(), tenantID, "premium")
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.Plan != "premium" || result.ProratedCharge != 0 {
		t.Fatalf("expected free trial switch, got %+v", result)
	}
	if count := f.countInvoices(t, tenantID); count != 0 {
		t.Fatalf("trial switch must not invoice, got %d", count)
	}
}

func TestReactivateSuspendedChargesNewPeriod(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-reactivate")
	f.createSub(t, tenantID, subscriptiondomain.StatusSuspended, "basic", 1)
	f.addMethod(t, tenantID, "pm_ok")

	if err := f.svc.Reactivate(context.Background(), tenantID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	got := f.reload(t, tenantID)
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if !got.CurrentPeriodStart.Equal(f.clk.Now()) {
		t.Fatalf("expected new period from now, got %v", got.CurrentPeriodStart)
	}
}

func TestReactivateWithoutMethodFails(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-reactivate-nopm")
	f.createSub(t, tenantID, subscriptiondomain.StatusSuspended, "basic", 1)

	err := f.svc.Reactivate(context.Background(), tenantID)
	if !errors.Is(err, subscriptiondomain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestWebhookSettledRolloverSkipsLocalCharge(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-settled")
	f.createSub(t, tenantID, subscriptiondomain.StatusActive, "basic", 1)

	// No payment method on file; the transition must still succeed because
	// the charge reference says the processor already collected.
	f.clk.t = f.clk.Now().AddDate(0, 0, 16)
	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          subscriptiondomain.EventPeriodRollover,
		IdempotencyKey: "rollover:settled",
		ChargeRef:      "ch_external_1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := f.reload(t, tenantID)
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}

	var invoice invoicedomain.Invoice
	if err := f.db.First(&invoice, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.ChargeRef == nil || *invoice.ChargeRef != "ch_external_1" {
		t.Fatalf("expected external charge ref on invoice, got %v", invoice.ChargeRef)
	}
}

func TestApplyUnknownTenant(t *testing.T) {
	f := setup(t)
	err := f.svc.Apply(context.Background(), subscriptiondomain.TransitionInput{
		TenantID:       f.node.Generate(),
		Event:          subscriptiondomain.EventRetryCharge,
		IdempotencyKey: "retry:ghost",
	})
	if !errors.Is(err, subscriptiondomain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccessDerivation(t *testing.T) {
	f := setup(t)
	tenantID := f.createTenant(t, "cafe-access")
	f.createSub(t, tenantID, subscriptiondomain.StatusPastDue, "basic", 1)

	access, err := f.svc.Access(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if !access.PaymentPromptNeeded || access.Blocked {
		t.Fatalf("past_due should prompt but not block, got %+v", access)
	}
}
