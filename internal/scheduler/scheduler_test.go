package scheduler

import (
	"context"
	"sync"
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
	subscriptionrepo "github.com/mesahq/mesa/internal/subscription/repository"
	subscriptionservice "github.com/mesahq/mesa/internal/subscription/service"
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

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(ctx context.Context, tenantID snowflake.ID, templateKind string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, templateKind)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, call := range n.calls {
		if call == kind {
			total++
		}
	}
	return total
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *testClock
	sched    *Scheduler
	notifier *recordingNotifier
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

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{t: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)}
	log := zap.NewNop()
	cfg := config.Config{
		Environment: "test",
		Billing: config.BillingConfig{
			TrialDays:       14,
			RetryLimit:      3,
			DefaultCurrency: "USD",
		},
		Scheduler: config.SchedulerConfig{
			Enabled:            true,
			BatchSize:          50,
			TrialReminderAhead: 72 * time.Hour,
		},
	}
	notifier := &recordingNotifier{}
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
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Cfg:        cfg,
		Clock:      clk,
		Repo:       subscriptionrepo.Provide(),
		PMRepo:     pmrepo.Provide(),
		TenantRepo: tenantrepo.Provide(),
		InvoiceSvc: invoiceSvc,
		AuditSvc:   auditSvc,
		Processor:  processor.NewLocal(log, "whsec_test"),
		Outbox:     outbox,
		Notifier:   notifier,
	})
	sched := New(Params{
		DB:       db,
		Log:      log,
		Cfg:      cfg,
		Clock:    clk,
		SubRepo:  subscriptionrepo.Provide(),
		SubSvc:   subSvc,
		Notifier: notifier,
	})

	return &fixture{db: db, node: node, clk: clk, sched: sched, notifier: notifier}
}

func (f *fixture) seed(t *testing.T, status subscriptiondomain.Status, trialEnd, periodEnd time.Time, withMethod bool) snowflake.ID {
	t.Helper()
	now := f.clk.Now()
	tenant := &tenantdomain.Tenant{
		ID:           f.node.Generate(),
		Name:         "sched-" + t.Name(),
		ContactEmail: "sched@test",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	sub := &subscriptiondomain.Subscription{
		ID:                 f.node.Generate(),
		TenantID:           tenant.ID,
		Plan:               "basic",
		PeriodMonths:       1,
		Status:             status,
		Currency:           "USD",
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == subscriptiondomain.StatusTrial {
		trialStart := trialEnd.AddDate(0, 0, -14)
		sub.TrialStart = &trialStart
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodStart = trialStart
		sub.CurrentPeriodEnd = trialEnd
	}
	if err := f.db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if withMethod {
		ref := "pm_ok"
		method := &pmdomain.PaymentMethod{
			ID:          f.node.Generate(),
			TenantID:    tenant.ID,
			Type:        pmdomain.TypeCard,
			Provider:    pmdomain.ProviderExternal,
			ProviderRef: &ref,
			Last4:       "4242",
			Brand:       "visa",
			ExpMonth:    12,
			ExpYear:     2099,
			IsDefault:   true,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := f.db.Create(method).Error; err != nil {
			t.Fatalf("create method: %v", err)
		}
	}
	return tenant.ID
}

func (f *fixture) status(t *testing.T, tenantID snowflake.ID) subscriptiondomain.Status {
	t.Helper()
	var sub subscriptiondomain.Subscription
	if err := f.db.First(&sub, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return sub.Status
}

func TestRunOnceExpiresDueTrials(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	due := f.seed(t, subscriptiondomain.StatusTrial, now.Add(-time.Hour), now, true)
	notDue := f.seed(t, subscriptiondomain.StatusTrial, now.Add(200*time.Hour), now, true)

	f.sched.RunOnce(context.Background())

	if got := f.status(t, due); got != subscriptiondomain.StatusActive {
		t.Fatalf("due trial should activate, got %s", got)
	}
	if got := f.status(t, notDue); got != subscriptiondomain.StatusTrial {
		t.Fatalf("future trial must be untouched, got %s", got)
	}
}

func TestRunOnceRollsOverDuePeriods(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	tenantID := f.seed(t, subscriptiondomain.StatusActive, time.Time{}, now.Add(-time.Hour), true)

	f.sched.RunOnce(context.Background())

	var sub subscriptiondomain.Subscription
	if err := f.db.First(&sub, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active after rollover, got %s", sub.Status)
	}
	if !sub.CurrentPeriodEnd.After(now) {
		t.Fatalf("expected advanced period end, got %v", sub.CurrentPeriodEnd)
	}
}

func TestRetrySweepIsHourBucketed(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	tenantID := f.seed(t, subscriptiondomain.StatusPastDue, time.Time{}, now.AddDate(0, 0, 10), false)

	// Two sweeps in the same hour attempt at most one retry.
	f.sched.RunOnce(context.Background())
	f.sched.RunOnce(context.Background())

	var transitions int64
	if err := f.db.Model(&subscriptiondomain.Transition{}).
		Where("tenant_id = ? AND event = ?", tenantID, string(subscriptiondomain.EventRetryCharge)).
		Count(&transitions).Error; err != nil {
		t.Fatalf("count transitions: %v", err)
	}
	if transitions != 1 {
		t.Fatalf("expected one retry in the hour bucket, got %d", transitions)
	}

	// The next hour allows another attempt.
	f.clk.t = now.Add(time.Hour)
	f.sched.RunOnce(context.Background())
	if err := f.db.Model(&subscriptiondomain.Transition{}).
		Where("tenant_id = ? AND event = ?", tenantID, string(subscriptiondomain.EventRetryCharge)).
		Count(&transitions).Error; err != nil {
		t.Fatalf("count transitions: %v", err)
	}
	if transitions != 2 {
		t.Fatalf("expected a second retry next hour, got %d", transitions)
	}
}

func TestTrialRemindersWithinWindow(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()
	f.seed(t, subscriptiondomain.StatusTrial, now.Add(48*time.Hour), now, true)
	f.seed(t, subscriptiondomain.StatusTrial, now.Add(200*time.Hour), now, true)

	f.sched.RunOnce(context.Background())

	if got := f.notifier.count(notify.TemplateTrialReminder); got != 1 {
		t.Fatalf("expected one trial reminder, got %d", got)
	}
}
