package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("subscription_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidPlan       = errors.New("invalid_plan")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrInvalidState      = errors.New("invalid_state")
	ErrChargeFailed      = errors.New("charge_failed")
)

// TransitionInput feeds one event into the state machine. IdempotencyKey
// must be stable across redeliveries of the same underlying trigger; the
// webhook processor derives it from the external event id, the scheduler
// from the period boundary being processed.
type TransitionInput struct {
	TenantID       snowflake.ID
	Event          EventKind
	IdempotencyKey string

	// ChargeRef and ChargeAmount are set when an external webhook already
	// settled the charge, so the transition must not re-charge.
	ChargeRef    string
	ChargeAmount int64
}

// PlanChangeResult reports what a mid-cycle plan change did.
type PlanChangeResult struct {
	Plan           string `json:"plan"`
	PendingPlan    string `json:"pending_plan,omitempty"`
	ProratedCharge int64  `json:"prorated_charge"`
	Credit         int64  `json:"credit"`
}

type Service interface {
	// StartTrial creates the initial trial subscription inside the caller's
	// transaction. Called once per tenant at registration.
	StartTrial(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, plan string, periodMonths int) (*Subscription, error)

	// Get returns the tenant's subscription.
	Get(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)

	// Access derives the billing gate for the fronting application.
	Access(ctx context.Context, tenantID snowflake.ID) (Access, error)

	// Apply runs one state-machine event in its own transaction.
	Apply(ctx context.Context, input TransitionInput) error

	// ApplyTx runs one state-machine event inside an existing transaction,
	// so a webhook can mark its ledger row and transition atomically.
	ApplyTx(ctx context.Context, tx *gorm.DB, input TransitionInput) error

	// Cancel schedules cancellation at the end of the current period.
	Cancel(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)

	// Reactivate attempts to move a suspended subscription back to active
	// with an immediate charge.
	Reactivate(ctx context.Context, tenantID snowflake.ID) error

	// ChangePlan switches tiers mid-cycle. Upgrades charge prorated
	// difference immediately; downgrades take effect at the next rollover
	// with the difference carried as credit.
	ChangePlan(ctx context.Context, tenantID snowflake.ID, newPlan string) (*PlanChangeResult, error)

	// OnPaymentMethodAdded clears the payment prompt path: a past_due
	// subscription gets an immediate retry attempt.
	OnPaymentMethodAdded(ctx context.Context, tenantID snowflake.ID) error
}
