package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a tenant subscription.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusCanceled }

// EventKind is an input to the subscription state machine.
type EventKind string

const (
	EventTrialExpired          EventKind = "trial_expired"
	EventPeriodRollover        EventKind = "period_rollover"
	EventRetryCharge           EventKind = "retry_charge"
	EventRetryChargeSucceeded  EventKind = "retry_charge_succeeded"
	EventRetryChargeFailed     EventKind = "retry_charge_failed"
	EventCancelRequested       EventKind = "cancel_requested"
	EventReactivationRequested EventKind = "reactivation_requested"
)

// Subscription is the authoritative billing state for one tenant. Exactly
// one live row per tenant; rows are never deleted, only moved to canceled.
type Subscription struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	TenantID           snowflake.ID `gorm:"index"`
	Plan               string       `gorm:"type:text;not null"`
	PeriodMonths       int          `gorm:"not null"`
	Status             Status       `gorm:"type:text;not null"`
	Currency           string       `gorm:"type:text;not null"`
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CurrentPeriodStart time.Time `gorm:"not null"`
	CurrentPeriodEnd   time.Time `gorm:"not null"`
	CancelAt           *time.Time
	PendingPlan        *string `gorm:"type:text"`
	CreditAmount       int64   `gorm:"not null;default:0"`
	RetryCount         int     `gorm:"not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Transition is the append-only record of a state change. The idempotency
// key carries the dedup guarantee: inserting a duplicate key is the signal
// that the event was already applied.
type Transition struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"index"`
	SubscriptionID snowflake.ID
	IdempotencyKey string `gorm:"type:text;uniqueIndex"`
	Event          string `gorm:"type:text;not null"`
	FromStatus     string `gorm:"type:text;not null"`
	ToStatus       string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

// TableName sets the database table name.
func (Transition) TableName() string { return "subscription_transitions" }

// Access summarizes what the fronting application should allow for a
// tenant given its billing state.
type Access struct {
	Status              Status     `json:"status"`
	Plan                string     `json:"plan"`
	PeriodMonths        int        `json:"period_months"`
	CurrentPeriodEnd    time.Time  `json:"current_period_end"`
	TrialEnd            *time.Time `json:"trial_end,omitempty"`
	CancelAt            *time.Time `json:"cancel_at,omitempty"`
	PaymentPromptNeeded bool       `json:"payment_prompt_needed"`
	Blocked             bool       `json:"blocked"`
}
