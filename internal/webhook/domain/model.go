package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent is the dedup ledger for processor deliveries. The unique
// (provider, external_event_id) pair guarantees at-most-once processing
// regardless of redelivery.
type WebhookEvent struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	TenantID        *snowflake.ID `gorm:"index"`
	Provider        string        `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event"`
	ExternalEventID string        `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string        `gorm:"type:text;not null"`
	Payload         datatypes.JSON
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// Normalized event types emitted by the payment processor boundary.
const (
	EventChargeSucceeded      = "charge.succeeded"
	EventChargeFailed         = "charge.failed"
	EventSubscriptionCanceled = "subscription.canceled"
)
