package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent appends a ledger row. Returns false without error when
	// the (provider, external event id) pair already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, externalEventID string) (*WebhookEvent, error)

	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
