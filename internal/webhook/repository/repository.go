package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	webhookdomain "github.com/mesahq/mesa/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() webhookdomain.Repository {
	return &repository{}
}

func (r *repository) InsertEvent(ctx context.Context, db *gorm.DB, event *webhookdomain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "provider"},
				{Name: "external_event_id"},
			},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindEvent(ctx context.Context, db *gorm.DB, provider, externalEventID string) (*webhookdomain.WebhookEvent, error) {
	var event webhookdomain.WebhookEvent
	err := db.WithContext(ctx).
		First(&event, "provider = ? AND external_event_id = ?", provider, externalEventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Model(&webhookdomain.WebhookEvent{}).
		Where("id = ?", id).
		Update("processed_at", processedAt).Error
}
