package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, subscriptiondomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repository) InsertTransition(ctx context.Context, db *gorm.DB, transition *subscriptiondomain.Transition) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(transition)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransitionExists(ctx context.Context, db *gorm.DB, idempotencyKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&subscriptiondomain.Transition{}).
		Where("idempotency_key = ?", idempotencyKey).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) DueTrials(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	return r.list(ctx, db, limit, "status = ? AND trial_end IS NOT NULL AND trial_end <= ?",
		subscriptiondomain.StatusTrial, now)
}

func (r *repository) DueRollovers(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	return r.list(ctx, db, limit, "status = ? AND current_period_end <= ?",
		subscriptiondomain.StatusActive, now)
}

func (r *repository) PastDue(ctx context.Context, db *gorm.DB, limit int) ([]*subscriptiondomain.Subscription, error) {
	return r.list(ctx, db, limit, "status = ?", subscriptiondomain.StatusPastDue)
}

func (r *repository) TrialsEndingWithin(ctx context.Context, db *gorm.DB, now time.Time, window time.Duration, limit int) ([]*subscriptiondomain.Subscription, error) {
	return r.list(ctx, db, limit,
		"status = ? AND trial_end IS NOT NULL AND trial_end > ? AND trial_end <= ?",
		subscriptiondomain.StatusTrial, now, now.Add(window))
}

func (r *repository) list(ctx context.Context, db *gorm.DB, limit int, query string, args ...any) ([]*subscriptiondomain.Subscription, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var subs []*subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where(query, args...).
		Order("current_period_end ASC, id ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
