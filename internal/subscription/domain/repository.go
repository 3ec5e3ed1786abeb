package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error

	// FindByTenant returns the tenant's live subscription. Pass a locked
	// session (db.LockForUpdate) when the row will be mutated.
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)

	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error

	// InsertTransition appends a transition record. Returns false without
	// error when the idempotency key already exists.
	InsertTransition(ctx context.Context, db *gorm.DB, transition *Transition) (bool, error)

	// TransitionExists reports whether an idempotency key was already
	// applied. Checked before side effects run, since an external charge
	// cannot be rolled back with the transaction.
	TransitionExists(ctx context.Context, db *gorm.DB, idempotencyKey string) (bool, error)

	// DueTrials returns trial subscriptions whose trial_end has passed.
	DueTrials(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Subscription, error)

	// DueRollovers returns active subscriptions whose period has ended.
	DueRollovers(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Subscription, error)

	// PastDue returns subscriptions awaiting a charge retry.
	PastDue(ctx context.Context, db *gorm.DB, limit int) ([]*Subscription, error)

	// TrialsEndingWithin returns trial subscriptions whose trial_end falls
	// inside (now, now+window], for reminder notifications.
	TrialsEndingWithin(ctx context.Context, db *gorm.DB, now time.Time, window time.Duration, limit int) ([]*Subscription, error)
}
