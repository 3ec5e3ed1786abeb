package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, method *PaymentMethod) error

	// Find returns the method only when it belongs to the tenant.
	Find(ctx context.Context, db *gorm.DB, tenantID, methodID snowflake.ID) (*PaymentMethod, error)

	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*PaymentMethod, error)

	// FindDefault returns the tenant's default active method, or
	// ErrNotFound when the tenant has none.
	FindDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*PaymentMethod, error)

	CountActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)

	// ClearDefault drops the default flag from every method of the tenant.
	ClearDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error

	Update(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
}
