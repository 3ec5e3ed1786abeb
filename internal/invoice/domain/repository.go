package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Find(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]*Invoice, error)
}
