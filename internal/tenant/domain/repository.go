package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	SetCustomerRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
}
