package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() tenantdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tenantdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) SetCustomerRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string) error {
	return db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processor_customer_ref": ref,
			"updated_at":             time.Now().UTC(),
		}).Error
}

func (r *repository) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	result := db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tenantdomain.ErrNotFound
	}
	return nil
}
