package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() pmdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, method *pmdomain.PaymentMethod) error {
	return db.WithContext(ctx).Create(method).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, methodID snowflake.ID) (*pmdomain.PaymentMethod, error) {
	var method pmdomain.PaymentMethod
	err := db.WithContext(ctx).
		First(&method, "tenant_id = ? AND id = ?", tenantID, methodID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pmdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*pmdomain.PaymentMethod, error) {
	var methods []*pmdomain.PaymentMethod
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_default DESC, created_at DESC").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) FindDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*pmdomain.PaymentMethod, error) {
	var method pmdomain.PaymentMethod
	err := db.WithContext(ctx).
		First(&method, "tenant_id = ? AND is_default = ? AND is_active = ?", tenantID, true, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pmdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) CountActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&pmdomain.PaymentMethod{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Count(&count).Error
	return count, err
}

func (r *repository) ClearDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Model(&pmdomain.PaymentMethod{}).
		Where("tenant_id = ? AND is_default = ?", tenantID, true).
		Updates(map[string]any{
			"is_default": false,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, method *pmdomain.PaymentMethod) error {
	method.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(method).Error
}
