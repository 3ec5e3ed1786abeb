package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() invoicedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).
		First(&invoice, "tenant_id = ? AND id = ?", tenantID, invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invoicedomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]*invoicedomain.Invoice, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var invoices []*invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
