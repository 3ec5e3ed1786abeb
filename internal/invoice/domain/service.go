package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("invoice_not_found")
	ErrInvalidPeriod = errors.New("invalid_invoice_period")
	ErrInvalidAmount = errors.New("invalid_invoice_amount")
)

// FinalizeInput derives an invoice from a charge outcome. Finalization is
// triggered only by the state machine or the webhook processor, never by
// user action, so one period cannot accumulate duplicate paid invoices.
type FinalizeInput struct {
	TenantID       snowflake.ID
	SubscriptionID snowflake.ID
	Plan           string
	Amount         int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Succeeded      bool
	ChargeRef      string
	FailureCode    string
	Trial          bool
}

type Service interface {
	// FinalizeTx writes the invoice inside the caller's transaction so the
	// invoice and the driving state transition commit together.
	FinalizeTx(ctx context.Context, tx *gorm.DB, input FinalizeInput) (*Invoice, error)

	List(ctx context.Context, tenantID snowflake.ID, limit int) ([]*Invoice, error)

	Get(ctx context.Context, tenantID, invoiceID snowflake.ID) (*Invoice, error)

	// RenderHTML produces a printable document for one invoice.
	RenderHTML(ctx context.Context, tenantID, invoiceID snowflake.ID) (string, error)
}
