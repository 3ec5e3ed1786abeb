package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status of an invoice. Rows are immutable once status leaves pending;
// corrections are new invoices, never edits.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Invoice is the append-only billing artifact for one period.
type Invoice struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"index"`
	SubscriptionID snowflake.ID
	Number         string `gorm:"type:text;uniqueIndex"`
	Amount         int64  `gorm:"not null"`
	Currency       string `gorm:"type:text;not null"`
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Status         Status            `gorm:"type:text;not null"`
	ChargeRef      *string           `gorm:"type:text"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
