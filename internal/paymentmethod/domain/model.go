package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Providers a payment method can be stored under. "external" methods live
// at the payment processor and only masked fields are persisted locally;
// "local" methods exist for development and testing without a processor.
const (
	ProviderExternal = "external"
	ProviderLocal    = "local"
)

// Method types.
const (
	TypeCard   = "card"
	TypeBank   = "bank"
	TypeManual = "manual"
)

// KnownBrands is the fixed enumeration accepted for locally stored cards.
var KnownBrands = map[string]bool{
	"visa":       true,
	"mastercard": true,
	"amex":       true,
	"discover":   true,
	"jcb":        true,
}

// PaymentMethod stores the masked representation of a tenant instrument.
// Raw card data never enters this table; the schema has no columns for it.
// Rows are soft-deleted via IsActive to preserve invoice linkage.
type PaymentMethod struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"index"`
	Type        string       `gorm:"type:text;not null"`
	Provider    string       `gorm:"type:text;not null"`
	ProviderRef *string      `gorm:"type:text"`
	Last4       string       `gorm:"type:text;not null"`
	Brand       string       `gorm:"type:text;not null"`
	ExpMonth    int          `gorm:"not null"`
	ExpYear     int          `gorm:"not null"`
	HolderName  string       `gorm:"type:text;not null;default:''"`
	IsDefault   bool         `gorm:"not null;default:false"`
	IsActive    bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName sets the database table name.
func (PaymentMethod) TableName() string { return "payment_methods" }
