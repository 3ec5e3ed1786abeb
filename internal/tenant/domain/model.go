package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is a business account and the unit of data scoping. Rows are
// deactivated, never hard-deleted, so billing and audit history survives.
type Tenant struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	Name                 string       `gorm:"type:text;not null"`
	ContactEmail         string       `gorm:"type:text;not null"`
	ProcessorCustomerRef *string      `gorm:"type:text"`
	IsActive             bool         `gorm:"not null;default:true"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Roles carried by authenticated principals.
const (
	RoleOwner     = "owner"
	RoleStaff     = "staff"
	RoleSuperuser = "superuser"
)

// Principal is the authenticated caller as presented by the fronting
// application. TenantID is nil while registration is still in progress.
type Principal struct {
	UserID   snowflake.ID
	TenantID *snowflake.ID
	Role     string
}
