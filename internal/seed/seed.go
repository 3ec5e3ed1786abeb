package seed

import (
	"context"
	"errors"

	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	demoTenantName  = "Demo Cafe"
	demoTenantEmail = "owner@demo.cafe"
)

// EnsureDemoTenant creates a trial tenant for local development so the API
// is usable right after startup. Registration runs through the tenant
// service, so the demo account gets the same trial subscription a real
// signup would.
func EnsureDemoTenant(db *gorm.DB, svc tenantdomain.Service) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	var existing tenantdomain.Tenant
	err := db.WithContext(ctx).Where("name = ?", demoTenantName).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = svc.Register(ctx, tenantdomain.RegisterRequest{
		Name:         demoTenantName,
		ContactEmail: demoTenantEmail,
	})
	return err
}
