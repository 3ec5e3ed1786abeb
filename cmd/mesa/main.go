package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mesahq/mesa/internal/audit"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/config"
	"github.com/mesahq/mesa/internal/events"
	"github.com/mesahq/mesa/internal/invoice"
	"github.com/mesahq/mesa/internal/migration"
	"github.com/mesahq/mesa/internal/notify"
	"github.com/mesahq/mesa/internal/observability"
	"github.com/mesahq/mesa/internal/paymentmethod"
	"github.com/mesahq/mesa/internal/processor"
	"github.com/mesahq/mesa/internal/scheduler"
	"github.com/mesahq/mesa/internal/seed"
	"github.com/mesahq/mesa/internal/server"
	"github.com/mesahq/mesa/internal/subscription"
	"github.com/mesahq/mesa/internal/tenant"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"github.com/mesahq/mesa/internal/webhook"
	"github.com/mesahq/mesa/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		db.Module,
		fx.Provide(events.NewOutbox),
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),
		audit.Module,
		notify.Module,
		processor.Module,
		invoice.Module,
		subscription.Module,
		tenant.Module,
		paymentmethod.Module,
		webhook.Module,
		scheduler.Module,
		server.Module,
		fx.Invoke(func(cfg config.Config, conn *gorm.DB, svc tenantdomain.Service) error {
			if !cfg.Bootstrap.EnsureDemoTenant {
				return nil
			}
			return seed.EnsureDemoTenant(conn, svc)
		}),
	)
	app.Run()
}
