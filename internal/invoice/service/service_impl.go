package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/events"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	"github.com/mesahq/mesa/internal/invoice/render"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       invoicedomain.Repository
	TenantRepo tenantdomain.Repository
	Renderer   render.Renderer
	Outbox     *events.Outbox
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       invoicedomain.Repository
	tenantRepo tenantdomain.Repository
	renderer   render.Renderer
	outbox     *events.Outbox
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tenantRepo: p.TenantRepo,
		renderer:   p.Renderer,
		outbox:     p.Outbox,
	}
}

func (s *Service) FinalizeTx(ctx context.Context, tx *gorm.DB, input invoicedomain.FinalizeInput) (*invoicedomain.Invoice, error) {
	if input.TenantID == 0 || input.SubscriptionID == 0 {
		return nil, invoicedomain.ErrNotFound
	}
	if !input.PeriodEnd.After(input.PeriodStart) {
		return nil, invoicedomain.ErrInvalidPeriod
	}
	if input.Amount < 0 {
		return nil, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	id := s.genID.Generate()

	status := invoicedomain.StatusFailed
	if input.Succeeded {
		status = invoicedomain.StatusPaid
	}

	metadata := datatypes.JSONMap{"plan": input.Plan}
	if input.Trial {
		metadata["trial"] = true
	}
	if input.FailureCode != "" {
		metadata["failure_code"] = input.FailureCode
	}

	invoice := &invoicedomain.Invoice{
		ID:             id,
		TenantID:       input.TenantID,
		SubscriptionID: input.SubscriptionID,
		Number:         invoiceNumber(input.TenantID, now, id),
		Amount:         input.Amount,
		Currency:       input.Currency,
		PeriodStart:    input.PeriodStart,
		PeriodEnd:      input.PeriodEnd,
		Status:         status,
		Metadata:       metadata,
		CreatedAt:      now,
	}
	if input.ChargeRef != "" {
		ref := input.ChargeRef
		invoice.ChargeRef = &ref
	}

	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		return nil, err
	}

	err := s.outbox.PublishTx(ctx, tx, events.Event{
		TenantID: input.TenantID,
		Type:     events.EventInvoiceFinalized,
		Payload: events.InvoiceFinalizedPayload{
			InvoiceID:     invoice.ID.String(),
			InvoiceNumber: invoice.Number,
			TenantID:      invoice.TenantID.String(),
			Amount:        invoice.Amount,
			Currency:      invoice.Currency,
			Status:        string(invoice.Status),
		}.ToMap(),
		DedupeKey: "invoice:" + invoice.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice finalized",
		zap.String("tenant_id", invoice.TenantID.String()),
		zap.String("number", invoice.Number),
		zap.String("status", string(invoice.Status)),
		zap.Int64("amount", invoice.Amount),
	)
	return invoice, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, limit int) ([]*invoicedomain.Invoice, error) {
	return s.repo.List(ctx, s.db, tenantID, limit)
}

func (s *Service) Get(ctx context.Context, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.repo.Find(ctx, s.db, tenantID, invoiceID)
}

func (s *Service) RenderHTML(ctx context.Context, tenantID, invoiceID snowflake.ID) (string, error) {
	invoice, err := s.repo.Find(ctx, s.db, tenantID, invoiceID)
	if err != nil {
		return "", err
	}
	tenant, err := s.tenantRepo.Find(ctx, s.db, tenantID)
	if err != nil {
		return "", err
	}

	description := "Subscription"
	if plan, ok := invoice.Metadata["plan"].(string); ok && plan != "" {
		description = fmt.Sprintf("Subscription (%s)", plan)
	}
	if trial, ok := invoice.Metadata["trial"].(bool); ok && trial {
		description = "Trial period"
	}

	return s.renderer.RenderHTML(render.Input{
		Invoice: render.InvoiceView{
			Number:      invoice.Number,
			Status:      string(invoice.Status),
			IssuedAt:    invoice.CreatedAt,
			PeriodStart: invoice.PeriodStart,
			PeriodEnd:   invoice.PeriodEnd,
			Amount:      invoice.Amount,
			Currency:    invoice.Currency,
		},
		Tenant: render.TenantView{
			Name:  tenant.Name,
			Email: tenant.ContactEmail,
		},
		Items: []render.LineItemView{
			{Description: description, Amount: invoice.Amount},
		},
	})
}

// invoiceNumber builds a human-readable unique number. The id suffix keeps
// numbers distinct when several invoices for one tenant land in the same
// second (failed charge followed by a successful retry).
func invoiceNumber(tenantID snowflake.ID, now time.Time, id snowflake.ID) string {
	return fmt.Sprintf("INV-%d-%s-%03d", tenantID, now.UTC().Format("20060102150405"), id%1000)
}
