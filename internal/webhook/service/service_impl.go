package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mesahq/mesa/internal/clock"
	"github.com/mesahq/mesa/internal/observability/metrics"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	webhookdomain "github.com/mesahq/mesa/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      webhookdomain.Repository
	SubSvc    subscriptiondomain.Service
	Processor processor.Processor
	Metrics   *metrics.BillingMetrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      webhookdomain.Repository
	subSvc    subscriptiondomain.Service
	processor processor.Processor
	metrics   *metrics.BillingMetrics
}

func NewService(p Params) webhookdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		subSvc:    p.SubSvc,
		processor: p.Processor,
		metrics:   p.Metrics,
	}
}

// normalizedEvent is the payload shape delivered by the processor
// boundary after vendor translation.
type normalizedEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	TenantID  string `json:"tenant_id"`
	ChargeRef string `json:"charge_ref"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (s *Service) Handle(ctx context.Context, provider string, payload []byte, sigHeader string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return webhookdomain.ErrInvalidPayload
	}

	// Authenticity first: nothing is touched on a bad signature.
	if err := s.processor.VerifyWebhookSignature(payload, sigHeader); err != nil {
		s.metrics.RecordWebhookEvent(ctx, "rejected")
		return webhookdomain.ErrInvalidSignature
	}

	event, tenantID, err := s.parse(payload)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "rejected")
		return err
	}

	now := s.clock.Now()
	record := &webhookdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		TenantID:        &tenantID,
		Provider:        provider,
		ExternalEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	disposition := "processed"
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			// Redelivery. The unique constraint guarantees a prior delivery
			// holds (or held) the row; acknowledge without reprocessing.
			disposition = "duplicate"
			return nil
		}

		if err := s.dispatch(ctx, tx, event, tenantID, provider); err != nil {
			return err
		}
		return s.repo.MarkProcessed(ctx, tx, record.ID, now)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordWebhookEvent(ctx, disposition)
	return nil
}

func (s *Service) parse(payload []byte) (normalizedEvent, snowflake.ID, error) {
	var event normalizedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return normalizedEvent{}, 0, webhookdomain.ErrInvalidPayload
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return normalizedEvent{}, 0, webhookdomain.ErrInvalidPayload
	}
	tenantID, err := snowflake.ParseString(strings.TrimSpace(event.TenantID))
	if err != nil || tenantID == 0 {
		return normalizedEvent{}, 0, webhookdomain.ErrInvalidPayload
	}
	return event, tenantID, nil
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event normalizedEvent, tenantID snowflake.ID, provider string) error {
	kind, ok := s.mapEvent(ctx, event, tenantID)
	if !ok {
		// Unknown types are acknowledged for forward compatibility.
		s.log.Info("webhook event ignored",
			zap.String("provider", provider),
			zap.String("event_type", event.Type),
		)
		s.metrics.RecordWebhookEvent(ctx, "ignored")
		return nil
	}

	err := s.subSvc.ApplyTx(ctx, tx, subscriptiondomain.TransitionInput{
		TenantID:       tenantID,
		Event:          kind,
		IdempotencyKey: fmt.Sprintf("wh:%s:%s", provider, event.ID),
		ChargeRef:      event.ChargeRef,
		ChargeAmount:   event.Amount,
	})
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		// Replayed or out-of-order. Logged by the state machine; the
		// delivery is still acknowledged and marked processed.
		return nil
	}
	return err
}

// mapEvent translates a processor event into a state-machine input based
// on the subscription's current status.
func (s *Service) mapEvent(ctx context.Context, event normalizedEvent, tenantID snowflake.ID) (subscriptiondomain.EventKind, bool) {
	switch event.Type {
	case webhookdomain.EventChargeSucceeded:
		sub, err := s.subSvc.Get(ctx, tenantID)
		if err != nil {
			return "", false
		}
		if sub.Status == subscriptiondomain.StatusPastDue {
			return subscriptiondomain.EventRetryChargeSucceeded, true
		}
		// Charge already settled locally; nothing to converge.
		return "", false
	case webhookdomain.EventChargeFailed:
		return subscriptiondomain.EventRetryChargeFailed, true
	case webhookdomain.EventSubscriptionCanceled:
		return subscriptiondomain.EventCancelRequested, true
	default:
		return "", false
	}
}
