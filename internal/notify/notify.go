// Package notify is the boundary to the messaging collaborator. Delivery
// is fire-and-forget: failures are logged and never block a billing
// transition.
package notify

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Template kinds sent by the billing core.
const (
	TemplateTrialReminder    = "trial_reminder"
	TemplateTrialEnded       = "trial_ended"
	TemplatePaymentFailed    = "payment_failed"
	TemplatePaymentRecovered = "payment_recovered"
	TemplateSuspended        = "subscription_suspended"
	TemplateCanceled         = "subscription_canceled"
)

type Notifier interface {
	Notify(ctx context.Context, tenantID snowflake.ID, templateKind string, payload map[string]any)
}

// LogNotifier writes notifications to the log. It stands in for the real
// email/SMS collaborator, which consumes the same interface.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, tenantID snowflake.ID, templateKind string, payload map[string]any) {
	n.log.Info("notification dispatched",
		zap.String("tenant_id", tenantID.String()),
		zap.String("template", templateKind),
		zap.Any("payload", payload),
	)
}
