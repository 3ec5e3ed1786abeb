package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BillingMetrics captures low-cardinality counters for the billing core.
type BillingMetrics struct {
	webhookEvents  metric.Int64Counter
	transitions    metric.Int64Counter
	chargeAttempts metric.Int64Counter
}

func NewBillingMetrics(provider metric.MeterProvider) (*BillingMetrics, error) {
	meter := provider.Meter("mesa/billing")

	webhookEvents, err := meter.Int64Counter("billing.webhook_events_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("billing.subscription_transitions_total")
	if err != nil {
		return nil, err
	}
	chargeAttempts, err := meter.Int64Counter("billing.charge_attempts_total")
	if err != nil {
		return nil, err
	}

	return &BillingMetrics{
		webhookEvents:  webhookEvents,
		transitions:    transitions,
		chargeAttempts: chargeAttempts,
	}, nil
}

// RecordWebhookEvent counts a webhook delivery by disposition
// (processed, duplicate, rejected, ignored).
func (m *BillingMetrics) RecordWebhookEvent(ctx context.Context, disposition string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", disposition)))
}

// RecordTransition counts a subscription state transition.
func (m *BillingMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordChargeAttempt counts a processor charge by outcome
// (succeeded, declined, unavailable).
func (m *BillingMetrics) RecordChargeAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.chargeAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
