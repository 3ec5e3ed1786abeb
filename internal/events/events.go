package events

// Billing event types written to the outbox for downstream consumers
// (notification fan-out, analytics export).
const (
	EventTenantRegistered      = "tenant.registered"
	EventSubscriptionChanged   = "subscription.status_changed"
	EventSubscriptionPlanMoved = "subscription.plan_changed"
	EventPaymentMethodChanged  = "payment_method.changed"
	EventInvoiceFinalized      = "invoice.finalized"
	EventChargeAttempted       = "charge.attempted"
)

// SubscriptionChangedPayload captures a state-machine transition.
type SubscriptionChangedPayload struct {
	SubscriptionID string `json:"subscription_id"`
	TenantID       string `json:"tenant_id"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
	EventKind      string `json:"event_kind"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p SubscriptionChangedPayload) ToMap() map[string]any {
	return map[string]any{
		"subscription_id": p.SubscriptionID,
		"tenant_id":       p.TenantID,
		"from_status":     p.FromStatus,
		"to_status":       p.ToStatus,
		"event_kind":      p.EventKind,
	}
}

// InvoiceFinalizedPayload captures a finalized invoice for export.
type InvoiceFinalizedPayload struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	TenantID      string `json:"tenant_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p InvoiceFinalizedPayload) ToMap() map[string]any {
	return map[string]any{
		"invoice_id":     p.InvoiceID,
		"invoice_number": p.InvoiceNumber,
		"tenant_id":      p.TenantID,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"status":         p.Status,
	}
}
