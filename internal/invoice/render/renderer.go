package render

import "time"

// Input is the deterministic view rendered into an invoice document.
type Input struct {
	Invoice InvoiceView
	Tenant  TenantView
	Items   []LineItemView
}

type InvoiceView struct {
	Number      string
	Status      string
	IssuedAt    time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	Amount      int64
	Currency    string
}

type TenantView struct {
	Name  string
	Email string
}

type LineItemView struct {
	Description string
	Amount      int64
}

type Renderer interface {
	RenderHTML(input Input) (string, error)
}
