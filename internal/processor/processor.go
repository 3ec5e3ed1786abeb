// Package processor abstracts the external payment processor. The billing
// core only ever talks to this interface; the concrete backend is selected
// by configuration so tests and local development run without network
// credentials.
package processor

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the processor could not be reached or returned a
	// transient failure. Callers must not treat it as a decline.
	ErrUnavailable = errors.New("processor_unavailable")

	ErrInvalidInstrument = errors.New("invalid_instrument")
	ErrInvalidSignature  = errors.New("invalid_signature")
)

// CustomerParams describes the tenant being registered with the processor.
type CustomerParams struct {
	Name  string
	Email string
}

// Instrument is the processor's view of a stored payment method.
type Instrument struct {
	ProviderRef string
	Type        string
	Brand       string
	Last4       string
	ExpMonth    int
	ExpYear     int
	HolderName  string
}

// ChargeRequest asks the processor to collect a payment off-session.
type ChargeRequest struct {
	CustomerRef string
	MethodRef   string
	Amount      int64
	Currency    string
	Description string
	ReferenceID string
}

// ChargeOutcome reports the result of a charge attempt. Declines are not
// errors: Succeeded is false and FailureCode carries the processor's reason.
type ChargeOutcome struct {
	Succeeded   bool
	ChargeRef   string
	FailureCode string
}

type Processor interface {
	// CreateCustomer registers the tenant and returns the processor's
	// customer reference.
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	// AttachPaymentMethod binds an externally tokenized instrument to the
	// customer and returns its stored representation.
	AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) (Instrument, error)

	// Charge attempts an off-session payment.
	Charge(ctx context.Context, req ChargeRequest) (ChargeOutcome, error)

	// VerifyWebhookSignature checks the signature header of an inbound
	// webhook payload. It returns ErrInvalidSignature on mismatch.
	VerifyWebhookSignature(payload []byte, sigHeader string) error
}
