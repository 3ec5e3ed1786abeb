package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/paymentmethod"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// Stripe adapts the Stripe API to the Processor interface.
type Stripe struct {
	log           *zap.Logger
	webhookSecret string
}

// NewStripe configures the global Stripe client. httpClient carries the
// tracing transport so outbound API calls appear in request traces.
func NewStripe(log *zap.Logger, secretKey, webhookSecret string, httpClient *http.Client) *Stripe {
	stripe.Key = secretKey
	if httpClient != nil {
		stripe.SetHTTPClient(httpClient)
	}
	return &Stripe{
		log:           log.Named("processor.stripe"),
		webhookSecret: webhookSecret,
	}
}

func (p *Stripe) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	cus, err := customer.New(&stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(params.Name),
		Email:  stripe.String(params.Email),
	})
	if err != nil {
		return "", translateStripe(err)
	}
	return cus.ID, nil
}

func (p *Stripe) AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) (Instrument, error) {
	pm, err := paymentmethod.Attach(methodRef, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerRef),
	})
	if err != nil {
		return Instrument{}, translateStripe(err)
	}

	inst := Instrument{
		ProviderRef: pm.ID,
		Type:        string(pm.Type),
	}
	if pm.Card != nil {
		inst.Brand = string(pm.Card.Brand)
		inst.Last4 = pm.Card.Last4
		inst.ExpMonth = int(pm.Card.ExpMonth)
		inst.ExpYear = int(pm.Card.ExpYear)
	}
	if pm.BillingDetails != nil {
		inst.HolderName = pm.BillingDetails.Name
	}
	return inst, nil
}

func (p *Stripe) Charge(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	intent, err := paymentintent.New(&stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.MethodRef),
		Description:   stripe.String(req.Description),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return ChargeOutcome{
				Succeeded:   false,
				FailureCode: string(stripeErr.Code),
			}, nil
		}
		return ChargeOutcome{}, translateStripe(err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		p.log.Warn("payment intent not settled",
			zap.String("intent_id", intent.ID),
			zap.String("status", string(intent.Status)),
		)
		return ChargeOutcome{
			Succeeded:   false,
			ChargeRef:   intent.ID,
			FailureCode: string(intent.Status),
		}, nil
	}
	return ChargeOutcome{Succeeded: true, ChargeRef: intent.ID}, nil
}

func (p *Stripe) VerifyWebhookSignature(payload []byte, sigHeader string) error {
	if _, err := webhook.ConstructEvent(payload, sigHeader, p.webhookSecret); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func translateStripe(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeAPI:
			return fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Code)
		case stripe.ErrorTypeInvalidRequest:
			return ErrInvalidInstrument
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
