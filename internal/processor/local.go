package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Local simulates a payment backend for development and tests. Charges
// succeed unless the method reference contains "fail", and return
// ErrUnavailable when it contains "unavailable", so decline and outage
// paths can be exercised without external state.
type Local struct {
	log           *zap.Logger
	webhookSecret []byte
	seq           atomic.Int64
}

func NewLocal(log *zap.Logger, webhookSecret string) *Local {
	return &Local{
		log:           log.Named("processor.local"),
		webhookSecret: []byte(webhookSecret),
	}
}

func (p *Local) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	ref := fmt.Sprintf("cus_local_%d", p.seq.Add(1))
	p.log.Debug("created local customer", zap.String("customer_ref", ref))
	return ref, nil
}

func (p *Local) AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) (Instrument, error) {
	if strings.TrimSpace(methodRef) == "" {
		return Instrument{}, ErrInvalidInstrument
	}
	return Instrument{
		ProviderRef: methodRef,
		Type:        "card",
		Brand:       "visa",
		Last4:       "4242",
		ExpMonth:    12,
		ExpYear:     2099,
	}, nil
}

func (p *Local) Charge(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	if strings.Contains(req.MethodRef, "unavailable") {
		return ChargeOutcome{}, ErrUnavailable
	}
	if strings.Contains(req.MethodRef, "fail") {
		return ChargeOutcome{
			Succeeded:   false,
			FailureCode: "card_declined",
		}, nil
	}
	return ChargeOutcome{
		Succeeded: true,
		ChargeRef: fmt.Sprintf("ch_local_%d", p.seq.Add(1)),
	}, nil
}

// VerifyWebhookSignature expects the hex HMAC-SHA256 of the payload keyed
// with the configured webhook secret.
func (p *Local) VerifyWebhookSignature(payload []byte, sigHeader string) error {
	if !hmac.Equal([]byte(p.Sign(payload)), []byte(strings.TrimSpace(sigHeader))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature header for a payload. Tests and local
// webhook replays use it to build valid requests.
func (p *Local) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.webhookSecret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
