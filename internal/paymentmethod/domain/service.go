package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound          = errors.New("payment_method_not_found")
	ErrInvalidState      = errors.New("invalid_state")
	ErrInvalidInstrument = errors.New("invalid_instrument")
	ErrLocalModeDenied   = errors.New("local_provider_denied")
	ErrUnknownProvider   = errors.New("unknown_provider")
)

// AddRequest covers both gateway paths. External requests carry only the
// processor-issued MethodRef; local requests carry the masked fields.
type AddRequest struct {
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	MethodRef  string `json:"method_ref"`
	Last4      string `json:"last4"`
	Brand      string `json:"brand"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	HolderName string `json:"holder_name"`
	SetDefault bool   `json:"set_default"`
}

type Service interface {
	// Add stores a payment method through the mode named by the request.
	Add(ctx context.Context, tenantID snowflake.ID, req AddRequest) (*PaymentMethod, error)

	// SetDefault atomically moves the default flag to the target method.
	SetDefault(ctx context.Context, tenantID snowflake.ID, methodID snowflake.ID) error

	// Deactivate soft-deletes a method. Fails with ErrInvalidState when it
	// is the sole active method and the subscription still bills.
	Deactivate(ctx context.Context, tenantID snowflake.ID, methodID snowflake.ID) error

	List(ctx context.Context, tenantID snowflake.ID) ([]*PaymentMethod, error)
}
