package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

type Service interface {
	// Handle verifies, dedupes and dispatches one processor delivery.
	// A nil return means the delivery is acknowledged; replays of an
	// already-processed event acknowledge without touching state.
	Handle(ctx context.Context, provider string, payload []byte, sigHeader string) error
}
