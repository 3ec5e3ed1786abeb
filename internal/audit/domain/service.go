package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service writes audit records. The write path is append-only and is never
// filtered by the scoping bypass it records.
type Service interface {
	Log(ctx context.Context, tenantID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
}
