// Package usage records per-call token consumption and aggregates it per
// user. Recording is best-effort: an analysis must never fail because the
// bookkeeping did.
package usage

import (
	"context"

	"github.com/shoplens/cartdetect/internal/model"
)

// Store persists usage events.
type Store interface {
	Insert(ctx context.Context, ev model.UsageEvent) error
	// ListByUser returns a user's events, oldest first. A nil userID
	// selects events recorded without a user.
	ListByUser(ctx context.Context, userID *string) ([]model.UsageEvent, error)
	Migrate(ctx context.Context) error
	Close() error
}
