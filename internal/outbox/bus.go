package outbox

import (
	"context"
	"fmt"

	"github.com/richardliu001/reliability-core/internal/correlation"
	"github.com/richardliu001/reliability-core/internal/dbtx"
	"github.com/richardliu001/reliability-core/internal/event"
	"gorm.io/gorm"
)

// Bus is the default event.IntegrationEventBus: it writes the event to the
// outbox inside the transaction found in ctx (via internal/dbtx), so the
// write commits atomically with the command's business writes.
type Bus struct {
	store  *Store
	blogID func(ctx context.Context) int64
}

// NewBus builds a Bus over store. blogIDFn extracts the tenant scope from
// ctx; pass a constant func for single-tenant deployments.
func NewBus(store *Store, blogIDFn func(ctx context.Context) int64) *Bus {
	if blogIDFn == nil {
		blogIDFn = func(context.Context) int64 { return 0 }
	}
	return &Bus{store: store, blogID: blogIDFn}
}

// Publish implements event.IntegrationEventBus. If ie.IsUnique(), pending
// duplicates of the same event type are cancelled first, per §6. The tx is
// resolved from ctx (via internal/dbtx) rather than hardcoded, so a
// transactional command's publish step lands inside that same transaction
// instead of on a separate autocommit connection.
func (b *Bus) Publish(ctx context.Context, ie event.IntegrationEvent) error {
	return b.PublishContext(ctx, nil, ie)
}

// PublishContext is the explicit-tx form, for callers that already have a
// *gorm.DB on hand and don't want it resolved from ctx.
func (b *Bus) PublishContext(ctx context.Context, tx *gorm.DB, ie event.IntegrationEvent) error {
	if tx == nil {
		tx = dbtx.From(ctx, b.store.db)
	}
	if ie.IsUnique() {
		if _, err := b.store.CancelDuplicates(ctx, ie.Name(), ""); err != nil {
			return fmt.Errorf("cancel duplicates: %w", err)
		}
	}
	corr := correlation.From(ctx)
	_, err := b.store.Write(ctx, tx, ie, WriteParams{
		CorrelationID: corr.Peek(),
		CommandID:     corr.CommandID(),
		BlogID:        b.blogID(ctx),
	})
	return err
}
