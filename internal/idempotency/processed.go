// Package idempotency holds the three dedupe substrates: processed-event
// receipts, client idempotency keys, and the append-only outbox with its
// delivery guard.
package idempotency

import (
	"context"
	"fmt"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Event sources recorded in processed_events.
const (
	SourceStripe = "stripe"
	SourceTasks  = "tasks"
)

// WhatsAppSource names the receipt source for a WhatsApp provider.
func WhatsAppSource(provider string) string {
	return "wa:" + provider
}

// MarkProcessed records the receipt for an externally sourced event. It is
// the first durable effect of every webhook and task invocation: a false
// return means the event was already handled and the caller must return a
// success-shaped no-op without any further side effect.
func MarkProcessed(ctx context.Context, q store.Querier, propertyID, source, externalID string) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO processed_events (property_id, source, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		propertyID, source, externalID)
	if err != nil {
		return false, fmt.Errorf("idempotency: mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
