// Package retention runs the daily cleanup of dedupe and delivery records.
// Deletes are bounded by age, idempotent, and safe to re-run; only counts
// are logged.
package retention

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Retention horizons. Receipts must outlive any plausible webhook replay;
// outbox events are kept longer for audit.
const (
	ProcessedEventsDays = 90
	OutboxEventsDays    = 180
	IdempotencyKeysDays = 30
)

// Report counts what one run deleted.
type Report struct {
	ProcessedEvents int64 `json:"processed_events"`
	OutboxEvents    int64 `json:"outbox_events"`
	IdempotencyKeys int64 `json:"idempotency_keys"`
	ContactRefs     int64 `json:"contact_refs"`
}

// Run executes the cleanup. Each table is its own statement so a failure in
// one leaves the others' progress committed.
func Run(ctx context.Context, pool *pgxpool.Pool) (*Report, error) {
	r := &Report{}

	tag, err := pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM processed_events WHERE received_at < now() - interval '%d days'`, ProcessedEventsDays))
	if err != nil {
		return nil, fmt.Errorf("retention: processed_events: %w", err)
	}
	r.ProcessedEvents = tag.RowsAffected()

	// Delivery rows go with their events.
	tag, err = pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM outbox_deliveries WHERE outbox_event_id IN (
			SELECT id FROM outbox_events WHERE created_at < now() - interval '%d days')`, OutboxEventsDays))
	if err != nil {
		return nil, fmt.Errorf("retention: outbox_deliveries: %w", err)
	}
	tag, err = pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM outbox_events WHERE created_at < now() - interval '%d days'`, OutboxEventsDays))
	if err != nil {
		return nil, fmt.Errorf("retention: outbox_events: %w", err)
	}
	r.OutboxEvents = tag.RowsAffected()

	tag, err = pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM idempotency_keys
		WHERE expires_at < now() OR created_at < now() - interval '%d days'`, IdempotencyKeysDays))
	if err != nil {
		return nil, fmt.Errorf("retention: idempotency_keys: %w", err)
	}
	r.IdempotencyKeys = tag.RowsAffected()

	tag, err = pool.Exec(ctx, `DELETE FROM contact_refs WHERE expires_at < now()`)
	if err != nil {
		return nil, fmt.Errorf("retention: contact_refs: %w", err)
	}
	r.ContactRefs = tag.RowsAffected()

	zerolog.Ctx(ctx).Info().
		Int64("processed_events", r.ProcessedEvents).
		Int64("outbox_events", r.OutboxEvents).
		Int64("idempotency_keys", r.IdempotencyKeys).
		Int64("contact_refs", r.ContactRefs).
		Msg("retention sweep complete")
	return r, nil
}
