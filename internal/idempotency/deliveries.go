package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// LeaseFreshness is how long a 'sending' row blocks other attempts. A stale
// lease means the previous attempt died mid-send; the next attempt takes
// over.
const LeaseFreshness = 60 * time.Second

// Delivery statuses.
const (
	DeliverySending         = "sending"
	DeliverySent            = "sent"
	DeliveryFailedPermanent = "failed_permanent"
)

// LeaseResult is the outcome of trying to take the delivery lease.
type LeaseResult int

const (
	// LeaseAcquired: this attempt owns the send.
	LeaseAcquired LeaseResult = iota
	// LeaseAlreadySent: a previous attempt completed; return already_sent.
	LeaseAlreadySent
	// LeaseHeld: another attempt is in flight and fresh; return 500 so the
	// queue retries later.
	LeaseHeld
	// LeaseFailedPermanent: a previous attempt failed terminally.
	LeaseFailedPermanent
)

// AcquireLease implements the delivery guard for one outbox event. It must
// run in its own short transaction so the lease commits before the provider
// call happens outside any transaction.
func AcquireLease(ctx context.Context, q store.Querier, propertyID string, outboxEventID int64) (LeaseResult, error) {
	var status string
	var updatedAt time.Time
	err := q.QueryRow(ctx, `
		SELECT status, updated_at FROM outbox_deliveries
		WHERE property_id = $1 AND outbox_event_id = $2
		FOR UPDATE`,
		propertyID, outboxEventID).Scan(&status, &updatedAt)
	switch {
	case store.IsNoRows(err):
		_, err = q.Exec(ctx, `
			INSERT INTO outbox_deliveries (property_id, outbox_event_id, status, attempt_count, updated_at)
			VALUES ($1, $2, $3, 1, now())`,
			propertyID, outboxEventID, DeliverySending)
		if err != nil {
			if store.IsUniqueViolation(err, "") {
				// Lost the race to a concurrent attempt.
				return LeaseHeld, nil
			}
			return 0, fmt.Errorf("idempotency: insert delivery: %w", err)
		}
		return LeaseAcquired, nil
	case err != nil:
		return 0, fmt.Errorf("idempotency: read delivery: %w", err)
	}

	switch status {
	case DeliverySent:
		return LeaseAlreadySent, nil
	case DeliveryFailedPermanent:
		return LeaseFailedPermanent, nil
	case DeliverySending:
		if time.Since(updatedAt) < LeaseFreshness {
			return LeaseHeld, nil
		}
	}

	_, err = q.Exec(ctx, `
		UPDATE outbox_deliveries
		SET status = $3, attempt_count = attempt_count + 1, updated_at = now()
		WHERE property_id = $1 AND outbox_event_id = $2`,
		propertyID, outboxEventID, DeliverySending)
	if err != nil {
		return 0, fmt.Errorf("idempotency: refresh lease: %w", err)
	}
	return LeaseAcquired, nil
}

// MarkSent finishes a delivery successfully.
func MarkSent(ctx context.Context, q store.Querier, propertyID string, outboxEventID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE outbox_deliveries
		SET status = $3, sent_at = now(), updated_at = now()
		WHERE property_id = $1 AND outbox_event_id = $2`,
		propertyID, outboxEventID, DeliverySent)
	if err != nil {
		return fmt.Errorf("idempotency: mark sent: %w", err)
	}
	return nil
}

// MarkFailedPermanent records a terminal delivery failure. lastError must
// already be sanitized; it is persisted as-is.
func MarkFailedPermanent(ctx context.Context, q store.Querier, propertyID string, outboxEventID int64, lastError string) error {
	_, err := q.Exec(ctx, `
		UPDATE outbox_deliveries
		SET status = $3, last_error = $4, updated_at = now()
		WHERE property_id = $1 AND outbox_event_id = $2`,
		propertyID, outboxEventID, DeliveryFailedPermanent, lastError)
	if err != nil {
		return fmt.Errorf("idempotency: mark failed: %w", err)
	}
	return nil
}

// RecordTransientFailure keeps the row in 'sending' but stores the sanitized
// error; the caller then returns 500 so the queue retries.
func RecordTransientFailure(ctx context.Context, q store.Querier, propertyID string, outboxEventID int64, lastError string) error {
	_, err := q.Exec(ctx, `
		UPDATE outbox_deliveries
		SET last_error = $3, updated_at = now()
		WHERE property_id = $1 AND outbox_event_id = $2`,
		propertyID, outboxEventID, lastError)
	if err != nil {
		return fmt.Errorf("idempotency: record transient: %w", err)
	}
	return nil
}
