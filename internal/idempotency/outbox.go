package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Domain event types emitted to the outbox.
const (
	EventHoldCreated          = "hold.created"
	EventHoldExpired          = "hold.expired"
	EventHoldCancelled        = "hold.cancelled"
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentLate          = "payment.late"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
	EventQuoteReady           = "quote.ready"
	EventCheckoutLink         = "checkout.link_created"
)

// OutboxEvent is one row of the append-only stream. Payload carries
// aggregate ids, provider object ids, cents, currency, dates, room_type_id
// and occupancy counts only — no phone, name, email, document or free text.
type OutboxEvent struct {
	ID            int64          `json:"id"`
	PropertyID    string         `json:"property_id"`
	EventType     string         `json:"event_type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Emit appends an event inside the originating transaction and returns its
// id so callers can schedule delivery tasks keyed on it.
func Emit(ctx context.Context, q store.Querier, propertyID, eventType, aggregateType, aggregateID string, payload map[string]any) (int64, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("idempotency: outbox payload: %w", err)
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO outbox_events (property_id, event_type, aggregate_type, aggregate_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		propertyID, eventType, aggregateType, aggregateID, raw).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("idempotency: outbox emit: %w", err)
	}
	return id, nil
}

// GetEvent loads a single outbox event by id within a property.
func GetEvent(ctx context.Context, q store.Querier, propertyID string, eventID int64) (*OutboxEvent, error) {
	var ev OutboxEvent
	var raw []byte
	err := q.QueryRow(ctx, `
		SELECT id, property_id, event_type, aggregate_type, aggregate_id, payload, created_at
		FROM outbox_events
		WHERE property_id = $1 AND id = $2`,
		propertyID, eventID).Scan(&ev.ID, &ev.PropertyID, &ev.EventType, &ev.AggregateType, &ev.AggregateID, &raw, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("idempotency: outbox get: %w", err)
	}
	if err := json.Unmarshal(raw, &ev.Payload); err != nil {
		return nil, fmt.Errorf("idempotency: outbox payload decode: %w", err)
	}
	return &ev, nil
}

// ListEvents returns recent events for the dashboard outbox view.
func ListEvents(ctx context.Context, q store.Querier, propertyID string, limit int) ([]OutboxEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := q.Query(ctx, `
		SELECT id, property_id, event_type, aggregate_type, aggregate_id, payload, created_at
		FROM outbox_events
		WHERE property_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("idempotency: outbox list: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.PropertyID, &ev.EventType, &ev.AggregateType, &ev.AggregateID, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("idempotency: outbox scan: %w", err)
		}
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return nil, fmt.Errorf("idempotency: outbox payload decode: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
