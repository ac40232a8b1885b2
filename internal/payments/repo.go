package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Payment is one gateway payment row.
type Payment struct {
	ID               string    `json:"id"`
	PropertyID       string    `json:"property_id"`
	HoldID           *string   `json:"hold_id,omitempty"`
	ReservationID    *string   `json:"reservation_id,omitempty"`
	Provider         string    `json:"provider"`
	ProviderObjectID string    `json:"provider_object_id"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RecordCreatedSession inserts a 'created' payment row for a fresh checkout
// session. A replayed create hits the (property, provider, object) unique
// key and is a no-op.
func RecordCreatedSession(ctx context.Context, q store.Querier, propertyID, holdID, provider, sessionID string, amountCents int64, currency string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payments (id, property_id, hold_id, provider, provider_object_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'created')
		ON CONFLICT (property_id, provider, provider_object_id) DO NOTHING`,
		"pay_"+uuid.NewString(), propertyID, holdID, provider, sessionID, amountCents, currency)
	if err != nil {
		return fmt.Errorf("payments: record created session: %w", err)
	}
	return nil
}

// List returns payments for a property, newest first.
func List(ctx context.Context, pool *pgxpool.Pool, propertyID string, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := pool.Query(ctx, `
		SELECT id, property_id, hold_id, reservation_id, provider, provider_object_id,
		       amount_cents, currency, status, created_at, updated_at
		FROM payments
		WHERE property_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.PropertyID, &p.HoldID, &p.ReservationID, &p.Provider, &p.ProviderObjectID,
			&p.AmountCents, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
