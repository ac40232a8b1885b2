package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// UpsertGuest resolves or creates the CRM profile for a guest within a
// property, deduplicating by email first, then phone. Runs inside the
// caller's transaction; writing the resulting guest_id onto the reservation
// in that same transaction is an enforced gate of the convert flow.
func UpsertGuest(ctx context.Context, q store.Querier, propertyID, fullName string, email, phone *string) (string, error) {
	if email != nil {
		var id string
		err := q.QueryRow(ctx, `
			SELECT id FROM guests WHERE property_id = $1 AND email = $2`,
			propertyID, *email).Scan(&id)
		if err == nil {
			return id, touchGuest(ctx, q, id, fullName, phone)
		}
		if !store.IsNoRows(err) {
			return "", fmt.Errorf("reservation: guest by email: %w", err)
		}
	}
	if phone != nil {
		var id string
		err := q.QueryRow(ctx, `
			SELECT id FROM guests WHERE property_id = $1 AND phone = $2`,
			propertyID, *phone).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !store.IsNoRows(err) {
			return "", fmt.Errorf("reservation: guest by phone: %w", err)
		}
	}

	id := "gst_" + uuid.NewString()
	_, err := q.Exec(ctx, `
		INSERT INTO guests (id, property_id, full_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)`,
		id, propertyID, fullName, email, phone)
	if err != nil {
		// A concurrent upsert may have created the same email/phone; the
		// partial unique indexes catch it and the existing row wins.
		if store.IsUniqueViolation(err, "") {
			return UpsertGuest(ctx, q, propertyID, fullName, email, phone)
		}
		return "", fmt.Errorf("reservation: insert guest: %w", err)
	}
	return id, nil
}

// touchGuest refreshes mutable profile fields on a dedupe hit without
// clobbering known values with nulls.
func touchGuest(ctx context.Context, q store.Querier, guestID, fullName string, phone *string) error {
	_, err := q.Exec(ctx, `
		UPDATE guests
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    phone = COALESCE($3, phone),
		    updated_at = now()
		WHERE id = $1`,
		guestID, fullName, phone)
	if err != nil {
		return fmt.Errorf("reservation: touch guest: %w", err)
	}
	return nil
}
