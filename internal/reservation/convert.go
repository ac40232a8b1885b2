package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ConvertParams carries the payment facts the worker extracted from the
// provider event. Metadata on the checkout session ties the payment back to
// the hold.
type ConvertParams struct {
	PropertyID       string
	EventID          string // provider event id; receipt dedupe key
	Provider         string // "stripe"
	ProviderObjectID string // checkout session / payment intent id
	HoldID           string
	AmountCents      int64
	Currency         string
	ChangedBy        string // audit identity, e.g. "system:stripe"
}

// ConvertResult reports what the convert transaction did.
type ConvertResult struct {
	// Duplicate: the event receipt already existed; nothing happened.
	Duplicate bool
	// Late: the hold had expired; payment marked needs_manual, no
	// reservation created.
	Late bool
	// Noop: the hold was not active (already converted or cancelled).
	Noop bool
	// Reservation is set when a reservation exists after this call (fresh
	// or replayed).
	Reservation *Reservation
	// ConfirmedEventID is the outbox id of reservation.confirmed, for the
	// send-response task.
	ConfirmedEventID int64
}

// ConvertHold is the payment→reservation transaction. All steps commit or
// roll back together: receipt, payment upsert, hold lock + status check,
// inventory move held→booked, reservation insert, guest upsert + guest_id
// write, hold converted, outbox events.
func ConvertHold(ctx context.Context, pool *pgxpool.Pool, p ConvertParams) (*ConvertResult, error) {
	res := &ConvertResult{}
	err := store.WithTx(ctx, pool, func(tx pgx.Tx) error {
		fresh, err := idempotency.MarkProcessed(ctx, tx, p.PropertyID, idempotency.SourceStripe, p.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			res.Duplicate = true
			return nil
		}

		// Payment upsert keyed on the provider object: re-sent events for
		// the same session converge on one row.
		var paymentID string
		err = tx.QueryRow(ctx, `
			INSERT INTO payments (id, property_id, hold_id, provider, provider_object_id, amount_cents, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'succeeded')
			ON CONFLICT (property_id, provider, provider_object_id)
			DO UPDATE SET status = 'succeeded', amount_cents = EXCLUDED.amount_cents, updated_at = now()
			RETURNING id`,
			"pay_"+uuid.NewString(), p.PropertyID, p.HoldID, p.Provider, p.ProviderObjectID, p.AmountCents, p.Currency).Scan(&paymentID)
		if err != nil {
			return fmt.Errorf("reservation: payment upsert: %w", err)
		}

		hold, err := inventory.LockHold(ctx, tx, p.HoldID)
		if err != nil {
			return err
		}

		if hold.Status != inventory.HoldActive {
			if hold.Status == inventory.HoldConverted {
				existing, err := getByHoldID(ctx, tx, p.PropertyID, p.HoldID)
				if err != nil {
					return err
				}
				res.Reservation = existing
			}
			res.Noop = true
			return nil
		}

		if time.Now().After(hold.ExpiresAt) {
			// Payment landed after the hold died. Keep the money visible,
			// flag for the front desk, create nothing.
			_, err := tx.Exec(ctx, `
				UPDATE payments SET status = 'needs_manual', updated_at = now() WHERE id = $1`,
				paymentID)
			if err != nil {
				return fmt.Errorf("reservation: flag late payment: %w", err)
			}
			if _, err := idempotency.Emit(ctx, tx, p.PropertyID, idempotency.EventPaymentLate, "payment", paymentID, map[string]any{
				"hold_id":            p.HoldID,
				"provider_object_id": p.ProviderObjectID,
				"amount_cents":       p.AmountCents,
				"currency":           p.Currency,
			}); err != nil {
				return err
			}
			res.Late = true
			return nil
		}

		if err := inventory.CommitNights(ctx, tx, hold); err != nil {
			return err
		}

		rsv := &Reservation{
			ID:           "res_" + uuid.NewString(),
			PropertyID:   p.PropertyID,
			HoldID:       &p.HoldID,
			RoomTypeID:   hold.RoomTypeID,
			GuestName:    hold.GuestName,
			Status:       StatusConfirmed,
			Checkin:      hold.Checkin,
			Checkout:     hold.Checkout,
			AdultCount:   hold.AdultCount,
			ChildrenAges: hold.ChildrenAges,
			TotalCents:   hold.TotalCents,
			Currency:     hold.Currency,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (id, property_id, hold_id, room_type_id, guest_name, status,
			                          checkin, checkout, adult_count, children_ages, total_cents, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rsv.ID, rsv.PropertyID, rsv.HoldID, rsv.RoomTypeID, rsv.GuestName, rsv.Status,
			rsv.Checkin, rsv.Checkout, rsv.AdultCount, agesJSON(rsv.ChildrenAges), rsv.TotalCents, rsv.Currency)
		if err != nil {
			// (property_id, hold_id) unique: a replay created it already.
			if store.IsUniqueViolation(err, "reservations_hold_uniq") {
				existing, lookupErr := getByHoldID(ctx, tx, p.PropertyID, p.HoldID)
				if lookupErr != nil {
					return lookupErr
				}
				res.Reservation = existing
				res.Noop = true
				return nil
			}
			return fmt.Errorf("reservation: insert: %w", err)
		}

		// Gate: guest resolution and guest_id write happen inside this same
		// transaction, never as a follow-up.
		guestID, err := UpsertGuest(ctx, tx, p.PropertyID, hold.GuestName, hold.GuestEmail, hold.GuestPhone)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET guest_id = $2, updated_at = now() WHERE id = $1`,
			rsv.ID, guestID); err != nil {
			return fmt.Errorf("reservation: write guest_id: %w", err)
		}
		rsv.GuestID = &guestID

		if _, err := tx.Exec(ctx, `
			UPDATE holds SET status = $2, updated_at = now() WHERE id = $1`,
			hold.ID, inventory.HoldConverted); err != nil {
			return fmt.Errorf("reservation: mark hold converted: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE payments SET reservation_id = $2, updated_at = now() WHERE id = $1`,
			paymentID, rsv.ID); err != nil {
			return fmt.Errorf("reservation: link payment: %w", err)
		}

		if err := LogStatus(ctx, tx, rsv.ID, p.PropertyID, "", StatusConfirmed, p.ChangedBy, "Payment Confirmed"); err != nil {
			return err
		}

		if _, err := idempotency.Emit(ctx, tx, p.PropertyID, idempotency.EventPaymentSucceeded, "payment", paymentID, map[string]any{
			"hold_id":            p.HoldID,
			"reservation_id":     rsv.ID,
			"provider_object_id": p.ProviderObjectID,
			"amount_cents":       p.AmountCents,
			"currency":           p.Currency,
		}); err != nil {
			return err
		}
		confirmedID, err := idempotency.Emit(ctx, tx, p.PropertyID, idempotency.EventReservationConfirmed, "reservation", rsv.ID, map[string]any{
			"hold_id":      p.HoldID,
			"room_type_id": rsv.RoomTypeID,
			"checkin":      rsv.Checkin.Format("2006-01-02"),
			"checkout":     rsv.Checkout.Format("2006-01-02"),
			"adult_count":  rsv.AdultCount,
			"total_cents":  rsv.TotalCents,
			"currency":     rsv.Currency,
		})
		if err != nil {
			return err
		}
		res.ConfirmedEventID = confirmedID
		res.Reservation = rsv
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("hold_id", p.HoldID).Str("event_id", p.EventID).Logger()
	switch {
	case res.Duplicate:
		logger.Info().Msg("convert: duplicate event")
	case res.Late:
		logger.Warn().Msg("convert: late payment, needs manual handling")
	case res.Noop:
		logger.Info().Msg("convert: hold no longer active")
	default:
		logger.Info().Str("reservation_id", res.Reservation.ID).Msg("hold converted")
	}
	return res, nil
}
