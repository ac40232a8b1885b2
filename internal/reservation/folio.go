package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Folio payment methods accepted at the front desk.
var folioMethods = map[string]bool{"cash": true, "pix": true, "card": true, "transfer": true}

// ErrInvalidFolioMethod rejects unknown payment methods at the boundary.
var ErrInvalidFolioMethod = errors.New("invalid_folio_method")

// FolioPayment is one manual (non-gateway) payment against a reservation.
type FolioPayment struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"property_id"`
	ReservationID string     `json:"reservation_id"`
	Method        string     `json:"method"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	RecordedBy    string     `json:"recorded_by"`
	CreatedAt     time.Time  `json:"created_at"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
}

// capturedFolioCents sums captured payments for a reservation.
func capturedFolioCents(ctx context.Context, q store.Querier, propertyID, reservationID string) (int64, error) {
	var captured int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM folio_payments
		WHERE property_id = $1 AND reservation_id = $2 AND status = 'captured'`,
		propertyID, reservationID).Scan(&captured)
	if err != nil {
		return 0, fmt.Errorf("reservation: folio sum: %w", err)
	}
	return captured, nil
}

// FolioBalance is total - captured; zero means settled. A negative balance
// (overpayment) also blocks checkout until the desk voids or refunds.
func FolioBalance(ctx context.Context, q store.Querier, propertyID, reservationID string, totalCents int64) (int64, error) {
	captured, err := capturedFolioCents(ctx, q, propertyID, reservationID)
	if err != nil {
		return 0, err
	}
	return totalCents - captured, nil
}

// RecordFolioPayment captures a front-desk payment and then re-evaluates the
// auto-confirm threshold. The threshold evaluation runs in its own
// transaction so a concurrent capture cannot deadlock two reservations.
func (s *Service) RecordFolioPayment(ctx context.Context, propertyID, reservationID, method string, amountCents int64, currency, recordedBy string) (*FolioPayment, error) {
	if !folioMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFolioMethod, method)
	}
	fp := &FolioPayment{
		ID:            "fol_" + uuid.NewString(),
		PropertyID:    propertyID,
		ReservationID: reservationID,
		Method:        method,
		AmountCents:   amountCents,
		Currency:      currency,
		Status:        "captured",
		RecordedBy:    recordedBy,
	}
	err := store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockReservation(ctx, tx, propertyID, reservationID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO folio_payments (id, property_id, reservation_id, method, amount_cents, currency, status, recorded_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			fp.ID, fp.PropertyID, fp.ReservationID, fp.Method, fp.AmountCents, fp.Currency, fp.Status, fp.RecordedBy)
		if err != nil {
			return fmt.Errorf("reservation: insert folio payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.MaybeAutoConfirm(ctx, propertyID, reservationID); err != nil {
		return nil, err
	}
	return fp, nil
}

// VoidFolioPayment voids a captured payment.
func (s *Service) VoidFolioPayment(ctx context.Context, propertyID, folioPaymentID, voidedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE folio_payments
		SET status = 'voided', voided_at = now()
		WHERE property_id = $1 AND id = $2 AND status = 'captured'`,
		propertyID, folioPaymentID)
	if err != nil {
		return fmt.Errorf("reservation: void folio payment: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("reservation: folio payment not found or already voided")
	}
	return nil
}

// ListFolioPayments returns the folio for a reservation.
func (s *Service) ListFolioPayments(ctx context.Context, propertyID, reservationID string) ([]FolioPayment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, property_id, reservation_id, method, amount_cents, currency, status, recorded_by, created_at, voided_at
		FROM folio_payments
		WHERE property_id = $1 AND reservation_id = $2
		ORDER BY created_at ASC`,
		propertyID, reservationID)
	if err != nil {
		return nil, fmt.Errorf("reservation: list folio: %w", err)
	}
	defer rows.Close()

	var out []FolioPayment
	for rows.Next() {
		var fp FolioPayment
		if err := rows.Scan(&fp.ID, &fp.PropertyID, &fp.ReservationID, &fp.Method, &fp.AmountCents,
			&fp.Currency, &fp.Status, &fp.RecordedBy, &fp.CreatedAt, &fp.VoidedAt); err != nil {
			return nil, fmt.Errorf("reservation: scan folio: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}
