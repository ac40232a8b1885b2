package reservation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

const reservationColumns = `id, property_id, hold_id, room_type_id, room_id, guest_id, guest_name, status,
	checkin, checkout, adult_count, children_ages, total_cents, original_total_cents,
	adjustment_cents, adjustment_reason, currency, guarantee_justification, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var ages []byte
	err := row.Scan(
		&r.ID, &r.PropertyID, &r.HoldID, &r.RoomTypeID, &r.RoomID, &r.GuestID, &r.GuestName, &r.Status,
		&r.Checkin, &r.Checkout, &r.AdultCount, &ages, &r.TotalCents, &r.OriginalTotalCents,
		&r.AdjustmentCents, &r.AdjustmentReason, &r.Currency, &r.GuaranteeJustification, &r.CreatedAt, &r.UpdatedAt,
	)
	if store.IsNoRows(err) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: scan: %w", err)
	}
	if err := decodeAges(ages, &r.ChildrenAges); err != nil {
		return nil, err
	}
	return &r, nil
}

func lockReservation(ctx context.Context, q store.Querier, propertyID, id string) (*Reservation, error) {
	row := q.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = $1 AND id = $2
		FOR UPDATE`,
		propertyID, id)
	return scanReservation(row)
}

func getByHoldID(ctx context.Context, q store.Querier, propertyID, holdID string) (*Reservation, error) {
	row := q.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = $1 AND hold_id = $2`,
		propertyID, holdID)
	return scanReservation(row)
}

// Get loads one reservation.
func (s *Service) Get(ctx context.Context, propertyID, id string) (*Reservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = $1 AND id = $2`,
		propertyID, id)
	return scanReservation(row)
}

// ListParams filter the dashboard reservation listing.
type ListParams struct {
	Status string
	Limit  int
}

// List returns reservations for a property, newest first.
func (s *Service) List(ctx context.Context, propertyID string, p ListParams) ([]*Reservation, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		propertyID, p.Status, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("reservation: list: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusLogEntry is one audit row.
type StatusLogEntry struct {
	ReservationID string  `json:"reservation_id"`
	FromStatus    *string `json:"from_status,omitempty"`
	ToStatus      string  `json:"to_status"`
	ChangedBy     string  `json:"changed_by"`
	ChangedAt     string  `json:"changed_at"`
	Notes         *string `json:"notes,omitempty"`
}

// StatusLog returns the audit trail for one reservation.
func (s *Service) StatusLog(ctx context.Context, propertyID, reservationID string) ([]StatusLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT reservation_id, from_status, to_status, changed_by, changed_at::text, notes
		FROM reservation_status_logs
		WHERE property_id = $1 AND reservation_id = $2
		ORDER BY changed_at ASC`,
		propertyID, reservationID)
	if err != nil {
		return nil, fmt.Errorf("reservation: status log list: %w", err)
	}
	defer rows.Close()

	var out []StatusLogEntry
	for rows.Next() {
		var e StatusLogEntry
		if err := rows.Scan(&e.ReservationID, &e.FromStatus, &e.ToStatus, &e.ChangedBy, &e.ChangedAt, &e.Notes); err != nil {
			return nil, fmt.Errorf("reservation: status log scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
