package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Lifecycle refusal codes, surfaced as 409 {code} at the API.
var (
	ErrReservationNotFound   = errors.New("reservation_not_found")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrRoomNotAssigned       = errors.New("room_not_assigned")
	ErrRoomNotClean          = errors.New("room_not_clean")
	ErrBeforeCheckinDate     = errors.New("before_checkin_date")
	ErrFolioBalanceDue       = errors.New("folio_balance_due")
	ErrJustificationRequired = errors.New("guarantee_justification_required")
)

// Service runs lifecycle operations against the store.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) Pool() *pgxpool.Pool { return s.pool }

// LogStatus appends the audit row for a transition. Always called inside
// the transaction that performs the transition; a status change without its
// log row cannot commit.
func LogStatus(ctx context.Context, q store.Querier, reservationID, propertyID, from, to, changedBy, notes string) error {
	var fromVal *string
	if from != "" {
		fromVal = &from
	}
	_, err := q.Exec(ctx, `
		INSERT INTO reservation_status_logs (reservation_id, property_id, from_status, to_status, changed_by, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		reservationID, propertyID, fromVal, to, changedBy, notes)
	if err != nil {
		return fmt.Errorf("reservation: status log: %w", err)
	}
	return nil
}

// CreateManualParams describe a staff-created reservation (no hold).
type CreateManualParams struct {
	PropertyID   string
	RoomTypeID   string
	RoomID       *string
	GuestName    string
	GuestEmail   *string
	GuestPhone   *string
	Checkin      time.Time
	Checkout     time.Time
	AdultCount   int
	ChildrenAges []int
	TotalCents   int64
	Currency     string
	CreatedBy    string
}

// CreateManual books inventory immediately and starts the reservation in
// pending_payment. Room assignment, when given, passes the overlap guard in
// the same transaction.
func (s *Service) CreateManual(ctx context.Context, p CreateManualParams) (*Reservation, error) {
	rsv := &Reservation{
		ID:           "res_" + uuid.NewString(),
		PropertyID:   p.PropertyID,
		RoomTypeID:   p.RoomTypeID,
		RoomID:       p.RoomID,
		GuestName:    p.GuestName,
		Status:       StatusPendingPayment,
		Checkin:      p.Checkin,
		Checkout:     p.Checkout,
		AdultCount:   p.AdultCount,
		ChildrenAges: p.ChildrenAges,
		TotalCents:   p.TotalCents,
		Currency:     p.Currency,
	}
	err := store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if p.RoomID != nil {
			if err := AssertNoRoomConflict(ctx, tx, p.PropertyID, *p.RoomID, p.Checkin, p.Checkout, "", true); err != nil {
				return err
			}
		}
		if err := inventory.BookNights(ctx, tx, p.PropertyID, p.RoomTypeID, p.Checkin, p.Checkout); err != nil {
			return err
		}

		guestID, err := UpsertGuest(ctx, tx, p.PropertyID, p.GuestName, p.GuestEmail, p.GuestPhone)
		if err != nil {
			return err
		}
		rsv.GuestID = &guestID

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (id, property_id, room_type_id, room_id, guest_id, guest_name, status,
			                          checkin, checkout, adult_count, children_ages, total_cents, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rsv.ID, rsv.PropertyID, rsv.RoomTypeID, rsv.RoomID, guestID, rsv.GuestName, rsv.Status,
			rsv.Checkin, rsv.Checkout, rsv.AdultCount, agesJSON(rsv.ChildrenAges), rsv.TotalCents, rsv.Currency)
		if err != nil {
			return fmt.Errorf("reservation: insert manual: %w", err)
		}

		return LogStatus(ctx, tx, rsv.ID, p.PropertyID, "", StatusPendingPayment, p.CreatedBy, "Manual Reservation")
	})
	if err != nil {
		return nil, err
	}
	return rsv, nil
}

// ManualConfirm is the manager override for pending_payment reservations.
// The justification is mandatory, stored on the reservation, and replicated
// in the log notes.
func (s *Service) ManualConfirm(ctx context.Context, propertyID, reservationID, justification, changedBy string) error {
	if justification == "" {
		return ErrJustificationRequired
	}
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if !CanTransition(rsv.Status, StatusConfirmed) {
			return fmt.Errorf("%w: %s -> confirmed", ErrInvalidTransition, rsv.Status)
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservations
			SET status = $3, guarantee_justification = $4, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, StatusConfirmed, justification)
		if err != nil {
			return fmt.Errorf("reservation: manual confirm: %w", err)
		}
		return LogStatus(ctx, tx, reservationID, propertyID, rsv.Status, StatusConfirmed, changedBy,
			"Manual Guarantee: "+justification)
	})
}

// MaybeAutoConfirm promotes a pending_payment reservation when captured
// folio payments reach the property's confirmation threshold. Called after
// every folio capture; a no-op below the threshold.
func (s *Service) MaybeAutoConfirm(ctx context.Context, propertyID, reservationID string) (bool, error) {
	confirmed := false
	err := store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if rsv.Status != StatusPendingPayment {
			return nil
		}

		var threshold decimal.Decimal
		if err := tx.QueryRow(ctx, `
			SELECT confirmation_threshold FROM properties WHERE id = $1`,
			propertyID).Scan(&threshold); err != nil {
			return fmt.Errorf("reservation: load threshold: %w", err)
		}

		captured, err := capturedFolioCents(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if rsv.TotalCents > 0 {
			ratio := decimal.NewFromInt(captured).Div(decimal.NewFromInt(rsv.TotalCents))
			if ratio.LessThan(threshold) {
				return nil
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, StatusConfirmed); err != nil {
			return fmt.Errorf("reservation: auto confirm: %w", err)
		}
		confirmed = true
		return LogStatus(ctx, tx, reservationID, propertyID, StatusPendingPayment, StatusConfirmed,
			"system", "Payment Threshold Reached")
	})
	return confirmed, err
}

// Cancel a pending_payment or confirmed reservation, returning its booked
// nights to inventory.
func (s *Service) Cancel(ctx context.Context, propertyID, reservationID, changedBy, reason string) error {
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if !CanTransition(rsv.Status, StatusCancelled) {
			return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, rsv.Status)
		}
		if err := inventory.UnbookNights(ctx, tx, propertyID, rsv.RoomTypeID, rsv.Checkin, rsv.Checkout); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, StatusCancelled); err != nil {
			return fmt.Errorf("reservation: cancel: %w", err)
		}
		if err := LogStatus(ctx, tx, reservationID, propertyID, rsv.Status, StatusCancelled, changedBy, reason); err != nil {
			return err
		}
		_, err = idempotency.Emit(ctx, tx, propertyID, idempotency.EventReservationCancelled, "reservation", reservationID, map[string]any{
			"room_type_id": rsv.RoomTypeID,
			"checkin":      rsv.Checkin.Format("2006-01-02"),
			"checkout":     rsv.Checkout.Format("2006-01-02"),
		})
		return err
	})
}

// AssignRoom sets or changes the physical room after passing the overlap
// guard.
func (s *Service) AssignRoom(ctx context.Context, propertyID, reservationID, roomID, changedBy string) error {
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		var roomTypeID string
		err = tx.QueryRow(ctx, `
			SELECT room_type_id FROM rooms WHERE property_id = $1 AND id = $2`,
			propertyID, roomID).Scan(&roomTypeID)
		if store.IsNoRows(err) {
			return fmt.Errorf("%w: room %s", ErrRoomConflict, roomID)
		}
		if err != nil {
			return fmt.Errorf("reservation: room lookup: %w", err)
		}
		if err := AssertNoRoomConflict(ctx, tx, propertyID, roomID, rsv.Checkin, rsv.Checkout, reservationID, true); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservations SET room_id = $3, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, roomID)
		if err != nil {
			if store.IsExclusionViolation(err) {
				zerolog.Ctx(ctx).Error().Err(err).
					Str("reservation_id", reservationID).
					Str("room_id", roomID).
					Msg("SEV0 exclusion constraint hit on room assignment")
			}
			return fmt.Errorf("reservation: assign room: %w", err)
		}
		return nil
	})
}

// CheckIn moves confirmed -> in_house. Requires an assigned, clean room and
// a property-local date at or past checkin; re-runs the overlap guard
// excluding self.
func (s *Service) CheckIn(ctx context.Context, propertyID, reservationID, changedBy string) error {
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if !CanTransition(rsv.Status, StatusInHouse) {
			return fmt.Errorf("%w: %s -> in_house", ErrInvalidTransition, rsv.Status)
		}
		if rsv.RoomID == nil {
			return ErrRoomNotAssigned
		}

		var tzName string
		if err := tx.QueryRow(ctx, `SELECT timezone FROM properties WHERE id = $1`, propertyID).Scan(&tzName); err != nil {
			return fmt.Errorf("reservation: load timezone: %w", err)
		}
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			loc = time.UTC
		}
		today := time.Now().In(loc)
		localDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		if localDate.Before(rsv.Checkin) {
			return ErrBeforeCheckinDate
		}

		var governance string
		if err := tx.QueryRow(ctx, `
			SELECT governance_status FROM rooms WHERE property_id = $1 AND id = $2
			FOR UPDATE`,
			propertyID, *rsv.RoomID).Scan(&governance); err != nil {
			return fmt.Errorf("reservation: room governance: %w", err)
		}
		if governance != "clean" {
			return fmt.Errorf("%w: %s", ErrRoomNotClean, governance)
		}

		if err := AssertNoRoomConflict(ctx, tx, propertyID, *rsv.RoomID, rsv.Checkin, rsv.Checkout, reservationID, true); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, StatusInHouse); err != nil {
			return fmt.Errorf("reservation: check in: %w", err)
		}
		return LogStatus(ctx, tx, reservationID, propertyID, rsv.Status, StatusInHouse, changedBy, "")
	})
}

// CheckOut moves in_house -> checked_out. Requires a settled folio; the
// room flips to dirty for housekeeping.
func (s *Service) CheckOut(ctx context.Context, propertyID, reservationID, changedBy string) error {
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		if !CanTransition(rsv.Status, StatusCheckedOut) {
			return fmt.Errorf("%w: %s -> checked_out", ErrInvalidTransition, rsv.Status)
		}

		balance, err := FolioBalance(ctx, tx, propertyID, reservationID, rsv.TotalCents)
		if err != nil {
			return err
		}
		if balance != 0 {
			return fmt.Errorf("%w: %d cents due", ErrFolioBalanceDue, balance)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, StatusCheckedOut); err != nil {
			return fmt.Errorf("reservation: check out: %w", err)
		}
		if rsv.RoomID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE rooms SET governance_status = 'dirty', updated_at = now()
				WHERE property_id = $1 AND id = $2`,
				propertyID, *rsv.RoomID); err != nil {
				return fmt.Errorf("reservation: mark room dirty: %w", err)
			}
		}
		return LogStatus(ctx, tx, reservationID, propertyID, rsv.Status, StatusCheckedOut, changedBy, "")
	})
}

// Adjust changes the total with a mandatory reason, preserving the original
// amount for audit.
func (s *Service) Adjust(ctx context.Context, propertyID, reservationID string, adjustmentCents int64, reason, changedBy string) error {
	if reason == "" {
		return fmt.Errorf("%w: adjustment reason required", ErrInvalidTransition)
	}
	return store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rsv, err := lockReservation(ctx, tx, propertyID, reservationID)
		if err != nil {
			return err
		}
		newTotal := rsv.TotalCents + adjustmentCents
		if newTotal < 0 {
			return fmt.Errorf("%w: adjustment below zero", ErrInvalidTransition)
		}
		original := rsv.TotalCents
		if rsv.OriginalTotalCents != nil {
			original = *rsv.OriginalTotalCents
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservations
			SET total_cents = $3, original_total_cents = $4, adjustment_cents = $5,
			    adjustment_reason = $6, updated_at = now()
			WHERE property_id = $1 AND id = $2`,
			propertyID, reservationID, newTotal, original, adjustmentCents, reason)
		if err != nil {
			return fmt.Errorf("reservation: adjust: %w", err)
		}
		return LogStatus(ctx, tx, reservationID, propertyID, rsv.Status, rsv.Status, changedBy,
			fmt.Sprintf("Adjustment: %d cents (%s)", adjustmentCents, reason))
	})
}
