package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ErrNoInventory means at least one night could not be held; the whole
// transaction rolled back and no partial hold persists.
var ErrNoInventory = errors.New("no_inventory")

// ErrHoldNotFound is returned for lookups of unknown hold ids.
var ErrHoldNotFound = errors.New("hold_not_found")

// Engine runs the hold state machine against the store.
type Engine struct {
	pool *pgxpool.Pool
}

func NewEngine(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

// Pool exposes the underlying pool for handlers that compose engine
// primitives into their own transactions.
func (e *Engine) Pool() *pgxpool.Pool { return e.pool }

// CreateHoldParams are the validated inputs for a hold. Validation happens
// at the API boundary; the engine trusts dimensions but not inventory.
type CreateHoldParams struct {
	PropertyID     string
	ConversationID *string
	RoomTypeID     string
	Checkin        time.Time
	Checkout       time.Time
	AdultCount     int
	ChildrenAges   []int
	TotalCents     int64
	Currency       string
	ExpiresAt      time.Time
	IdempotencyKey *string
	GuestName      string
	GuestEmail     *string
	GuestPhone     *string
}

// CreateHold inserts the hold and takes one unit of inventory per night.
//
// The per-night UPDATE carries the oversell predicate; if any night affects
// zero rows the transaction rolls back with ErrNoInventory. Two concurrent
// attempts at the last unit race on the same guarded UPDATE and at most one
// predicate holds, so overbooking is structurally impossible. A replayed
// create (same idempotency key) returns the original hold.
func (e *Engine) CreateHold(ctx context.Context, p CreateHoldParams) (*Hold, error) {
	if p.IdempotencyKey != nil {
		if existing, err := e.holdByCreateKey(ctx, p.PropertyID, *p.IdempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	hold := &Hold{
		ID:             "hold_" + uuid.NewString(),
		PropertyID:     p.PropertyID,
		ConversationID: p.ConversationID,
		RoomTypeID:     p.RoomTypeID,
		Checkin:        p.Checkin,
		Checkout:       p.Checkout,
		AdultCount:     p.AdultCount,
		ChildrenAges:   p.ChildrenAges,
		TotalCents:     p.TotalCents,
		Currency:       p.Currency,
		Status:         HoldActive,
		ExpiresAt:      p.ExpiresAt,
		GuestName:      p.GuestName,
		GuestEmail:     p.GuestEmail,
		GuestPhone:     p.GuestPhone,
	}

	err := store.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO holds (id, property_id, conversation_id, room_type_id, checkin, checkout,
			                   adult_count, children_ages, total_cents, currency, status, expires_at,
			                   create_idempotency_key, guest_name, guest_email, guest_phone)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			hold.ID, hold.PropertyID, hold.ConversationID, hold.RoomTypeID, hold.Checkin, hold.Checkout,
			hold.AdultCount, agesJSON(hold.ChildrenAges), hold.TotalCents, hold.Currency, hold.Status,
			hold.ExpiresAt, p.IdempotencyKey, hold.GuestName, hold.GuestEmail, hold.GuestPhone)
		if err != nil {
			return fmt.Errorf("inventory: insert hold: %w", err)
		}

		for _, n := range NightsBetween(hold.RoomTypeID, hold.Checkin, hold.Checkout) {
			_, err := tx.Exec(ctx, `
				INSERT INTO hold_nights (hold_id, property_id, room_type_id, date, qty)
				VALUES ($1, $2, $3, $4, 1)`,
				hold.ID, hold.PropertyID, n.RoomTypeID, n.Date)
			if err != nil {
				return fmt.Errorf("inventory: insert hold night: %w", err)
			}

			tag, err := tx.Exec(ctx, `
				UPDATE ari_days
				SET inv_held = inv_held + 1, updated_at = now()
				WHERE property_id = $1 AND room_type_id = $2 AND date = $3
				  AND inv_total >= inv_booked + inv_held + 1
				  AND NOT EXISTS (
					SELECT 1 FROM room_type_rates r
					WHERE r.property_id = $1 AND r.room_type_id = $2 AND r.date = $3
					  AND r.is_blocked
				  )`,
				hold.PropertyID, n.RoomTypeID, n.Date)
			if err != nil {
				return fmt.Errorf("inventory: hold night %s: %w", n.Date.Format("2006-01-02"), err)
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("%w: %s", ErrNoInventory, n.Date.Format("2006-01-02"))
			}
		}

		_, err = idempotency.Emit(ctx, tx, hold.PropertyID, idempotency.EventHoldCreated, "hold", hold.ID, map[string]any{
			"room_type_id": hold.RoomTypeID,
			"checkin":      hold.Checkin.Format("2006-01-02"),
			"checkout":     hold.Checkout.Format("2006-01-02"),
			"adult_count":  hold.AdultCount,
			"total_cents":  hold.TotalCents,
			"currency":     hold.Currency,
			"expires_at":   hold.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		// A unique hit on the create key means a concurrent replay won the
		// insert; return its hold.
		if p.IdempotencyKey != nil && store.IsUniqueViolation(err, "holds_create_idempotency_key_uniq") {
			existing, lookupErr := e.holdByCreateKey(ctx, p.PropertyID, *p.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("hold_id", hold.ID).
		Str("property_id", hold.PropertyID).
		Str("room_type_id", hold.RoomTypeID).
		Int64("total_cents", hold.TotalCents).
		Msg("hold created")
	return hold, nil
}

// ReleaseOutcome reports what a release call actually did.
type ReleaseOutcome int

const (
	// Released: the hold transitioned and its nights were freed.
	Released ReleaseOutcome = iota
	// ReleaseNoop: the hold was not active, the task was a replay, or the
	// expiry had not arrived; the transaction committed without mutating
	// inventory.
	ReleaseNoop
)

// ExpireHold releases an active hold past its deadline. Invoked by the
// deterministic expire-hold task. Replays, races with convert, and early
// deliveries all commit as no-ops: the receipt stays recorded and the queue
// gets a success-shaped answer.
func (e *Engine) ExpireHold(ctx context.Context, taskID, holdID string) (ReleaseOutcome, error) {
	return e.releaseWith(ctx, taskID, holdID, HoldExpired, nil)
}

// CancelHold releases an active hold on guest or staff request.
// refundCents, when not nil, inserts a pending_refund row in the same
// transaction (non-refundable or partial cancellation policies).
func (e *Engine) CancelHold(ctx context.Context, taskID, holdID string, refundCents *int64) (ReleaseOutcome, error) {
	return e.releaseWith(ctx, taskID, holdID, HoldCancelled, refundCents)
}

func (e *Engine) releaseWith(ctx context.Context, taskID, holdID, toStatus string, refundCents *int64) (ReleaseOutcome, error) {
	outcome := ReleaseNoop
	err := store.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		hold, err := lockHold(ctx, tx, holdID)
		if err != nil {
			return err
		}

		if taskID != "" {
			fresh, err := idempotency.MarkProcessed(ctx, tx, hold.PropertyID, idempotency.SourceTasks, taskID)
			if err != nil {
				return err
			}
			if !fresh {
				return nil
			}
		}

		if hold.Status != HoldActive {
			// Convert or a previous release won; commit the receipt only.
			return nil
		}
		if toStatus == HoldExpired && hold.ExpiresAt.After(time.Now()) {
			// Early delivery; the hold is still live. Commit as no-op — the
			// queue schedules expire tasks at the deadline, so this only
			// happens on clock skew, and the sweeper retries later.
			return nil
		}

		if err := releaseNights(ctx, tx, hold); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE holds SET status = $2, updated_at = now() WHERE id = $1`,
			hold.ID, toStatus)
		if err != nil {
			return fmt.Errorf("inventory: set hold status: %w", err)
		}

		eventType := idempotency.EventHoldExpired
		if toStatus == HoldCancelled {
			eventType = idempotency.EventHoldCancelled
		}
		if _, err := idempotency.Emit(ctx, tx, hold.PropertyID, eventType, "hold", hold.ID, map[string]any{
			"room_type_id": hold.RoomTypeID,
			"checkin":      hold.Checkin.Format("2006-01-02"),
			"checkout":     hold.Checkout.Format("2006-01-02"),
		}); err != nil {
			return err
		}

		if refundCents != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO pending_refunds (id, property_id, hold_id, amount_cents, currency, reason)
				VALUES ($1, $2, $3, $4, $5, 'hold_cancelled')`,
				"ref_"+uuid.NewString(), hold.PropertyID, hold.ID, *refundCents, hold.Currency)
			if err != nil {
				return fmt.Errorf("inventory: insert pending refund: %w", err)
			}
		}

		outcome = Released
		return nil
	})
	if err != nil {
		return ReleaseNoop, err
	}
	if outcome == Released {
		zerolog.Ctx(ctx).Info().
			Str("hold_id", holdID).
			Str("to_status", toStatus).
			Msg("hold released")
	}
	return outcome, nil
}

// releaseNights walks the hold's nights in canonical order and frees one
// held unit each. The inv_held >= 1 guard makes a double-free impossible
// even on a replay that slipped past the receipt gate.
func releaseNights(ctx context.Context, q store.Querier, hold *Hold) error {
	nights, err := loadNights(ctx, q, hold.ID)
	if err != nil {
		return err
	}
	for _, n := range nights {
		tag, err := q.Exec(ctx, `
			UPDATE ari_days
			SET inv_held = inv_held - 1, updated_at = now()
			WHERE property_id = $1 AND room_type_id = $2 AND date = $3
			  AND inv_held >= 1`,
			hold.PropertyID, n.RoomTypeID, n.Date)
		if err != nil {
			return fmt.Errorf("inventory: release night: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("inventory: release night %s: held count would go negative", n.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// CommitNights moves a hold's units from held to booked, night by night in
// canonical order, inside the caller's convert transaction. Any night with
// no held unit aborts the transaction.
func CommitNights(ctx context.Context, q store.Querier, hold *Hold) error {
	nights, err := loadNights(ctx, q, hold.ID)
	if err != nil {
		return err
	}
	for _, n := range nights {
		tag, err := q.Exec(ctx, `
			UPDATE ari_days
			SET inv_held = inv_held - 1, inv_booked = inv_booked + 1, updated_at = now()
			WHERE property_id = $1 AND room_type_id = $2 AND date = $3
			  AND inv_held >= 1`,
			hold.PropertyID, n.RoomTypeID, n.Date)
		if err != nil {
			return fmt.Errorf("inventory: commit night: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("inventory: commit night %s: hold unit missing", n.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// BookNights takes inventory directly into inv_booked for manual (staff)
// reservations, same guarded shape as hold creation.
func BookNights(ctx context.Context, q store.Querier, propertyID, roomTypeID string, checkin, checkout time.Time) error {
	for _, n := range NightsBetween(roomTypeID, checkin, checkout) {
		tag, err := q.Exec(ctx, `
			UPDATE ari_days
			SET inv_booked = inv_booked + 1, updated_at = now()
			WHERE property_id = $1 AND room_type_id = $2 AND date = $3
			  AND inv_total >= inv_booked + inv_held + 1`,
			propertyID, n.RoomTypeID, n.Date)
		if err != nil {
			return fmt.Errorf("inventory: book night: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrNoInventory, n.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// UnbookNights returns booked units to the pool on cancellation, guarded
// against double-free.
func UnbookNights(ctx context.Context, q store.Querier, propertyID, roomTypeID string, checkin, checkout time.Time) error {
	for _, n := range NightsBetween(roomTypeID, checkin, checkout) {
		tag, err := q.Exec(ctx, `
			UPDATE ari_days
			SET inv_booked = inv_booked - 1, updated_at = now()
			WHERE property_id = $1 AND room_type_id = $2 AND date = $3
			  AND inv_booked >= 1`,
			propertyID, n.RoomTypeID, n.Date)
		if err != nil {
			return fmt.Errorf("inventory: unbook night: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("inventory: unbook night %s: booked count would go negative", n.Date.Format("2006-01-02"))
		}
	}
	return nil
}

func loadNights(ctx context.Context, q store.Querier, holdID string) ([]Night, error) {
	rows, err := q.Query(ctx, `
		SELECT room_type_id, date FROM hold_nights
		WHERE hold_id = $1
		ORDER BY room_type_id, date ASC`,
		holdID)
	if err != nil {
		return nil, fmt.Errorf("inventory: load hold nights: %w", err)
	}
	defer rows.Close()

	var nights []Night
	for rows.Next() {
		var n Night
		if err := rows.Scan(&n.RoomTypeID, &n.Date); err != nil {
			return nil, fmt.Errorf("inventory: scan hold night: %w", err)
		}
		nights = append(nights, n)
	}
	return nights, rows.Err()
}

// LockHold loads a hold FOR UPDATE inside the caller's transaction,
// serializing expire against convert on the same hold.
func LockHold(ctx context.Context, q store.Querier, holdID string) (*Hold, error) {
	return lockHold(ctx, q, holdID)
}

const holdColumns = `id, property_id, conversation_id, room_type_id, checkin, checkout,
	       adult_count, children_ages, total_cents, currency, status, expires_at,
	       guest_name, guest_email, guest_phone, created_at`

func lockHold(ctx context.Context, q store.Querier, holdID string) (*Hold, error) {
	row := q.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, holdID)
	return scanHold(row)
}

// GetHold loads a hold without locking.
func (e *Engine) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	row := e.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1`, holdID)
	return scanHold(row)
}

func (e *Engine) holdByCreateKey(ctx context.Context, propertyID, key string) (*Hold, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE property_id = $1 AND create_idempotency_key = $2`,
		propertyID, key)
	hold, err := scanHold(row)
	if errors.Is(err, ErrHoldNotFound) {
		return nil, nil
	}
	return hold, err
}

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	var ages []byte
	var guestName *string
	err := row.Scan(
		&h.ID, &h.PropertyID, &h.ConversationID, &h.RoomTypeID, &h.Checkin, &h.Checkout,
		&h.AdultCount, &ages, &h.TotalCents, &h.Currency, &h.Status, &h.ExpiresAt,
		&guestName, &h.GuestEmail, &h.GuestPhone, &h.CreatedAt,
	)
	if store.IsNoRows(err) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: scan hold: %w", err)
	}
	if guestName != nil {
		h.GuestName = *guestName
	}
	if err := unmarshalAges(ages, &h.ChildrenAges); err != nil {
		return nil, err
	}
	return &h, nil
}
