package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ErrRoomConflict means another operational reservation occupies the room
// for an overlapping [checkin, checkout) range. Surfaces as 409.
var ErrRoomConflict = errors.New("room_conflict")

// AssertNoRoomConflict is the central overlap routine called on room
// assignment, date modification and check-in. With lock=true the conflicting
// candidates are locked FOR UPDATE so a concurrent assignment serializes
// behind this transaction. The database exclusion constraint remains the
// absolute second guard; it firing at runtime means this routine was
// bypassed and is an operational-critical incident.
func AssertNoRoomConflict(ctx context.Context, q store.Querier, propertyID, roomID string, checkin, checkout time.Time, excludeReservationID string, lock bool) error {
	query := `
		SELECT id FROM reservations
		WHERE property_id = $1 AND room_id = $2
		  AND status = ANY($3)
		  AND checkin < $4 AND checkout > $5
		  AND ($6 = '' OR id <> $6)`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, propertyID, roomID, OperationalStatuses, checkout, checkin, excludeReservationID)
	if err != nil {
		return fmt.Errorf("reservation: conflict check: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var conflicting string
		_ = rows.Scan(&conflicting)
		return fmt.Errorf("%w: reservation %s", ErrRoomConflict, conflicting)
	}
	return rows.Err()
}
