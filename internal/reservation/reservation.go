// Package reservation owns the reservation lifecycle: creation (hold
// conversion and staff-created manual stays), status transitions with their
// audit log, the room-overlap guard, the guest CRM upsert, and the folio.
package reservation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reservation statuses.
const (
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusCancelled      = "cancelled"
	StatusInHouse        = "in_house"
	StatusCheckedOut     = "checked_out"
)

// OperationalStatuses consume or block a room; the overlap guard and the
// occupancy engine filter on this set.
var OperationalStatuses = []string{StatusPendingPayment, StatusConfirmed, StatusInHouse, StatusCheckedOut}

// Reservation is the confirmed outcome of a booking.
type Reservation struct {
	ID                     string     `json:"id"`
	PropertyID             string     `json:"property_id"`
	HoldID                 *string    `json:"hold_id,omitempty"`
	RoomTypeID             string     `json:"room_type_id"`
	RoomID                 *string    `json:"room_id,omitempty"`
	GuestID                *string    `json:"guest_id,omitempty"`
	GuestName              string     `json:"guest_name"`
	Status                 string     `json:"status"`
	Checkin                time.Time  `json:"checkin"`
	Checkout               time.Time  `json:"checkout"`
	AdultCount             int        `json:"adult_count"`
	ChildrenAges           []int      `json:"children_ages"`
	TotalCents             int64      `json:"total_cents"`
	OriginalTotalCents     *int64     `json:"original_total_cents,omitempty"`
	AdjustmentCents        *int64     `json:"adjustment_cents,omitempty"`
	AdjustmentReason       *string    `json:"adjustment_reason,omitempty"`
	Currency               string     `json:"currency"`
	GuaranteeJustification *string    `json:"guarantee_justification,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// allowedTransitions is the full transition table; anything absent is a 409.
var allowedTransitions = map[string][]string{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusInHouse, StatusCancelled},
	StatusInHouse:        {StatusCheckedOut},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// Reservations only advance; there is no path back.
func CanTransition(from, to string) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func agesJSON(ages []int) []byte {
	if ages == nil {
		ages = []int{}
	}
	raw, _ := json.Marshal(ages)
	return raw
}

func decodeAges(raw []byte, into *[]int) error {
	if len(raw) == 0 {
		*into = nil
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("reservation: children_ages decode: %w", err)
	}
	return nil
}
