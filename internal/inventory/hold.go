// Package inventory owns the ARI ledger and the hold state machine.
//
// Every mutation follows the same discipline: nights are walked in
// (room_type_id, date ASC) order so concurrent transactions acquire row
// locks in one canonical order, and every ARI update is guarded by a
// predicate plus a RowsAffected check so a lost race or a buggy replay can
// never drive a counter negative or oversell a night.
package inventory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Hold statuses. A hold is created active and terminates in exactly one of
// the other three states; it never resurrects.
const (
	HoldActive    = "active"
	HoldExpired   = "expired"
	HoldCancelled = "cancelled"
	HoldConverted = "converted"
)

// Hold is the short-lived inventory reservation awaiting payment.
type Hold struct {
	ID             string     `json:"id"`
	PropertyID     string     `json:"property_id"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	RoomTypeID     string     `json:"room_type_id"`
	Checkin        time.Time  `json:"checkin"`
	Checkout       time.Time  `json:"checkout"`
	AdultCount     int        `json:"adult_count"`
	ChildrenAges   []int      `json:"children_ages"`
	TotalCents     int64      `json:"total_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	ExpiresAt      time.Time  `json:"expires_at"`
	GuestName      string     `json:"guest_name,omitempty"`
	GuestEmail     *string    `json:"guest_email,omitempty"`
	GuestPhone     *string    `json:"guest_phone,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Night identifies one (room_type, date) unit a hold occupies.
type Night struct {
	RoomTypeID string
	Date       time.Time
}

// NightsBetween expands [checkin, checkout) into the canonical lock order:
// single room type here, so ascending date.
func NightsBetween(roomTypeID string, checkin, checkout time.Time) []Night {
	var nights []Night
	for d := checkin; d.Before(checkout); d = d.AddDate(0, 0, 1) {
		nights = append(nights, Night{RoomTypeID: roomTypeID, Date: d})
	}
	return nights
}

func agesJSON(ages []int) []byte {
	if ages == nil {
		ages = []int{}
	}
	raw, _ := json.Marshal(ages)
	return raw
}

func unmarshalAges(raw []byte, into *[]int) error {
	if len(raw) == 0 {
		*into = nil
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("inventory: children_ages decode: %w", err)
	}
	return nil
}
