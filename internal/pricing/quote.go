// Package pricing computes stay quotes from the per-night rate calendar,
// restriction flags and the property's child age buckets.
//
// Quote outcomes are a tagged result, not an error: an unavailable stay is a
// normal answer with a reason code, and only infrastructure failures surface
// as errors.
package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ReasonCode enumerates every way a quote can be unavailable.
type ReasonCode string

const (
	ReasonNoRate                ReasonCode = "no_rate"
	ReasonBlocked               ReasonCode = "blocked"
	ReasonMinNights             ReasonCode = "min_nights"
	ReasonMaxNights             ReasonCode = "max_nights"
	ReasonClosedToArrival       ReasonCode = "closed_to_arrival"
	ReasonClosedToDeparture     ReasonCode = "closed_to_departure"
	ReasonNoInventory           ReasonCode = "no_inventory"
	ReasonInvalidDates          ReasonCode = "invalid_dates"
	ReasonInvalidOccupancy      ReasonCode = "invalid_occupancy"
	ReasonChildrenBucketMissing ReasonCode = "children_bucket_missing"
	ReasonPropertyNotFound      ReasonCode = "property_not_found"
	ReasonRoomTypeNotFound      ReasonCode = "room_type_not_found"
	ReasonCurrencyMismatch      ReasonCode = "currency_mismatch"
	ReasonPriceOverflow         ReasonCode = "price_overflow"
)

// Quote is the tagged result of a pricing computation.
type Quote struct {
	OK         bool              `json:"ok"`
	TotalCents int64             `json:"total_cents,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Reason     ReasonCode        `json:"reason,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	Nights     int               `json:"nights,omitempty"`
}

func unavailable(reason ReasonCode, meta map[string]string) Quote {
	return Quote{OK: false, Reason: reason, Meta: meta}
}

// Request is a validated-on-entry quote request.
type Request struct {
	PropertyID   string
	RoomTypeID   string
	Checkin      time.Time // date-only, UTC midnight
	Checkout     time.Time
	AdultCount   int
	ChildrenAges []int
}

// rateDay mirrors one room_type_rates row.
type rateDay struct {
	date              time.Time
	currency          string
	paxPrices         [4]*int64 // 1..4 adults
	bucketPrices      [3]*int64
	minNights         int
	maxNights         *int
	closedToArrival   bool
	closedToDeparture bool
	isBlocked         bool
}

// ageBucket mirrors one child_age_buckets row.
type ageBucket struct {
	bucket int
	ageMin int
	ageMax int
}

// Compute prices the stay. Every night in [checkin, checkout) must carry a
// rate for the party size; restriction flags are evaluated per the night
// they are attached to (closed_to_arrival on the checkin night,
// closed_to_departure on the night before checkout). Nights outside the stay
// are not consulted; see DESIGN.md for the open question on spanning
// semantics.
func Compute(ctx context.Context, q store.Querier, req Request) (Quote, error) {
	if !req.Checkin.Before(req.Checkout) {
		return unavailable(ReasonInvalidDates, nil), nil
	}
	if req.AdultCount < 1 || req.AdultCount > 4 {
		return unavailable(ReasonInvalidOccupancy, map[string]string{"adult_count": fmt.Sprint(req.AdultCount)}), nil
	}
	for _, age := range req.ChildrenAges {
		if age < 0 || age > 17 {
			return unavailable(ReasonInvalidOccupancy, map[string]string{"child_age": fmt.Sprint(age)}), nil
		}
	}

	var propertyExists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM properties WHERE id = $1)`, req.PropertyID).Scan(&propertyExists)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing: property lookup: %w", err)
	}
	if !propertyExists {
		return unavailable(ReasonPropertyNotFound, nil), nil
	}

	var roomTypeExists bool
	err = q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_types
			WHERE property_id = $1 AND id = $2 AND deleted_at IS NULL
		)`, req.PropertyID, req.RoomTypeID).Scan(&roomTypeExists)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing: room type lookup: %w", err)
	}
	if !roomTypeExists {
		return unavailable(ReasonRoomTypeNotFound, nil), nil
	}

	rates, err := loadRates(ctx, q, req)
	if err != nil {
		return Quote{}, err
	}

	nights := int(req.Checkout.Sub(req.Checkin).Hours() / 24)
	if len(rates) != nights {
		return unavailable(ReasonNoRate, map[string]string{
			"nights_priced": fmt.Sprint(len(rates)),
			"nights_needed": fmt.Sprint(nights),
		}), nil
	}

	free, err := nightsWithInventory(ctx, q, req)
	if err != nil {
		return Quote{}, err
	}
	if free != nights {
		return unavailable(ReasonNoInventory, map[string]string{
			"nights_free":   fmt.Sprint(free),
			"nights_needed": fmt.Sprint(nights),
		}), nil
	}

	var buckets []ageBucket
	if len(req.ChildrenAges) > 0 {
		buckets, err = loadBuckets(ctx, q, req.PropertyID)
		if err != nil {
			return Quote{}, err
		}
	}

	return price(req, rates, buckets, nights)
}

// nightsWithInventory counts the stay's nights that still have at least one
// unit free. This is advisory: the hold's guarded update is the real gate.
func nightsWithInventory(ctx context.Context, q store.Querier, req Request) (int, error) {
	var free int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM ari_days
		WHERE property_id = $1 AND room_type_id = $2
		  AND date >= $3 AND date < $4
		  AND inv_total - inv_booked - inv_held >= 1`,
		req.PropertyID, req.RoomTypeID, req.Checkin, req.Checkout).Scan(&free)
	if err != nil {
		return 0, fmt.Errorf("pricing: inventory check: %w", err)
	}
	return free, nil
}

// price is the pure pricing core over loaded rows; split out for tests.
func price(req Request, rates []rateDay, buckets []ageBucket, nights int) (Quote, error) {
	currency := rates[0].currency
	var total int64

	for i, rd := range rates {
		dateMeta := map[string]string{"date": rd.date.Format("2006-01-02")}

		if rd.currency != currency {
			return unavailable(ReasonCurrencyMismatch, dateMeta), nil
		}
		if rd.isBlocked {
			return unavailable(ReasonBlocked, dateMeta), nil
		}
		if i == 0 {
			if rd.closedToArrival {
				return unavailable(ReasonClosedToArrival, dateMeta), nil
			}
			if nights < rd.minNights {
				return unavailable(ReasonMinNights, map[string]string{"min_nights": fmt.Sprint(rd.minNights)}), nil
			}
			if rd.maxNights != nil && nights > *rd.maxNights {
				return unavailable(ReasonMaxNights, map[string]string{"max_nights": fmt.Sprint(*rd.maxNights)}), nil
			}
		}
		if i == len(rates)-1 && rd.closedToDeparture {
			return unavailable(ReasonClosedToDeparture, dateMeta), nil
		}

		paxPrice := rd.paxPrices[req.AdultCount-1]
		if paxPrice == nil {
			return unavailable(ReasonNoRate, dateMeta), nil
		}
		night := *paxPrice

		for _, age := range req.ChildrenAges {
			bucket := bucketFor(buckets, age)
			if bucket == 0 {
				return unavailable(ReasonChildrenBucketMissing, map[string]string{"age": fmt.Sprint(age)}), nil
			}
			chd := rd.bucketPrices[bucket-1]
			if chd == nil {
				return unavailable(ReasonNoRate, dateMeta), nil
			}
			night += *chd
		}

		if night > math.MaxInt64-total {
			return unavailable(ReasonPriceOverflow, nil), nil
		}
		total += night
	}

	return Quote{OK: true, TotalCents: total, Currency: currency, Nights: nights}, nil
}

// bucketFor returns the 1-based bucket covering age, or 0 when uncovered.
func bucketFor(buckets []ageBucket, age int) int {
	for _, b := range buckets {
		if age >= b.ageMin && age <= b.ageMax {
			return b.bucket
		}
	}
	return 0
}

func loadRates(ctx context.Context, q store.Querier, req Request) ([]rateDay, error) {
	rows, err := q.Query(ctx, `
		SELECT date, currency,
		       price_1pax_cents, price_2pax_cents, price_3pax_cents, price_4pax_cents,
		       price_bucket1_chd_cents, price_bucket2_chd_cents, price_bucket3_chd_cents,
		       min_nights, max_nights, closed_to_arrival, closed_to_departure, is_blocked
		FROM room_type_rates
		WHERE property_id = $1 AND room_type_id = $2 AND date >= $3 AND date < $4
		ORDER BY date ASC`,
		req.PropertyID, req.RoomTypeID, req.Checkin, req.Checkout)
	if err != nil {
		return nil, fmt.Errorf("pricing: load rates: %w", err)
	}
	defer rows.Close()

	var rates []rateDay
	for rows.Next() {
		var rd rateDay
		if err := rows.Scan(
			&rd.date, &rd.currency,
			&rd.paxPrices[0], &rd.paxPrices[1], &rd.paxPrices[2], &rd.paxPrices[3],
			&rd.bucketPrices[0], &rd.bucketPrices[1], &rd.bucketPrices[2],
			&rd.minNights, &rd.maxNights, &rd.closedToArrival, &rd.closedToDeparture, &rd.isBlocked,
		); err != nil {
			return nil, fmt.Errorf("pricing: scan rate: %w", err)
		}
		rates = append(rates, rd)
	}
	return rates, rows.Err()
}

func loadBuckets(ctx context.Context, q store.Querier, propertyID string) ([]ageBucket, error) {
	rows, err := q.Query(ctx, `
		SELECT bucket, age_min, age_max FROM child_age_buckets
		WHERE property_id = $1
		ORDER BY bucket`,
		propertyID)
	if err != nil {
		return nil, fmt.Errorf("pricing: load buckets: %w", err)
	}
	defer rows.Close()

	var buckets []ageBucket
	for rows.Next() {
		var b ageBucket
		if err := rows.Scan(&b.bucket, &b.ageMin, &b.ageMax); err != nil {
			return nil, fmt.Errorf("pricing: scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
