// Package availability answers the occupancy queries behind the dashboard
// calendar. Booked counts come from a UNION of two streams: hold-originated
// reservations (joined through hold_nights) and staff-created manual
// reservations (expanded per night with generate_series).
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Day is the per (room_type, date) occupancy answer.
type Day struct {
	RoomTypeID string `json:"room_type_id"`
	Date       string `json:"date"`
	InvTotal   int    `json:"inv_total"`
	Booked     int    `json:"booked"`
	Held       int    `json:"held"`
	Available  int    `json:"available"`
}

// Engine runs occupancy aggregation.
type Engine struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

const occupancyQuery = `
WITH booked AS (
    SELECT hn.room_type_id, hn.date, SUM(hn.qty) AS qty
    FROM hold_nights hn
    JOIN reservations r ON r.hold_id = hn.hold_id AND r.property_id = hn.property_id
    WHERE hn.property_id = $1
      AND hn.date >= $2 AND hn.date < $3
      AND r.status = ANY($4)
    GROUP BY hn.room_type_id, hn.date

    UNION ALL

    SELECT r.room_type_id, gs.date::date AS date, COUNT(*) AS qty
    FROM reservations r
    CROSS JOIN LATERAL generate_series(r.checkin, r.checkout - INTERVAL '1 day', INTERVAL '1 day') AS gs(date)
    WHERE r.property_id = $1
      AND r.hold_id IS NULL
      AND r.status = ANY($4)
      AND r.checkin < $3 AND r.checkout > $2
      AND gs.date >= $2 AND gs.date < $3
    GROUP BY r.room_type_id, gs.date
),
held AS (
    SELECT hn.room_type_id, hn.date, SUM(hn.qty) AS qty
    FROM hold_nights hn
    JOIN holds h ON h.id = hn.hold_id
    WHERE hn.property_id = $1
      AND hn.date >= $2 AND hn.date < $3
      AND h.status = 'active'
    GROUP BY hn.room_type_id, hn.date
)
SELECT a.room_type_id,
       a.date,
       a.inv_total,
       COALESCE((SELECT SUM(b.qty) FROM booked b WHERE b.room_type_id = a.room_type_id AND b.date = a.date), 0)::int AS booked,
       COALESCE((SELECT SUM(hd.qty) FROM held hd WHERE hd.room_type_id = a.room_type_id AND hd.date = a.date), 0)::int AS held
FROM ari_days a
JOIN room_types rt ON rt.property_id = a.property_id AND rt.id = a.room_type_id AND rt.deleted_at IS NULL
WHERE a.property_id = $1 AND a.date >= $2 AND a.date < $3
ORDER BY a.room_type_id, a.date`

// Occupancy aggregates [start, end) per room type per date. A raw negative
// availability is a bug signal (the ARI check constraint should forbid it);
// it logs overbooking_detected and clamps to zero.
func (e *Engine) Occupancy(ctx context.Context, propertyID string, start, end time.Time, operationalStatuses []string) ([]Day, error) {
	rows, err := e.pool.Query(ctx, occupancyQuery, propertyID, start, end, operationalStatuses)
	if err != nil {
		return nil, fmt.Errorf("availability: occupancy: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var d Day
		var date time.Time
		if err := rows.Scan(&d.RoomTypeID, &date, &d.InvTotal, &d.Booked, &d.Held); err != nil {
			return nil, fmt.Errorf("availability: scan: %w", err)
		}
		d.Date = date.Format("2006-01-02")
		d.Available = ClampAvailable(d.InvTotal, d.Booked, d.Held)
		if d.InvTotal-d.Booked-d.Held < 0 {
			zerolog.Ctx(ctx).Warn().
				Str("property_id", propertyID).
				Str("room_type_id", d.RoomTypeID).
				Str("date", d.Date).
				Int("inv_total", d.InvTotal).
				Int("booked", d.Booked).
				Int("held", d.Held).
				Msg("overbooking_detected")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClampAvailable computes max(0, total - booked - held).
func ClampAvailable(total, booked, held int) int {
	available := total - booked - held
	if available < 0 {
		return 0
	}
	return available
}

// Grid pivots the occupancy rows into per-room-type date vectors for the
// dashboard calendar.
type GridRow struct {
	RoomTypeID string         `json:"room_type_id"`
	Days       map[string]Day `json:"days"`
}

func (e *Engine) Grid(ctx context.Context, propertyID string, start, end time.Time, operationalStatuses []string) ([]GridRow, error) {
	days, err := e.Occupancy(ctx, propertyID, start, end, operationalStatuses)
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	var out []GridRow
	for _, d := range days {
		i, ok := index[d.RoomTypeID]
		if !ok {
			i = len(out)
			index[d.RoomTypeID] = i
			out = append(out, GridRow{RoomTypeID: d.RoomTypeID, Days: map[string]Day{}})
		}
		out[i].Days[d.Date] = d
	}
	return out, nil
}
