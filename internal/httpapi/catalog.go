package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Catalog handlers: rates, child-age policy, cancellation policy, rooms and
// room types, guests. Plain property-scoped CRUD; the interesting invariants
// live in the schema (bucket exclusion, governance enum, soft delete).

type rateRow struct {
	RoomTypeID        string `json:"room_type_id"`
	Date              string `json:"date"`
	Currency          string `json:"currency"`
	Price1PaxCents    *int64 `json:"price_1pax_cents,omitempty"`
	Price2PaxCents    *int64 `json:"price_2pax_cents,omitempty"`
	Price3PaxCents    *int64 `json:"price_3pax_cents,omitempty"`
	Price4PaxCents    *int64 `json:"price_4pax_cents,omitempty"`
	PriceBucket1Cents *int64 `json:"price_bucket1_chd_cents,omitempty"`
	PriceBucket2Cents *int64 `json:"price_bucket2_chd_cents,omitempty"`
	PriceBucket3Cents *int64 `json:"price_bucket3_chd_cents,omitempty"`
	MinNights         int    `json:"min_nights"`
	MaxNights         *int   `json:"max_nights,omitempty"`
	ClosedToArrival   bool   `json:"closed_to_arrival"`
	ClosedToDeparture bool   `json:"closed_to_departure"`
	IsBlocked         bool   `json:"is_blocked"`
}

func (d *Dashboard) handleListRates(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	start, err := parseDateParam(r, "start")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	rows, err := d.Pool.Query(r.Context(), `
		SELECT room_type_id, date, currency,
		       price_1pax_cents, price_2pax_cents, price_3pax_cents, price_4pax_cents,
		       price_bucket1_chd_cents, price_bucket2_chd_cents, price_bucket3_chd_cents,
		       min_nights, max_nights, closed_to_arrival, closed_to_departure, is_blocked
		FROM room_type_rates
		WHERE property_id = $1 AND date >= $2 AND date < $3
		ORDER BY room_type_id, date`,
		p.PropertyID, start, end)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()

	var out []rateRow
	for rows.Next() {
		var rr rateRow
		var date time.Time
		if err := rows.Scan(&rr.RoomTypeID, &date, &rr.Currency,
			&rr.Price1PaxCents, &rr.Price2PaxCents, &rr.Price3PaxCents, &rr.Price4PaxCents,
			&rr.PriceBucket1Cents, &rr.PriceBucket2Cents, &rr.PriceBucket3Cents,
			&rr.MinNights, &rr.MaxNights, &rr.ClosedToArrival, &rr.ClosedToDeparture, &rr.IsBlocked); err != nil {
			respondError(w, r, err)
			return
		}
		rr.Date = date.Format("2006-01-02")
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": out})
}

type upsertRatesBody struct {
	Rates []rateRow `json:"rates"`
	// InvTotal, when set, also upserts inventory for the same cells.
	InvTotal *int `json:"inv_total,omitempty"`
}

func (d *Dashboard) handleUpsertRates(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body upsertRatesBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if len(body.Rates) == 0 || len(body.Rates) > 1000 {
		writeError(w, http.StatusUnprocessableEntity, "bad_rates", "between 1 and 1000 rate rows per call")
		return
	}
	err := store.WithTx(r.Context(), d.Pool, func(tx pgx.Tx) error {
		for _, rr := range body.Rates {
			date, err := parseDateField("date", rr.Date)
			if err != nil {
				return err
			}
			minNights := rr.MinNights
			if minNights < 1 {
				minNights = 1
			}
			_, err = tx.Exec(r.Context(), `
				INSERT INTO room_type_rates (property_id, room_type_id, date, currency,
					price_1pax_cents, price_2pax_cents, price_3pax_cents, price_4pax_cents,
					price_bucket1_chd_cents, price_bucket2_chd_cents, price_bucket3_chd_cents,
					min_nights, max_nights, closed_to_arrival, closed_to_departure, is_blocked)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
				ON CONFLICT (property_id, room_type_id, date) DO UPDATE SET
					currency = EXCLUDED.currency,
					price_1pax_cents = EXCLUDED.price_1pax_cents,
					price_2pax_cents = EXCLUDED.price_2pax_cents,
					price_3pax_cents = EXCLUDED.price_3pax_cents,
					price_4pax_cents = EXCLUDED.price_4pax_cents,
					price_bucket1_chd_cents = EXCLUDED.price_bucket1_chd_cents,
					price_bucket2_chd_cents = EXCLUDED.price_bucket2_chd_cents,
					price_bucket3_chd_cents = EXCLUDED.price_bucket3_chd_cents,
					min_nights = EXCLUDED.min_nights,
					max_nights = EXCLUDED.max_nights,
					closed_to_arrival = EXCLUDED.closed_to_arrival,
					closed_to_departure = EXCLUDED.closed_to_departure,
					is_blocked = EXCLUDED.is_blocked,
					updated_at = now()`,
				p.PropertyID, rr.RoomTypeID, date, rr.Currency,
				rr.Price1PaxCents, rr.Price2PaxCents, rr.Price3PaxCents, rr.Price4PaxCents,
				rr.PriceBucket1Cents, rr.PriceBucket2Cents, rr.PriceBucket3Cents,
				minNights, rr.MaxNights, rr.ClosedToArrival, rr.ClosedToDeparture, rr.IsBlocked)
			if err != nil {
				return err
			}
			if body.InvTotal != nil {
				// inv_total can only grow or stay above what is already
				// committed; the check constraint rejects shrinking below
				// booked + held.
				_, err = tx.Exec(r.Context(), `
					INSERT INTO ari_days (property_id, room_type_id, date, inv_total)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (property_id, room_type_id, date) DO UPDATE SET
						inv_total = EXCLUDED.inv_total, updated_at = now()`,
					p.PropertyID, rr.RoomTypeID, date, *body.InvTotal)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": len(body.Rates)})
}

type childBucket struct {
	Bucket int `json:"bucket"`
	AgeMin int `json:"age_min"`
	AgeMax int `json:"age_max"`
}

func (d *Dashboard) handleListChildPolicies(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rows, err := d.Pool.Query(r.Context(), `
		SELECT bucket, age_min, age_max FROM child_age_buckets
		WHERE property_id = $1 ORDER BY bucket`,
		p.PropertyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()
	var out []childBucket
	for rows.Next() {
		var b childBucket
		if err := rows.Scan(&b.Bucket, &b.AgeMin, &b.AgeMax); err != nil {
			respondError(w, r, err)
			return
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": out})
}

type childPoliciesBody struct {
	Buckets []childBucket `json:"buckets"`
}

func (d *Dashboard) handleUpsertChildPolicies(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body childPoliciesBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if len(body.Buckets) != 3 {
		writeError(w, http.StatusUnprocessableEntity, "bad_buckets", "exactly three buckets are required")
		return
	}
	// Full replace inside one transaction; the exclusion constraint vets
	// overlap on insert.
	err := store.WithTx(r.Context(), d.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(r.Context(), `DELETE FROM child_age_buckets WHERE property_id = $1`, p.PropertyID); err != nil {
			return err
		}
		for _, b := range body.Buckets {
			if _, err := tx.Exec(r.Context(), `
				INSERT INTO child_age_buckets (property_id, bucket, age_min, age_max)
				VALUES ($1, $2, $3, $4)`,
				p.PropertyID, b.Bucket, b.AgeMin, b.AgeMax); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": body.Buckets})
}

type cancellationPolicyBody struct {
	PolicyType                 string   `json:"policy_type"`
	PenaltyPercent             *float64 `json:"penalty_percent,omitempty"`
	FreeUntilDaysBeforeCheckin *int     `json:"free_until_days_before_checkin,omitempty"`
}

func (d *Dashboard) handleGetCancellationPolicy(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body cancellationPolicyBody
	err := d.Pool.QueryRow(r.Context(), `
		SELECT policy_type, penalty_percent, free_until_days_before_checkin
		FROM cancellation_policies WHERE property_id = $1`,
		p.PropertyID).Scan(&body.PolicyType, &body.PenaltyPercent, &body.FreeUntilDaysBeforeCheckin)
	if store.IsNoRows(err) {
		writeError(w, http.StatusNotFound, "not_found", "no cancellation policy configured")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (d *Dashboard) handleUpsertCancellationPolicy(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body cancellationPolicyBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	_, err := d.Pool.Exec(r.Context(), `
		INSERT INTO cancellation_policies (property_id, policy_type, penalty_percent, free_until_days_before_checkin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (property_id) DO UPDATE SET
			policy_type = EXCLUDED.policy_type,
			penalty_percent = EXCLUDED.penalty_percent,
			free_until_days_before_checkin = EXCLUDED.free_until_days_before_checkin,
			updated_at = now()`,
		p.PropertyID, body.PolicyType, body.PenaltyPercent, body.FreeUntilDaysBeforeCheckin)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type roomRow struct {
	ID               string `json:"id"`
	RoomTypeID       string `json:"room_type_id"`
	Label            string `json:"label"`
	GovernanceStatus string `json:"governance_status"`
}

func (d *Dashboard) handleListRooms(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rows, err := d.Pool.Query(r.Context(), `
		SELECT id, room_type_id, label, governance_status FROM rooms
		WHERE property_id = $1 ORDER BY label`,
		p.PropertyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()
	var out []roomRow
	for rows.Next() {
		var rm roomRow
		if err := rows.Scan(&rm.ID, &rm.RoomTypeID, &rm.Label, &rm.GovernanceStatus); err != nil {
			respondError(w, r, err)
			return
		}
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

type createRoomBody struct {
	RoomTypeID string `json:"room_type_id"`
	Label      string `json:"label"`
}

func (d *Dashboard) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body createRoomBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	room := roomRow{ID: "rom_" + uuid.NewString(), RoomTypeID: body.RoomTypeID, Label: body.Label, GovernanceStatus: "clean"}
	_, err := d.Pool.Exec(r.Context(), `
		INSERT INTO rooms (property_id, id, room_type_id, label) VALUES ($1, $2, $3, $4)`,
		p.PropertyID, room.ID, room.RoomTypeID, room.Label)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

var governanceStatuses = map[string]bool{"dirty": true, "cleaning": true, "clean": true, "maintenance": true}

type governanceBody struct {
	Status string `json:"status"`
}

func (d *Dashboard) handleRoomGovernance(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body governanceBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if !governanceStatuses[body.Status] {
		writeError(w, http.StatusUnprocessableEntity, "invalid_status", "unknown governance status")
		return
	}
	tag, err := d.Pool.Exec(r.Context(), `
		UPDATE rooms SET governance_status = $3, updated_at = now()
		WHERE property_id = $1 AND id = $2`,
		p.PropertyID, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tag.RowsAffected() != 1 {
		writeError(w, http.StatusNotFound, "not_found", "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}

type roomTypeRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxAdults   int    `json:"max_adults"`
	MaxChildren int    `json:"max_children"`
}

func (d *Dashboard) handleListRoomTypes(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rows, err := d.Pool.Query(r.Context(), `
		SELECT id, name, max_adults, max_children FROM room_types
		WHERE property_id = $1 AND deleted_at IS NULL ORDER BY id`,
		p.PropertyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()
	var out []roomTypeRow
	for rows.Next() {
		var rt roomTypeRow
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.MaxAdults, &rt.MaxChildren); err != nil {
			respondError(w, r, err)
			return
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_types": out})
}

type roomTypeBody struct {
	Name        string `json:"name"`
	MaxAdults   int    `json:"max_adults"`
	MaxChildren int    `json:"max_children"`
}

func (d *Dashboard) handleCreateRoomType(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body roomTypeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	rt := roomTypeRow{ID: "rt_" + uuid.NewString(), Name: body.Name, MaxAdults: body.MaxAdults, MaxChildren: body.MaxChildren}
	if rt.MaxAdults < 1 {
		rt.MaxAdults = 2
	}
	_, err := d.Pool.Exec(r.Context(), `
		INSERT INTO room_types (property_id, id, name, max_adults, max_children)
		VALUES ($1, $2, $3, $4, $5)`,
		p.PropertyID, rt.ID, rt.Name, rt.MaxAdults, rt.MaxChildren)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (d *Dashboard) handleUpdateRoomType(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body roomTypeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	tag, err := d.Pool.Exec(r.Context(), `
		UPDATE room_types SET name = $3, max_adults = $4, max_children = $5, updated_at = now()
		WHERE property_id = $1 AND id = $2 AND deleted_at IS NULL`,
		p.PropertyID, chi.URLParam(r, "id"), body.Name, body.MaxAdults, body.MaxChildren)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tag.RowsAffected() != 1 {
		writeError(w, http.StatusNotFound, "not_found", "room type not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleDeleteRoomType is a soft delete: historical reservations keep their
// FK; the type just stops being sellable.
func (d *Dashboard) handleDeleteRoomType(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	tag, err := d.Pool.Exec(r.Context(), `
		UPDATE room_types SET deleted_at = now(), updated_at = now()
		WHERE property_id = $1 AND id = $2 AND deleted_at IS NULL`,
		p.PropertyID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tag.RowsAffected() != 1 {
		writeError(w, http.StatusNotFound, "not_found", "room type not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type guestRow struct {
	ID       string  `json:"id"`
	FullName string  `json:"full_name"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

func (d *Dashboard) handleListGuests(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rows, err := d.Pool.Query(r.Context(), `
		SELECT id, full_name, email, phone FROM guests
		WHERE property_id = $1
		ORDER BY updated_at DESC LIMIT 200`,
		p.PropertyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()
	var out []guestRow
	for rows.Next() {
		var g guestRow
		if err := rows.Scan(&g.ID, &g.FullName, &g.Email, &g.Phone); err != nil {
			respondError(w, r, err)
			return
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guests": out})
}

func (d *Dashboard) handleGetGuest(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var g guestRow
	err := d.Pool.QueryRow(r.Context(), `
		SELECT id, full_name, email, phone FROM guests
		WHERE property_id = $1 AND id = $2`,
		p.PropertyID, chi.URLParam(r, "id")).Scan(&g.ID, &g.FullName, &g.Email, &g.Phone)
	if store.IsNoRows(err) {
		writeError(w, http.StatusNotFound, "not_found", "guest not found")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
