package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcioluisms/hotelly2-sub000/internal/authz"
	"github.com/marcioluisms/hotelly2-sub000/internal/availability"
	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/pricing"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
)

// Dashboard is the authenticated staff API. Every route is property-scoped
// through the property_id query parameter; role floors are enforced per
// route group.
type Dashboard struct {
	Pool         *pgxpool.Pool
	Reservations *reservation.Service
	Inventory    *inventory.Engine
	Availability *availability.Engine
	Payments     payments.Provider
	Dispatcher   tasks.Dispatcher
	Auth         *authz.Authenticator
	RBAC         *authz.RBAC

	HoldTTL            time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

func (d *Dashboard) Routes(r chi.Router) {
	r.With(d.Auth.AuthenticateOnly).Get("/me", d.handleMe)

	viewer := d.Auth.Middleware(authz.RoleViewer)
	governance := d.Auth.Middleware(authz.RoleGovernance)
	staff := d.Auth.Middleware(authz.RoleStaff)
	manager := d.Auth.Middleware(authz.RoleManager)
	owner := d.Auth.Middleware(authz.RoleOwner)
	idem := IdempotencyKeys(d.Pool)

	r.Group(func(r chi.Router) {
		r.Use(viewer)
		r.Get("/reservations", d.handleListReservations)
		r.Get("/reservations/{id}", d.handleGetReservation)
		r.Get("/reservations/{id}/status-log", d.handleStatusLog)
		r.Get("/reservations/{id}/folio", d.handleListFolio)
		r.Get("/holds/{id}", d.handleGetHold)
		r.Get("/occupancy", d.handleOccupancy)
		r.Get("/occupancy/grid", d.handleOccupancyGrid)
		r.Get("/rates", d.handleListRates)
		r.Get("/child-policies", d.handleListChildPolicies)
		r.Get("/cancellation-policy", d.handleGetCancellationPolicy)
		r.Get("/rooms", d.handleListRooms)
		r.Get("/room_types", d.handleListRoomTypes)
		r.Get("/guests", d.handleListGuests)
		r.Get("/guests/{id}", d.handleGetGuest)
		r.Get("/outbox", d.handleListOutbox)
		r.Get("/payments", d.handleListPayments)
	})

	r.Group(func(r chi.Router) {
		r.Use(staff, idem)
		r.Post("/reservations", d.handleCreateReservation)
		r.Post("/reservations/actions/quote", d.handleQuote)
		r.Post("/reservations/{id}/actions/cancel", d.handleCancelReservation)
		r.Post("/reservations/{id}/actions/assign-room", d.handleAssignRoom)
		r.Post("/reservations/{id}/actions/check-in", d.handleCheckIn)
		r.Post("/reservations/{id}/actions/check-out", d.handleCheckOut)
		r.Post("/reservations/{id}/folio", d.handleRecordFolio)
		r.Post("/reservations/{id}/folio/{paymentID}/void", d.handleVoidFolio)
		r.Post("/holds", d.handleCreateHold)
		r.Post("/holds/{id}/cancel", d.handleCancelHold)
		r.Post("/holds/{id}/checkout", d.handleHoldCheckout)
	})

	r.Group(func(r chi.Router) {
		r.Use(manager, idem)
		r.Post("/reservations/{id}/actions/confirm", d.handleManualConfirm)
		r.Post("/reservations/{id}/actions/adjust", d.handleAdjust)
		r.Put("/rates", d.handleUpsertRates)
		r.Put("/child-policies", d.handleUpsertChildPolicies)
		r.Put("/cancellation-policy", d.handleUpsertCancellationPolicy)
		r.Post("/room_types", d.handleCreateRoomType)
		r.Patch("/room_types/{id}", d.handleUpdateRoomType)
		r.Delete("/room_types/{id}", d.handleDeleteRoomType)
		r.Post("/rooms", d.handleCreateRoom)
	})

	r.With(governance, idem).Patch("/rooms/{id}/governance", d.handleRoomGovernance)

	r.Group(func(r chi.Router) {
		r.Use(owner, idem)
		r.Get("/rbac/users", d.handleListMembers)
		r.Post("/rbac/users", d.handleSetRole)
		r.Delete("/rbac/users/{id}", d.handleRemoveRole)
	})
}

// principal pulls the authenticated caller; the middleware guarantees it.
func principal(r *http.Request) *authz.Principal {
	p, _ := authz.PrincipalFrom(r.Context())
	return p
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}

func parseDateField(name, raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}

func (d *Dashboard) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rows, err := d.Pool.Query(r.Context(), `
		SELECT property_id, role FROM user_property_roles WHERE user_id = $1 ORDER BY property_id`,
		p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rows.Close()
	properties := map[string]string{}
	for rows.Next() {
		var propertyID, role string
		if err := rows.Scan(&propertyID, &role); err != nil {
			respondError(w, r, err)
			return
		}
		properties[propertyID] = role
	}
	if err := rows.Err(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    p.UserID,
		"email":      p.Email,
		"name":       p.Name,
		"properties": properties,
	})
}

func (d *Dashboard) handleListReservations(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := d.Reservations.List(r.Context(), p.PropertyID, reservation.ListParams{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": out})
}

func (d *Dashboard) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rsv, err := d.Reservations.Get(r.Context(), p.PropertyID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rsv)
}

func (d *Dashboard) handleStatusLog(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	log, err := d.Reservations.StatusLog(r.Context(), p.PropertyID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status_log": log})
}

type createReservationBody struct {
	RoomTypeID   string  `json:"room_type_id"`
	RoomID       *string `json:"room_id,omitempty"`
	GuestName    string  `json:"guest_name"`
	GuestEmail   *string `json:"guest_email,omitempty"`
	GuestPhone   *string `json:"guest_phone,omitempty"`
	Checkin      string  `json:"checkin"`
	Checkout     string  `json:"checkout"`
	AdultCount   int     `json:"adult_count"`
	ChildrenAges []int   `json:"children_ages,omitempty"`
	TotalCents   int64   `json:"total_cents"`
	Currency     string  `json:"currency"`
}

func (d *Dashboard) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body createReservationBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	checkin, err := parseDateField("checkin", body.Checkin)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	checkout, err := parseDateField("checkout", body.Checkout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	if !checkin.Before(checkout) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", "checkout must be after checkin")
		return
	}
	rsv, err := d.Reservations.CreateManual(r.Context(), reservation.CreateManualParams{
		PropertyID:   p.PropertyID,
		RoomTypeID:   body.RoomTypeID,
		RoomID:       body.RoomID,
		GuestName:    body.GuestName,
		GuestEmail:   body.GuestEmail,
		GuestPhone:   body.GuestPhone,
		Checkin:      checkin,
		Checkout:     checkout,
		AdultCount:   body.AdultCount,
		ChildrenAges: body.ChildrenAges,
		TotalCents:   body.TotalCents,
		Currency:     body.Currency,
		CreatedBy:    p.UserID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rsv)
}

type quoteBody struct {
	RoomTypeID   string `json:"room_type_id"`
	Checkin      string `json:"checkin"`
	Checkout     string `json:"checkout"`
	AdultCount   int    `json:"adult_count"`
	ChildrenAges []int  `json:"children_ages,omitempty"`
}

func (d *Dashboard) handleQuote(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body quoteBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	checkin, err := parseDateField("checkin", body.Checkin)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	checkout, err := parseDateField("checkout", body.Checkout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	quote, err := pricing.Compute(r.Context(), d.Pool, pricing.Request{
		PropertyID:   p.PropertyID,
		RoomTypeID:   body.RoomTypeID,
		Checkin:      checkin,
		Checkout:     checkout,
		AdultCount:   body.AdultCount,
		ChildrenAges: body.ChildrenAges,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type reservationActionBody struct {
	Justification string `json:"guarantee_justification,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RoomID        string `json:"room_id,omitempty"`
}

func (d *Dashboard) handleManualConfirm(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body reservationActionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	err := d.Reservations.ManualConfirm(r.Context(), p.PropertyID, chi.URLParam(r, "id"), body.Justification, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": reservation.StatusConfirmed})
}

func (d *Dashboard) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body reservationActionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	err := d.Reservations.Cancel(r.Context(), p.PropertyID, chi.URLParam(r, "id"), p.UserID, body.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": reservation.StatusCancelled})
}

func (d *Dashboard) handleAssignRoom(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body reservationActionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if body.RoomID == "" {
		writeError(w, http.StatusUnprocessableEntity, "room_id_required", "room_id is required")
		return
	}
	err := d.Reservations.AssignRoom(r.Context(), p.PropertyID, chi.URLParam(r, "id"), body.RoomID, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_id": body.RoomID})
}

func (d *Dashboard) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := d.Reservations.CheckIn(r.Context(), p.PropertyID, chi.URLParam(r, "id"), p.UserID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": reservation.StatusInHouse})
}

func (d *Dashboard) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := d.Reservations.CheckOut(r.Context(), p.PropertyID, chi.URLParam(r, "id"), p.UserID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": reservation.StatusCheckedOut})
}

type adjustBody struct {
	AdjustmentCents int64  `json:"adjustment_cents"`
	Reason          string `json:"reason"`
}

func (d *Dashboard) handleAdjust(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body adjustBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if body.Reason == "" {
		writeError(w, http.StatusUnprocessableEntity, "reason_required", "adjustment reason is required")
		return
	}
	err := d.Reservations.Adjust(r.Context(), p.PropertyID, chi.URLParam(r, "id"), body.AdjustmentCents, body.Reason, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}

type folioBody struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func (d *Dashboard) handleRecordFolio(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body folioBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	fp, err := d.Reservations.RecordFolioPayment(r.Context(), p.PropertyID, chi.URLParam(r, "id"),
		body.Method, body.AmountCents, body.Currency, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fp)
}

func (d *Dashboard) handleVoidFolio(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	err := d.Reservations.VoidFolioPayment(r.Context(), p.PropertyID, chi.URLParam(r, "paymentID"), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (d *Dashboard) handleListFolio(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	out, err := d.Reservations.ListFolioPayments(r.Context(), p.PropertyID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folio_payments": out})
}

type createHoldBody struct {
	RoomTypeID   string  `json:"room_type_id"`
	Checkin      string  `json:"checkin"`
	Checkout     string  `json:"checkout"`
	AdultCount   int     `json:"adult_count"`
	ChildrenAges []int   `json:"children_ages,omitempty"`
	TotalCents   int64   `json:"total_cents"`
	Currency     string  `json:"currency"`
	GuestName    string  `json:"guest_name,omitempty"`
	GuestEmail   *string `json:"guest_email,omitempty"`
	GuestPhone   *string `json:"guest_phone,omitempty"`
	TTLMinutes   int     `json:"ttl_minutes,omitempty"`
}

func (d *Dashboard) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body createHoldBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	checkin, err := parseDateField("checkin", body.Checkin)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	checkout, err := parseDateField("checkout", body.Checkout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates", err.Error())
		return
	}
	ttl := d.HoldTTL
	if body.TTLMinutes > 0 {
		ttl = time.Duration(body.TTLMinutes) * time.Minute
	}
	var key *string
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		key = &k
	}
	hold, err := d.Inventory.CreateHold(r.Context(), inventory.CreateHoldParams{
		PropertyID:     p.PropertyID,
		RoomTypeID:     body.RoomTypeID,
		Checkin:        checkin,
		Checkout:       checkout,
		AdultCount:     body.AdultCount,
		ChildrenAges:   body.ChildrenAges,
		TotalCents:     body.TotalCents,
		Currency:       body.Currency,
		ExpiresAt:      time.Now().Add(ttl),
		IdempotencyKey: key,
		GuestName:      body.GuestName,
		GuestEmail:     body.GuestEmail,
		GuestPhone:     body.GuestPhone,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	expireBody := expireHoldTaskBody{PropertyID: hold.PropertyID, HoldID: hold.ID}
	if err := d.Dispatcher.Enqueue(r.Context(), tasks.ExpireHoldTaskID(hold.ID), tasks.PathExpireHold, expireBody, hold.ExpiresAt); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (d *Dashboard) handleGetHold(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	hold, err := d.Inventory.GetHold(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if hold.PropertyID != p.PropertyID {
		writeError(w, http.StatusNotFound, "not_found", "hold not found")
		return
	}
	writeJSON(w, http.StatusOK, hold)
}

func (d *Dashboard) handleCancelHold(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	holdID := chi.URLParam(r, "id")
	hold, err := d.Inventory.GetHold(r.Context(), holdID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if hold.PropertyID != p.PropertyID {
		writeError(w, http.StatusNotFound, "not_found", "hold not found")
		return
	}
	outcome, err := d.Inventory.CancelHold(r.Context(), "staff-cancel:"+holdID+":"+p.UserID, holdID, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := "cancelled"
	if outcome == inventory.ReleaseNoop {
		status = "noop"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// handleHoldCheckout creates the payment link for a staff-created hold.
func (d *Dashboard) handleHoldCheckout(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	holdID := chi.URLParam(r, "id")
	hold, err := d.Inventory.GetHold(r.Context(), holdID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if hold.PropertyID != p.PropertyID {
		writeError(w, http.StatusNotFound, "not_found", "hold not found")
		return
	}
	if hold.Status != inventory.HoldActive {
		writeError(w, http.StatusConflict, "hold_not_active", "hold is not active")
		return
	}
	convID := ""
	if hold.ConversationID != nil {
		convID = *hold.ConversationID
	}
	session, err := d.Payments.CreateCheckoutSession(r.Context(), payments.CheckoutParams{
		PropertyID:     hold.PropertyID,
		HoldID:         hold.ID,
		ConversationID: convID,
		AmountCents:    hold.TotalCents,
		Currency:       hold.Currency,
		Description:    fmt.Sprintf("Stay %s to %s", hold.Checkin.Format("2006-01-02"), hold.Checkout.Format("2006-01-02")),
		SuccessURL:     d.CheckoutSuccessURL,
		CancelURL:      d.CheckoutCancelURL,
		ExpiresAt:      hold.ExpiresAt,
		IdempotencyKey: "checkout:" + hold.ID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := payments.RecordCreatedSession(r.Context(), d.Pool, hold.PropertyID, hold.ID, "stripe", session.ID, hold.TotalCents, hold.Currency); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": session.ID, "checkout_url": session.URL})
}

func (d *Dashboard) handleOccupancy(w http.ResponseWriter, r *http.Request) {
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
	days, err := d.Availability.Occupancy(r.Context(), p.PropertyID, start, end, reservation.OperationalStatuses)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (d *Dashboard) handleOccupancyGrid(w http.ResponseWriter, r *http.Request) {
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
	grid, err := d.Availability.Grid(r.Context(), p.PropertyID, start, end, reservation.OperationalStatuses)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grid": grid})
}

func (d *Dashboard) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := idempotency.ListEvents(r.Context(), d.Pool, p.PropertyID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (d *Dashboard) handleListPayments(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := payments.List(r.Context(), d.Pool, p.PropertyID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (d *Dashboard) handleListMembers(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	members, err := d.RBAC.ListMembers(r.Context(), p.PropertyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

type setRoleBody struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (d *Dashboard) handleSetRole(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var body setRoleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	if !authz.ValidRole(body.Role) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_role", "unknown role")
		return
	}
	if err := d.RBAC.SetRole(r.Context(), p.PropertyID, body.UserID, body.Role); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": body.UserID, "role": body.Role})
}

func (d *Dashboard) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := d.RBAC.RemoveRole(r.Context(), p.PropertyID, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
