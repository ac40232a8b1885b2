// Package httpapi assembles the public HTTP surface for both roles: webhook
// ingress, the authenticated dashboard, and the worker task endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/authz"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ErrorBody is the structured error envelope for staff endpoints. Meta is
// optional machine-readable context; message is short and stable, never a
// stack trace or payload echo.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Code: code, Message: message})
}

// domainStatus maps domain sentinel errors onto HTTP codes. Anything
// unmapped is a 500 with a generic body.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, inventory.ErrHoldNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inventory.ErrNoInventory):
		return http.StatusConflict, "no_inventory"
	case errors.Is(err, reservation.ErrRoomConflict):
		return http.StatusConflict, "room_conflict"
	case errors.Is(err, reservation.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, reservation.ErrJustificationRequired):
		return http.StatusUnprocessableEntity, "guarantee_justification_required"
	case errors.Is(err, reservation.ErrRoomNotAssigned):
		return http.StatusUnprocessableEntity, "room_not_assigned"
	case errors.Is(err, reservation.ErrRoomNotClean):
		return http.StatusConflict, "room_not_clean"
	case errors.Is(err, reservation.ErrBeforeCheckinDate):
		return http.StatusUnprocessableEntity, "before_checkin_date"
	case errors.Is(err, reservation.ErrFolioBalanceDue):
		return http.StatusConflict, "folio_balance_due"
	case errors.Is(err, reservation.ErrInvalidFolioMethod):
		return http.StatusUnprocessableEntity, "invalid_folio_method"
	case errors.Is(err, authz.ErrLastOwner):
		return http.StatusBadRequest, "last_owner"
	case errors.Is(err, authz.ErrNoRole):
		return http.StatusNotFound, "not_found"
	case store.Classify(err) == store.KindConflict:
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError writes the mapped envelope and logs server faults.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := domainStatus(err)
	if status >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, logging.SanitizeError(err.Error()))
}
