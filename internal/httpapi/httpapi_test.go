package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcioluisms/hotelly2-sub000/internal/authz"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
)

func TestDomainStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{reservation.ErrReservationNotFound, http.StatusNotFound, "not_found"},
		{inventory.ErrHoldNotFound, http.StatusNotFound, "not_found"},
		{inventory.ErrNoInventory, http.StatusConflict, "no_inventory"},
		{reservation.ErrRoomConflict, http.StatusConflict, "room_conflict"},
		{reservation.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{reservation.ErrJustificationRequired, http.StatusUnprocessableEntity, "guarantee_justification_required"},
		{reservation.ErrRoomNotClean, http.StatusConflict, "room_not_clean"},
		{reservation.ErrFolioBalanceDue, http.StatusConflict, "folio_balance_due"},
		{authz.ErrLastOwner, http.StatusBadRequest, "last_owner"},
		{authz.ErrNoRole, http.StatusNotFound, "not_found"},
		{errors.New("database exploded"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := domainStatus(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
		assert.Equal(t, tc.code, code, "error %v", tc.err)
	}
}

func TestDomainStatusWrapped(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), inventory.ErrNoInventory)
	status, code := domainStatus(wrapped)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "no_inventory", code)
}

func TestParseDateField(t *testing.T) {
	got, err := parseDateField("checkin", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	_, err = parseDateField("checkin", "01/03/2026")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkin")
}

func TestParseDateParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/occupancy?start=2026-03-01", nil)
	_, err := parseDateParam(r, "start")
	require.NoError(t, err)

	_, err = parseDateParam(r, "end")
	require.Error(t, err)
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/reservations",
		bytes.NewBufferString(`{"room_type_id":"rt_1","surprise":true}`))
	var body createRoomBody
	require.Error(t, decodeBody(r, &body))
}

func TestDecodeTaskBodyTerminal(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, tasks.PathExpireHold,
		bytes.NewBufferString(`{"property_id":"prop_1","hold_id":"hld_1","extra":1}`))
	var body expireHoldTaskBody
	err := decodeTaskBody(r, &body)
	require.Error(t, err)
	var terminal *tasks.TerminalError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, "bad_task_body", terminal.Code)

	r = httptest.NewRequest(http.MethodPost, tasks.PathExpireHold,
		bytes.NewBufferString(`{"property_id":"prop_1","hold_id":"hld_1"}`))
	require.NoError(t, decodeTaskBody(r, &body))
	assert.Equal(t, "hld_1", body.HoldID)
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusConflict, "no_inventory", "no rooms left for those dates")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"no_inventory","message":"no rooms left for those dates"}`, rec.Body.String())
}
