package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskIDs_Deterministic(t *testing.T) {
	assert.Equal(t, StripeTaskID("evt_1"), StripeTaskID("evt_1"))
	assert.Equal(t, "expire-hold:hold_abc", ExpireHoldTaskID("hold_abc"))
	assert.Equal(t, "send-response:42", SendResponseTaskID(42))
	assert.Equal(t, "wa:evolution:MSG1", WhatsAppTaskID("evolution", "MSG1"))
}

func TestTaskIDs_SanitizeUnsafeChars(t *testing.T) {
	// Provider message ids can contain arbitrary bytes; task names cannot.
	id := WhatsAppTaskID("meta", "wamid.ABGG/Z0x==")
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, id)

	// Distinct inputs that sanitize identically would collide; colon is the
	// separator and is itself sanitized, so the prefix keeps them apart.
	assert.NotEqual(t, StripeTaskID("a_b"), ExpireHoldTaskID("a_b"))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) taskResponse {
	t.Helper()
	var resp taskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRespond_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(context.Background(), rec, nil)

	assert.Equal(t, 200, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.OK)
	assert.False(t, resp.AlreadySent)
}

func TestRespond_AlreadyDone(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(context.Background(), rec, ErrAlreadyDone)

	assert.Equal(t, 200, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.OK)
	assert.True(t, resp.AlreadySent)
}

func TestRespond_WrappedAlreadyDone(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(context.Background(), rec, fmt.Errorf("expire hold: %w", ErrAlreadyDone))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, decodeResponse(t, rec).AlreadySent)
}

func TestRespond_Terminal(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(context.Background(), rec, Terminal("contact_ref_not_found", errors.New("no vault entry")))

	// Terminal failures answer 200 so the queue stops retrying.
	assert.Equal(t, 200, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.OK)
	assert.True(t, resp.Terminal)
	assert.Equal(t, "contact_ref_not_found", resp.Error)
}

func TestRespond_TerminalWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("send response: %w", Terminal("template_invalid", nil))
	Respond(context.Background(), rec, err)

	assert.Equal(t, 200, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Terminal)
	assert.Equal(t, "template_invalid", resp.Error)
}

func TestRespond_TransientIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(context.Background(), rec, errors.New("connection reset"))

	assert.Equal(t, 500, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, "transient_failure", resp.Error)
}
