package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
)

func metaSig(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestMetaVerifySignature(t *testing.T) {
	m := NewMeta("", "12345", "token", "app-secret")
	payload := []byte(`{"entry":[]}`)

	assert.NoError(t, m.VerifySignature(payload, metaSig("app-secret", payload)))
	assert.ErrorIs(t, m.VerifySignature(payload, metaSig("wrong", payload)), ErrBadSignature)
	assert.ErrorIs(t, m.VerifySignature(payload, "not-prefixed"), ErrBadSignature)

	empty := NewMeta("", "12345", "token", "")
	assert.ErrorIs(t, empty.VerifySignature(payload, metaSig("x", payload)), ErrNoSecret)
}

func TestEvolutionVerifySignature(t *testing.T) {
	e := NewEvolution("http://localhost:8080", "inn", "key-1")
	assert.NoError(t, e.VerifySignature(nil, "key-1"))
	assert.ErrorIs(t, e.VerifySignature(nil, "key-2"), ErrBadSignature)

	empty := NewEvolution("http://localhost:8080", "inn", "")
	assert.ErrorIs(t, empty.VerifySignature(nil, ""), ErrNoSecret)
}

func TestParseMeta(t *testing.T) {
	payload := []byte(`{"entry":[{"changes":[{"value":{"messages":[
		{"from":"5541999990000","id":"wamid.1","type":"text","text":{"body":"quero reservar"}}
	]}}]}]}`)
	in, err := ParseMeta(payload)
	require.NoError(t, err)
	assert.Equal(t, ChannelMeta, in.Provider)
	assert.Equal(t, "wamid.1", in.MessageID)
	assert.Equal(t, "5541999990000", in.SenderID)
	assert.Equal(t, KindText, in.Kind)
	assert.Equal(t, "quero reservar", in.Text)

	_, err = ParseMeta([]byte(`{"entry":[{"changes":[{"value":{}}]}]}`))
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestParseEvolution(t *testing.T) {
	payload := []byte(`{"event":"messages.upsert","data":{
		"key":{"remoteJid":"5541999990000@s.whatsapp.net","fromMe":false,"id":"3EB0"},
		"message":{"conversation":"tem vaga?"},
		"messageType":"conversation"}}`)
	in, err := ParseEvolution(payload)
	require.NoError(t, err)
	assert.Equal(t, ChannelEvolution, in.Provider)
	assert.Equal(t, "3EB0", in.MessageID)
	assert.Equal(t, "5541999990000", in.SenderID)
	assert.Equal(t, KindText, in.Kind)
	assert.Equal(t, "tem vaga?", in.Text)

	echo := []byte(`{"event":"messages.upsert","data":{"key":{"remoteJid":"55@s.whatsapp.net","fromMe":true,"id":"x"}}}`)
	_, err = ParseEvolution(echo)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	in := &Inbound{Provider: ChannelMeta, MessageID: "wamid.1", SenderID: "5541999990000", Kind: KindText}
	p := NewTaskPayload(in, "prop_1", "corr-1", "aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFz", "quero reservar 10/04 a 12/04", time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC))

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	// The payload must never carry the routable sender id.
	assert.NotContains(t, string(raw), "5541999990000")

	got, err := DecodeTaskPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestDecodeTaskPayload_Strict(t *testing.T) {
	_, err := DecodeTaskPayload([]byte(`{"schema_version":1,"provider":"meta","message_id":"m","property_id":"p","correlation_id":"c","contact_hash":"h","kind":"text","received_at":"t","phone":"5541"}`))
	assert.Error(t, err, "unknown fields must be rejected")

	_, err = DecodeTaskPayload([]byte(`{"schema_version":2,"provider":"meta","message_id":"m","property_id":"p","correlation_id":"c","contact_hash":"h","kind":"text","received_at":"t"}`))
	assert.Error(t, err, "unknown schema versions must be rejected")

	_, err = DecodeTaskPayload([]byte(`{"schema_version":1,"provider":"meta","kind":"text"}`))
	assert.Error(t, err, "required fields must be present")
}

func TestSendErrorPermanence(t *testing.T) {
	assert.True(t, IsPermanentSendError(&SendError{StatusCode: 400}))
	assert.True(t, IsPermanentSendError(&SendError{StatusCode: 404}))
	assert.False(t, IsPermanentSendError(&SendError{StatusCode: 429}))
	assert.False(t, IsPermanentSendError(&SendError{StatusCode: 408}))
	assert.False(t, IsPermanentSendError(&SendError{StatusCode: 500}))
	assert.False(t, IsPermanentSendError(assert.AnError))
}

func TestRenderMessage(t *testing.T) {
	ev := &idempotency.OutboxEvent{
		EventType: idempotency.EventReservationConfirmed,
		Payload: map[string]any{
			"checkin":     "2026-04-10",
			"checkout":    "2026-04-12",
			"total_cents": float64(30000),
			"currency":    "BRL",
		},
	}
	msg := RenderMessage(ev)
	assert.Contains(t, msg, "2026-04-10")
	assert.Contains(t, msg, "confirmed")

	ev.EventType = idempotency.EventHoldCreated
	ev.Payload["checkout_url"] = "https://pay.example/cs_1"
	msg = RenderMessage(ev)
	assert.Contains(t, msg, "BRL 300.00")
	assert.Contains(t, msg, "https://pay.example/cs_1")
}
