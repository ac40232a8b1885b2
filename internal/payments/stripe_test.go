package payments

import (
	"testing"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionEvent(meta map[string]interface{}) *stripe.Event {
	return &stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{
			Object: map[string]interface{}{
				"id":           "cs_123",
				"currency":     "brl",
				"amount_total": float64(30000),
				"metadata":     meta,
			},
		},
	}
}

func TestEventFromStripe(t *testing.T) {
	ev, err := eventFromStripe(sessionEvent(map[string]interface{}{
		"hold_id":         "hold_abc",
		"property_id":     "prop_1",
		"conversation_id": "conv_9",
	}))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "cs_123", ev.ProviderObjectID)
	assert.Equal(t, "hold_abc", ev.HoldID)
	assert.Equal(t, "prop_1", ev.PropertyID)
	assert.Equal(t, "conv_9", ev.ConversationID)
	assert.Equal(t, int64(30000), ev.AmountCents)
	assert.Equal(t, "BRL", ev.Currency)
}

func TestEventFromStripe_MissingMetadata(t *testing.T) {
	_, err := eventFromStripe(sessionEvent(map[string]interface{}{
		"property_id": "prop_1",
	}))
	assert.ErrorIs(t, err, ErrEventIncomplete)
}
