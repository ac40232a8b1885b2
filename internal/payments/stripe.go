package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(apiKey, webhookSecret string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

func (s *StripeProvider) VerifyWebhook(payload []byte, signature string) (string, string, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return event.ID, string(event.Type), nil
}

// RetrieveEvent fetches the event from Stripe by id. The webhook payload is
// never trusted for domain facts; this fetch is the authoritative read.
func (s *StripeProvider) RetrieveEvent(ctx context.Context, eventID string) (*Event, error) {
	params := &stripe.EventParams{}
	params.Context = ctx
	raw, err := s.api.Events.Get(eventID, params)
	if err != nil {
		return nil, fmt.Errorf("payments: retrieve event %s: %w", eventID, err)
	}
	return eventFromStripe(raw)
}

func eventFromStripe(raw *stripe.Event) (*Event, error) {
	obj := raw.Data.Object
	ev := &Event{
		ID:   raw.ID,
		Type: string(raw.Type),
	}
	ev.ProviderObjectID, _ = obj["id"].(string)
	if cur, ok := obj["currency"].(string); ok {
		ev.Currency = strings.ToUpper(cur)
	}
	if amount, ok := obj["amount_total"].(float64); ok {
		ev.AmountCents = int64(amount)
	}
	if meta, ok := obj["metadata"].(map[string]interface{}); ok {
		ev.HoldID, _ = meta["hold_id"].(string)
		ev.PropertyID, _ = meta["property_id"].(string)
		ev.ConversationID, _ = meta["conversation_id"].(string)
	}
	if ev.ProviderObjectID == "" || ev.HoldID == "" || ev.PropertyID == "" {
		return nil, fmt.Errorf("%w: event %s", ErrEventIncomplete, raw.ID)
	}
	return ev, nil
}

// PropertyFromPayload pulls data.object.metadata.property_id out of a
// verified webhook body. Ingress needs the tenant for the receipt row before
// the worker retrieves the authoritative event.
func PropertyFromPayload(raw []byte) string {
	var envelope struct {
		Data struct {
			Object struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.Data.Object.Metadata["property_id"]
}

func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(p.Currency)),
				UnitAmount: stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		ExpiresAt:  stripe.Int64(p.ExpiresAt.Unix()),
	}
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.AddMetadata("hold_id", p.HoldID)
	params.AddMetadata("property_id", p.PropertyID)
	params.AddMetadata("conversation_id", p.ConversationID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}
