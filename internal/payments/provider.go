// Package payments wraps the payment gateway behind a narrow provider
// interface. Ingress only verifies signatures; the worker retrieves the full
// event by id and runs the convert transaction.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrBadSignature rejects webhooks whose signature does not match the
// configured secret.
var ErrBadSignature = errors.New("bad_webhook_signature")

// ErrEventIncomplete marks provider events missing the metadata the convert
// transaction requires.
var ErrEventIncomplete = errors.New("event_missing_metadata")

// Event is the subset of a provider event the worker acts on. Metadata on
// the checkout session carries the join keys back to our domain.
type Event struct {
	ID               string
	Type             string
	ProviderObjectID string
	HoldID           string
	PropertyID       string
	ConversationID   string
	AmountCents      int64
	Currency         string
}

// CheckoutParams describe one checkout session to create.
type CheckoutParams struct {
	PropertyID     string
	HoldID         string
	ConversationID string
	AmountCents    int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	// ExpiresAt must not exceed the hold expiry so the session cannot
	// outlive the hold.
	ExpiresAt time.Time
	// IdempotencyKey is sent per call so a retried create returns the
	// same session.
	IdempotencyKey string
}

// Session is the created checkout session.
type Session struct {
	ID  string
	URL string
}

// Provider is the gateway capability set: verify-signature, retrieve-event,
// create-checkout-session.
type Provider interface {
	// VerifyWebhook checks the signature and returns the event id and
	// type without trusting any other payload field.
	VerifyWebhook(payload []byte, signature string) (eventID, eventType string, err error)
	RetrieveEvent(ctx context.Context, eventID string) (*Event, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error)
}
