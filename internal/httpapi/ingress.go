package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/identity"
	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/intent"
	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
	"github.com/marcioluisms/hotelly2-sub000/internal/whatsapp"
)

// Ingress terminates external traffic. Webhook handlers do exactly three
// durable things: receipt, vault write, task enqueue. Domain state is the
// worker's job.
type Ingress struct {
	Pool              *pgxpool.Pool
	Vault             *identity.Vault
	ContactHashSecret []byte
	WhatsApp          map[string]whatsapp.Provider
	Payments          payments.Provider
	Dispatcher        tasks.Dispatcher

	// Limiter absorbs provider storms per contact. Nil disables limiting.
	Limiter *whatsapp.RateLimiter
}

func (in *Ingress) Routes(r chi.Router) {
	r.Post("/webhooks/whatsapp/{provider}", in.handleWhatsAppWebhook)
	r.Post("/webhooks/stripe", in.handleStripeWebhook)
}

// signatureHeader returns the provider's signature material from the
// request.
func signatureHeader(provider string, r *http.Request) string {
	switch provider {
	case whatsapp.ChannelMeta:
		return r.Header.Get("X-Hub-Signature-256")
	case whatsapp.ChannelEvolution:
		return r.Header.Get("apikey")
	default:
		return ""
	}
}

func (in *Ingress) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerName := chi.URLParam(r, "provider")
	provider, ok := in.WhatsApp[providerName]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider")
		return
	}
	propertyID := r.Header.Get("X-Property-Id")
	if propertyID == "" {
		writeError(w, http.StatusBadRequest, "property_id_required", "X-Property-Id header required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}

	if err := provider.VerifySignature(body, signatureHeader(providerName, r)); err != nil {
		if errors.Is(err, whatsapp.ErrNoSecret) {
			// Fail closed but answer 200: a 4xx here makes the provider
			// hammer a misconfigured property forever.
			zerolog.Ctx(ctx).Warn().Str("property_id", propertyID).Str("provider", providerName).
				Msg("webhook secret missing; event dropped")
			writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
			return
		}
		writeError(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
		return
	}

	inbound, err := whatsapp.ParseMeta(body)
	if providerName == whatsapp.ChannelEvolution {
		inbound, err = whatsapp.ParseEvolution(body)
	}
	if err != nil {
		if errors.Is(err, whatsapp.ErrNoMessage) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeError(w, http.StatusBadRequest, "bad_payload", "unparseable payload")
		return
	}

	fresh, err := idempotency.MarkProcessed(ctx, in.Pool, propertyID,
		idempotency.WhatsAppSource(providerName), inbound.MessageID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	contactHash := identity.ContactHash(in.ContactHashSecret, propertyID, providerName, inbound.SenderID)
	if !in.Limiter.Allow(ctx, propertyID, providerName, contactHash) {
		// Acknowledged drop: a 429 would only make the provider resend.
		zerolog.Ctx(ctx).Warn().
			Str("property_id", propertyID).
			Str("contact", logging.RedactContact(contactHash)).
			Msg("inbound message rate limited")
		writeJSON(w, http.StatusOK, map[string]string{"status": "rate_limited"})
		return
	}
	if err := in.Vault.Put(ctx, in.Pool, propertyID, providerName, contactHash, inbound.SenderID); err != nil {
		respondError(w, r, err)
		return
	}

	payload := whatsapp.NewTaskPayload(inbound, propertyID, logging.CorrelationID(ctx),
		contactHash, intent.Redact(inbound.Text), time.Now())
	taskID := tasks.WhatsAppTaskID(providerName, inbound.MessageID)
	if err := in.Dispatcher.Enqueue(ctx, taskID, tasks.PathWhatsAppInbound, payload, time.Time{}); err != nil {
		respondError(w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("property_id", propertyID).
		Str("provider", providerName).
		Str("message_id", inbound.MessageID).
		Str("contact", logging.RedactContact(contactHash)).
		Msg("inbound message accepted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// stripeTaskBody is what the worker receives: the event id only, never the
// webhook payload.
type stripeTaskBody struct {
	EventID    string `json:"event_id"`
	PropertyID string `json:"property_id"`
}

func (in *Ingress) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}

	eventID, eventType, err := in.Payments.VerifyWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
		return
	}

	propertyID := payments.PropertyFromPayload(body)
	if propertyID == "" {
		// Events without our metadata (e.g. unrelated account activity)
		// are acknowledged and dropped.
		zerolog.Ctx(ctx).Debug().Str("event_id", eventID).Str("event_type", eventType).
			Msg("stripe event without property metadata ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	fresh, err := idempotency.MarkProcessed(ctx, in.Pool, propertyID, idempotency.SourceStripe+":webhook", eventID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	taskID := tasks.StripeTaskID(eventID)
	payload := stripeTaskBody{EventID: eventID, PropertyID: propertyID}
	if err := in.Dispatcher.Enqueue(ctx, taskID, tasks.PathStripeHandleEvent, payload, time.Time{}); err != nil {
		respondError(w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("property_id", propertyID).
		Str("event_id", eventID).
		Str("event_type", eventType).
		Msg("stripe event accepted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
