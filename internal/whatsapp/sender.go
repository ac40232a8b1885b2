package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/identity"
	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
)

// ErrRateLimited is transient: the queue retries after the window resets.
var ErrRateLimited = errors.New("contact_rate_limited")

// Sender is the send-response handler core. The lease commits in its own
// transaction before the provider call so the network I/O holds no locks.
type Sender struct {
	pool      *pgxpool.Pool
	vault     *identity.Vault
	providers map[string]Provider
	limiter   *RateLimiter
}

func NewSender(pool *pgxpool.Pool, vault *identity.Vault, providers map[string]Provider, limiter *RateLimiter) *Sender {
	return &Sender{pool: pool, vault: vault, providers: providers, limiter: limiter}
}

// SendOutboxEvent delivers one outbox event to the guest. The returned error
// follows the task retry contract: nil success, tasks.ErrAlreadyDone,
// tasks.TerminalError, or a transient error for queue retry.
func (s *Sender) SendOutboxEvent(ctx context.Context, propertyID string, outboxEventID int64) error {
	var lease idempotency.LeaseResult
	err := store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		lease, err = idempotency.AcquireLease(ctx, tx, propertyID, outboxEventID)
		return err
	})
	if err != nil {
		return err
	}
	switch lease {
	case idempotency.LeaseAlreadySent:
		return tasks.ErrAlreadyDone
	case idempotency.LeaseHeld:
		return fmt.Errorf("delivery lease held for outbox event %d", outboxEventID)
	case idempotency.LeaseFailedPermanent:
		return tasks.Terminal("delivery_failed_permanent", nil)
	}

	ev, err := idempotency.GetEvent(ctx, s.pool, propertyID, outboxEventID)
	if err != nil {
		return err
	}

	channel, contactHash, err := s.resolveContact(ctx, ev)
	if err != nil {
		if errors.Is(err, errNoConversation) {
			// Staff-originated aggregate with no guest conversation.
			// Nothing to deliver.
			if markErr := idempotency.MarkFailedPermanent(ctx, s.pool, propertyID, outboxEventID, "no_conversation"); markErr != nil {
				return markErr
			}
			return tasks.Terminal("no_conversation", nil)
		}
		return err
	}

	provider, ok := s.providers[channel]
	if !ok {
		if markErr := idempotency.MarkFailedPermanent(ctx, s.pool, propertyID, outboxEventID, "unknown_channel:"+channel); markErr != nil {
			return markErr
		}
		return tasks.Terminal("unknown_channel", nil)
	}

	// Vault miss means the 24h TTL elapsed. Silent degradation: the guest
	// re-engages, we never retry into a dead address.
	routableID, err := s.vault.Get(ctx, s.pool, propertyID, channel, contactHash)
	if err != nil {
		if errors.Is(err, identity.ErrContactRefNotFound) {
			if markErr := idempotency.MarkFailedPermanent(ctx, s.pool, propertyID, outboxEventID, "contact_ref_not_found"); markErr != nil {
				return markErr
			}
			return tasks.Terminal("contact_ref_not_found", nil)
		}
		return err
	}

	if !s.limiter.Allow(ctx, propertyID, channel, contactHash) {
		if recErr := idempotency.RecordTransientFailure(ctx, s.pool, propertyID, outboxEventID, "rate_limited"); recErr != nil {
			return recErr
		}
		return ErrRateLimited
	}

	text := RenderMessage(ev)
	if err := provider.SendText(ctx, routableID, text); err != nil {
		sanitized := logging.SanitizeError(err.Error())
		if IsPermanentSendError(err) {
			if markErr := idempotency.MarkFailedPermanent(ctx, s.pool, propertyID, outboxEventID, sanitized); markErr != nil {
				return markErr
			}
			return tasks.Terminal("send_rejected", err)
		}
		if recErr := idempotency.RecordTransientFailure(ctx, s.pool, propertyID, outboxEventID, sanitized); recErr != nil {
			return recErr
		}
		return fmt.Errorf("whatsapp: send outbox event %d: %s", outboxEventID, sanitized)
	}

	if err := idempotency.MarkSent(ctx, s.pool, propertyID, outboxEventID); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("property_id", propertyID).
		Int64("outbox_event_id", outboxEventID).
		Str("event_type", ev.EventType).
		Str("contact", logging.RedactContact(contactHash)).
		Msg("outbound message sent")
	return nil
}

var errNoConversation = errors.New("no_conversation")

// resolveContact maps an outbox event back to (channel, contact_hash). The
// payload may carry conversation_id directly; hold-anchored events resolve
// through the hold row.
func (s *Sender) resolveContact(ctx context.Context, ev *idempotency.OutboxEvent) (string, string, error) {
	if convID, ok := ev.Payload["conversation_id"].(string); ok && convID != "" {
		var channel, hash string
		err := s.pool.QueryRow(ctx, `
			SELECT channel, contact_hash FROM conversations
			WHERE property_id = $1 AND id = $2`,
			ev.PropertyID, convID).Scan(&channel, &hash)
		if store.IsNoRows(err) {
			return "", "", errNoConversation
		}
		if err != nil {
			return "", "", fmt.Errorf("whatsapp: load conversation: %w", err)
		}
		return channel, hash, nil
	}

	holdID := ""
	if ev.AggregateType == "hold" {
		holdID = ev.AggregateID
	} else if h, ok := ev.Payload["hold_id"].(string); ok {
		holdID = h
	}
	if holdID == "" {
		return "", "", errNoConversation
	}
	var channel, hash string
	err := s.pool.QueryRow(ctx, `
		SELECT c.channel, c.contact_hash
		FROM holds h
		JOIN conversations c ON c.id = h.conversation_id
		WHERE h.property_id = $1 AND h.id = $2`,
		ev.PropertyID, holdID).Scan(&channel, &hash)
	if store.IsNoRows(err) {
		return "", "", errNoConversation
	}
	if err != nil {
		return "", "", fmt.Errorf("whatsapp: resolve hold conversation: %w", err)
	}
	return channel, hash, nil
}

// RenderMessage produces the guest-facing text for one outbox event. Outbox
// payloads carry no PII so templates work from ids, dates and amounts only.
func RenderMessage(ev *idempotency.OutboxEvent) string {
	switch ev.EventType {
	case idempotency.EventQuoteReady:
		if available, ok := ev.Payload["available"].(bool); ok && !available {
			return fmt.Sprintf("We have no availability for %s to %s. Try different dates or contact our staff.",
				payloadString(ev, "checkin"), payloadString(ev, "checkout"))
		}
		return fmt.Sprintf("We found availability for %s to %s at %s. Reply to receive your payment link.",
			payloadString(ev, "checkin"), payloadString(ev, "checkout"),
			formatAmount(ev))
	case idempotency.EventCheckoutLink, idempotency.EventHoldCreated:
		return fmt.Sprintf("Your reservation for %s to %s is held at %s. Complete payment here to confirm: %s",
			payloadString(ev, "checkin"), payloadString(ev, "checkout"),
			formatAmount(ev), payloadString(ev, "checkout_url"))
	case idempotency.EventHoldExpired:
		return "Your reservation hold has expired. Send us a message if you would like a new quote."
	case idempotency.EventHoldCancelled:
		return "Your pending reservation was cancelled. Send us a message if you would like to book again."
	case idempotency.EventReservationConfirmed:
		return fmt.Sprintf("Payment received. Your reservation from %s to %s is confirmed. See you soon!",
			payloadString(ev, "checkin"), payloadString(ev, "checkout"))
	case idempotency.EventReservationCancelled:
		return "Your reservation has been cancelled. Contact us if this was unexpected."
	case idempotency.EventPaymentLate:
		return "We received your payment, but the reservation hold had already expired. Our staff will contact you shortly to resolve it."
	default:
		return "You have an update on your reservation. Contact us for details."
	}
}

func payloadString(ev *idempotency.OutboxEvent, key string) string {
	if s, ok := ev.Payload[key].(string); ok {
		return s
	}
	return ""
}

// formatAmount renders total_cents + currency, tolerating the float64 that
// JSON decoding produces.
func formatAmount(ev *idempotency.OutboxEvent) string {
	var cents int64
	switch v := ev.Payload["total_cents"].(type) {
	case float64:
		cents = int64(v)
	case int64:
		cents = v
	case int:
		cents = int64(v)
	}
	currency, _ := ev.Payload["currency"].(string)
	if currency == "" {
		currency = "BRL"
	}
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), cents/100, cents%100)
}
