package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/intent"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/retention"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
	"github.com/marcioluisms/hotelly2-sub000/internal/whatsapp"
)

// Worker hosts the task endpoints. Every handler ends in tasks.Respond so
// the queue sees the 500-retry / 200-terminal contract uniformly.
type Worker struct {
	Pool       *pgxpool.Pool
	Inventory  *inventory.Engine
	Payments   payments.Provider
	Sender     *whatsapp.Sender
	Dispatcher tasks.Dispatcher
	Classifier intent.Classifier

	HoldTTL            time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

func (wk *Worker) Routes(r chi.Router) {
	r.Post(tasks.PathStripeHandleEvent, wk.handleStripeEvent)
	r.Post(tasks.PathWhatsAppInbound, wk.handleWhatsAppInbound)
	r.Post(tasks.PathExpireHold, wk.handleExpireHold)
	r.Post(tasks.PathSendResponse, wk.handleSendResponse)
	r.Post(tasks.PathRetention, wk.handleRetention)
}

func decodeTaskBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tasks.Terminal("bad_task_body", err)
	}
	return nil
}

func (wk *Worker) handleStripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks.Respond(ctx, w, func() error {
		var body stripeTaskBody
		if err := decodeTaskBody(r, &body); err != nil {
			return err
		}
		if body.EventID == "" {
			return tasks.Terminal("bad_task_body", errors.New("event_id required"))
		}

		ev, err := wk.Payments.RetrieveEvent(ctx, body.EventID)
		if err != nil {
			if errors.Is(err, payments.ErrEventIncomplete) {
				return tasks.Terminal("event_missing_metadata", err)
			}
			return err
		}
		if ev.Type != "checkout.session.completed" {
			zerolog.Ctx(ctx).Debug().Str("event_type", ev.Type).Msg("uninteresting stripe event")
			return nil
		}

		res, err := reservation.ConvertHold(ctx, wk.Pool, reservation.ConvertParams{
			PropertyID:       ev.PropertyID,
			EventID:          ev.ID,
			Provider:         "stripe",
			ProviderObjectID: ev.ProviderObjectID,
			HoldID:           ev.HoldID,
			AmountCents:      ev.AmountCents,
			Currency:         ev.Currency,
			ChangedBy:        "system:stripe",
		})
		if err != nil {
			if errors.Is(err, inventory.ErrHoldNotFound) {
				return tasks.Terminal("hold_not_found", err)
			}
			return err
		}
		if res.Duplicate {
			return tasks.ErrAlreadyDone
		}
		if res.ConfirmedEventID != 0 {
			// The sender terminates gracefully when the conversation or
			// vault entry is gone.
			taskID := tasks.SendResponseTaskID(res.ConfirmedEventID)
			payload := sendResponseTaskBody{PropertyID: ev.PropertyID, OutboxEventID: res.ConfirmedEventID}
			if err := wk.Dispatcher.Enqueue(ctx, taskID, tasks.PathSendResponse, payload, time.Time{}); err != nil {
				return err
			}
		}
		return nil
	}())
}

// expireHoldTaskBody is scheduled at hold creation for expires_at.
type expireHoldTaskBody struct {
	PropertyID string `json:"property_id"`
	HoldID     string `json:"hold_id"`
}

func (wk *Worker) handleExpireHold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks.Respond(ctx, w, func() error {
		var body expireHoldTaskBody
		if err := decodeTaskBody(r, &body); err != nil {
			return err
		}
		outcome, err := wk.Inventory.ExpireHold(ctx, tasks.ExpireHoldTaskID(body.HoldID), body.HoldID)
		if err != nil {
			if errors.Is(err, inventory.ErrHoldNotFound) {
				return tasks.Terminal("hold_not_found", err)
			}
			return err
		}
		if outcome == inventory.ReleaseNoop {
			return tasks.ErrAlreadyDone
		}
		wk.enqueueLatestEventResponse(ctx, body.PropertyID, "hold", body.HoldID, idempotency.EventHoldExpired)
		return nil
	}())
}

// enqueueLatestEventResponse schedules delivery of the newest outbox event
// of one type for an aggregate. Used where the emitting transaction does not
// surface the event id. Failures only log: delivery is best effort on top of
// an already committed transition.
func (wk *Worker) enqueueLatestEventResponse(ctx context.Context, propertyID, aggregateType, aggregateID, eventType string) {
	var eventID int64
	err := wk.Pool.QueryRow(ctx, `
		SELECT id FROM outbox_events
		WHERE property_id = $1 AND aggregate_type = $2 AND aggregate_id = $3 AND event_type = $4
		ORDER BY id DESC LIMIT 1`,
		propertyID, aggregateType, aggregateID, eventType).Scan(&eventID)
	if err != nil {
		if !store.IsNoRows(err) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("outbox event lookup failed")
		}
		return
	}
	payload := sendResponseTaskBody{PropertyID: propertyID, OutboxEventID: eventID}
	if err := wk.Dispatcher.Enqueue(ctx, tasks.SendResponseTaskID(eventID), tasks.PathSendResponse, payload, time.Time{}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("outbox_event_id", eventID).Msg("send-response enqueue failed")
	}
}

type sendResponseTaskBody struct {
	PropertyID    string `json:"property_id"`
	OutboxEventID int64  `json:"outbox_event_id"`
}

func (wk *Worker) handleSendResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks.Respond(ctx, w, func() error {
		var body sendResponseTaskBody
		if err := decodeTaskBody(r, &body); err != nil {
			return err
		}
		return wk.Sender.SendOutboxEvent(ctx, body.PropertyID, body.OutboxEventID)
	}())
}

func (wk *Worker) handleRetention(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks.Respond(ctx, w, func() error {
		_, err := retention.Run(ctx, wk.Pool)
		return err
	}())
}

func (wk *Worker) handleWhatsAppInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks.Respond(ctx, w, func() error {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return tasks.Terminal("bad_task_body", err)
		}
		payload, err := whatsapp.DecodeTaskPayload(raw)
		if err != nil {
			return tasks.Terminal("bad_task_body", err)
		}

		fresh, err := idempotency.MarkProcessed(ctx, wk.Pool, payload.PropertyID,
			idempotency.SourceTasks, "wa:"+payload.Provider+":"+payload.MessageID)
		if err != nil {
			return err
		}
		if !fresh {
			return tasks.ErrAlreadyDone
		}

		convID, err := wk.upsertConversation(ctx, payload.PropertyID, payload.Provider, payload.ContactHash)
		if err != nil {
			return err
		}

		c := intent.Classify(ctx, wk.Classifier, payload.RedactedText)
		if err := wk.recordSlots(ctx, convID, c); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().
			Str("conversation_id", convID).
			Str("intent", c.Intent).
			Float64("confidence", c.Confidence).
			Msg("inbound message classified")

		switch c.Intent {
		case intent.IntentQuoteRequest:
			return wk.routeQuoteRequest(ctx, payload, convID, c)
		case intent.IntentCheckoutRequest:
			return wk.routeCheckoutRequest(ctx, payload, convID)
		case intent.IntentCancelRequest:
			return wk.routeCancelRequest(ctx, payload, convID)
		default:
			// human_handoff and unknown surface on the dashboard via the
			// conversation; no automated reply.
			return nil
		}
	}())
}

func (wk *Worker) upsertConversation(ctx context.Context, propertyID, channel, contactHash string) (string, error) {
	var id string
	err := wk.Pool.QueryRow(ctx, `
		INSERT INTO conversations (id, property_id, channel, contact_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (property_id, channel, contact_hash) DO UPDATE SET updated_at = now()
		RETURNING id`,
		"cnv_"+uuid.NewString(), propertyID, channel, contactHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("httpapi: upsert conversation: %w", err)
	}
	return id, nil
}

// recordSlots merges the normalized slot state into the conversation
// context. Ids, dates and counts only.
func (wk *Worker) recordSlots(ctx context.Context, convID string, c *intent.Classification) error {
	slots := map[string]any{"intent": c.Intent}
	if c.Entities.Checkin != "" {
		slots["checkin"] = c.Entities.Checkin
	}
	if c.Entities.Checkout != "" {
		slots["checkout"] = c.Entities.Checkout
	}
	if c.Entities.AdultCount > 0 {
		slots["adult_count"] = c.Entities.AdultCount
	}
	if len(c.Entities.ChildrenAges) > 0 {
		slots["children_ages"] = c.Entities.ChildrenAges
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("httpapi: marshal slots: %w", err)
	}
	_, err = wk.Pool.Exec(ctx, `
		UPDATE conversations SET context = context || $2, updated_at = now() WHERE id = $1`,
		convID, raw)
	if err != nil {
		return fmt.Errorf("httpapi: record slots: %w", err)
	}
	return nil
}
