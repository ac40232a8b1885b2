package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
	"github.com/marcioluisms/hotelly2-sub000/internal/intent"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/pricing"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
	"github.com/marcioluisms/hotelly2-sub000/internal/whatsapp"
)

// routeQuoteRequest prices every sellable room type for the requested stay,
// persists the resulting options, and queues a quote.ready reply. Missing
// slots get no reply; the conversation context shows staff what was
// understood.
func (wk *Worker) routeQuoteRequest(ctx context.Context, payload *whatsapp.TaskPayload, convID string, c *intent.Classification) error {
	if c.Entities.Checkin == "" || c.Entities.Checkout == "" {
		zerolog.Ctx(ctx).Info().Str("conversation_id", convID).Msg("quote request without dates; awaiting slots")
		return nil
	}
	checkin, err := time.Parse("2006-01-02", c.Entities.Checkin)
	if err != nil {
		return tasks.Terminal("bad_slot_date", err)
	}
	checkout, err := time.Parse("2006-01-02", c.Entities.Checkout)
	if err != nil {
		return tasks.Terminal("bad_slot_date", err)
	}
	adults := c.Entities.AdultCount
	if adults == 0 {
		adults = 2
	}

	rows, err := wk.Pool.Query(ctx, `
		SELECT id FROM room_types
		WHERE property_id = $1 AND deleted_at IS NULL
		ORDER BY id`,
		payload.PropertyID)
	if err != nil {
		return fmt.Errorf("httpapi: list room types: %w", err)
	}
	defer rows.Close()
	var roomTypeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("httpapi: scan room type: %w", err)
		}
		roomTypeIDs = append(roomTypeIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	type option struct {
		roomTypeID string
		quote      pricing.Quote
	}
	var options []option
	for _, rtID := range roomTypeIDs {
		q, err := pricing.Compute(ctx, wk.Pool, pricing.Request{
			PropertyID:   payload.PropertyID,
			RoomTypeID:   rtID,
			Checkin:      checkin,
			Checkout:     checkout,
			AdultCount:   adults,
			ChildrenAges: c.Entities.ChildrenAges,
		})
		if err != nil {
			return err
		}
		if q.OK {
			options = append(options, option{roomTypeID: rtID, quote: q})
		}
	}

	if len(options) == 0 {
		eventID, err := idempotency.Emit(ctx, wk.Pool, payload.PropertyID, idempotency.EventQuoteReady,
			"conversation", convID, map[string]any{
				"conversation_id": convID,
				"checkin":         c.Entities.Checkin,
				"checkout":        c.Entities.Checkout,
				"available":       false,
			})
		if err != nil {
			return err
		}
		return wk.enqueueSendResponse(ctx, payload.PropertyID, eventID)
	}

	best := options[0]
	for _, opt := range options {
		if opt.quote.TotalCents < best.quote.TotalCents {
			best = opt
		}
	}
	for _, opt := range options {
		_, err := wk.Pool.Exec(ctx, `
			INSERT INTO quote_options (id, property_id, conversation_id, room_type_id, checkin, checkout,
			                           adult_count, children_ages, total_cents, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			"qop_"+uuid.NewString(), payload.PropertyID, convID, opt.roomTypeID, checkin, checkout,
			adults, agesParam(c.Entities.ChildrenAges), opt.quote.TotalCents, opt.quote.Currency)
		if err != nil {
			return fmt.Errorf("httpapi: insert quote option: %w", err)
		}
	}

	eventID, err := idempotency.Emit(ctx, wk.Pool, payload.PropertyID, idempotency.EventQuoteReady,
		"conversation", convID, map[string]any{
			"conversation_id": convID,
			"room_type_id":    best.roomTypeID,
			"checkin":         c.Entities.Checkin,
			"checkout":        c.Entities.Checkout,
			"adult_count":     adults,
			"total_cents":     best.quote.TotalCents,
			"currency":        best.quote.Currency,
			"option_count":    len(options),
		})
	if err != nil {
		return err
	}
	return wk.enqueueSendResponse(ctx, payload.PropertyID, eventID)
}

// routeCheckoutRequest turns the guest's latest quote option into a hold
// plus a payment link. The hold carries the message id as idempotency key so
// a redelivered task lands on the same hold.
func (wk *Worker) routeCheckoutRequest(ctx context.Context, payload *whatsapp.TaskPayload, convID string) error {
	var (
		roomTypeID string
		checkin    time.Time
		checkout   time.Time
		adultCount int
		agesRaw    []byte
		totalCents int64
		currency   string
	)
	err := wk.Pool.QueryRow(ctx, `
		SELECT room_type_id, checkin, checkout, adult_count, children_ages, total_cents, currency
		FROM quote_options
		WHERE property_id = $1 AND conversation_id = $2
		ORDER BY created_at DESC LIMIT 1`,
		payload.PropertyID, convID).Scan(&roomTypeID, &checkin, &checkout, &adultCount, &agesRaw, &totalCents, &currency)
	if store.IsNoRows(err) {
		zerolog.Ctx(ctx).Info().Str("conversation_id", convID).Msg("checkout request without a quote; ignoring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("httpapi: load quote option: %w", err)
	}
	var ages []int
	if err := json.Unmarshal(agesRaw, &ages); err != nil {
		return fmt.Errorf("httpapi: decode quote ages: %w", err)
	}

	key := "wa:" + payload.MessageID
	hold, err := wk.Inventory.CreateHold(ctx, inventory.CreateHoldParams{
		PropertyID:     payload.PropertyID,
		ConversationID: &convID,
		RoomTypeID:     roomTypeID,
		Checkin:        checkin,
		Checkout:       checkout,
		AdultCount:     adultCount,
		ChildrenAges:   ages,
		TotalCents:     totalCents,
		Currency:       currency,
		ExpiresAt:      time.Now().Add(wk.HoldTTL),
		IdempotencyKey: &key,
	})
	if err != nil {
		if errors.Is(err, inventory.ErrNoInventory) {
			eventID, emitErr := idempotency.Emit(ctx, wk.Pool, payload.PropertyID, idempotency.EventQuoteReady,
				"conversation", convID, map[string]any{
					"conversation_id": convID,
					"checkin":         checkin.Format("2006-01-02"),
					"checkout":        checkout.Format("2006-01-02"),
					"available":       false,
				})
			if emitErr != nil {
				return emitErr
			}
			return wk.enqueueSendResponse(ctx, payload.PropertyID, eventID)
		}
		return err
	}

	expireBody := expireHoldTaskBody{PropertyID: hold.PropertyID, HoldID: hold.ID}
	if err := wk.Dispatcher.Enqueue(ctx, tasks.ExpireHoldTaskID(hold.ID), tasks.PathExpireHold, expireBody, hold.ExpiresAt); err != nil {
		return err
	}

	session, err := wk.Payments.CreateCheckoutSession(ctx, payments.CheckoutParams{
		PropertyID:     hold.PropertyID,
		HoldID:         hold.ID,
		ConversationID: convID,
		AmountCents:    hold.TotalCents,
		Currency:       hold.Currency,
		Description:    fmt.Sprintf("Stay %s to %s", hold.Checkin.Format("2006-01-02"), hold.Checkout.Format("2006-01-02")),
		SuccessURL:     wk.CheckoutSuccessURL,
		CancelURL:      wk.CheckoutCancelURL,
		ExpiresAt:      hold.ExpiresAt,
		IdempotencyKey: "checkout:" + hold.ID,
	})
	if err != nil {
		return err
	}
	if err := payments.RecordCreatedSession(ctx, wk.Pool, hold.PropertyID, hold.ID, "stripe", session.ID, hold.TotalCents, hold.Currency); err != nil {
		return err
	}

	eventID, err := idempotency.Emit(ctx, wk.Pool, hold.PropertyID, idempotency.EventCheckoutLink,
		"hold", hold.ID, map[string]any{
			"conversation_id": convID,
			"hold_id":         hold.ID,
			"checkin":         hold.Checkin.Format("2006-01-02"),
			"checkout":        hold.Checkout.Format("2006-01-02"),
			"total_cents":     hold.TotalCents,
			"currency":        hold.Currency,
			"checkout_url":    session.URL,
			"expires_at":      hold.ExpiresAt.UTC().Format(time.RFC3339),
		})
	if err != nil {
		return err
	}
	return wk.enqueueSendResponse(ctx, hold.PropertyID, eventID)
}

// routeCancelRequest cancels the conversation's newest active hold.
// Confirmed reservations are staff territory; guests asking to cancel one
// show up on the dashboard through the conversation.
func (wk *Worker) routeCancelRequest(ctx context.Context, payload *whatsapp.TaskPayload, convID string) error {
	var holdID string
	err := wk.Pool.QueryRow(ctx, `
		SELECT id FROM holds
		WHERE property_id = $1 AND conversation_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		payload.PropertyID, convID, inventory.HoldActive).Scan(&holdID)
	if store.IsNoRows(err) {
		zerolog.Ctx(ctx).Info().Str("conversation_id", convID).Msg("cancel request without an active hold")
		return nil
	}
	if err != nil {
		return fmt.Errorf("httpapi: find active hold: %w", err)
	}

	outcome, err := wk.Inventory.CancelHold(ctx, "wa-cancel:"+payload.MessageID, holdID, nil)
	if err != nil {
		return err
	}
	if outcome == inventory.Released {
		wk.enqueueLatestEventResponse(ctx, payload.PropertyID, "hold", holdID, idempotency.EventHoldCancelled)
	}
	return nil
}

func (wk *Worker) enqueueSendResponse(ctx context.Context, propertyID string, outboxEventID int64) error {
	payload := sendResponseTaskBody{PropertyID: propertyID, OutboxEventID: outboxEventID}
	return wk.Dispatcher.Enqueue(ctx, tasks.SendResponseTaskID(outboxEventID), tasks.PathSendResponse, payload, time.Time{})
}

func agesParam(ages []int) []byte {
	if ages == nil {
		ages = []int{}
	}
	raw, _ := json.Marshal(ages)
	return raw
}
