// Package tasks owns the contract between ingress and worker: deterministic
// task naming, OIDC-authenticated dispatch through the managed queue, token
// verification on the worker side, and the retry classification every task
// endpoint answers with.
package tasks

import (
	"fmt"
	"regexp"
)

// Worker task paths.
const (
	PathStripeHandleEvent = "/tasks/stripe/handle-event"
	PathWhatsAppInbound   = "/tasks/whatsapp/inbound"
	PathExpireHold        = "/tasks/holds/expire"
	PathSendResponse      = "/tasks/outbox/send-response"
	PathRetention         = "/tasks/retention/run"
)

// Cloud task names must match [A-Za-z0-9_-]; everything else is collapsed to
// underscore so a provider event id can never produce an invalid name.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func safe(s string) string {
	return unsafeNameChars.ReplaceAllString(s, "_")
}

// Deterministic task ids. One logical event always maps to the same id, so
// a double enqueue collapses into the queue's "already exists" success.
func StripeTaskID(eventID string) string {
	return safe(fmt.Sprintf("stripe:%s", eventID))
}

func WhatsAppTaskID(provider, messageID string) string {
	return safe(fmt.Sprintf("wa:%s:%s", provider, messageID))
}

func ExpireHoldTaskID(holdID string) string {
	return safe(fmt.Sprintf("expire-hold:%s", holdID))
}

func SendResponseTaskID(outboxEventID int64) string {
	return safe(fmt.Sprintf("send-response:%d", outboxEventID))
}

func RetentionTaskID(day string) string {
	return safe(fmt.Sprintf("retention:%s", day))
}
