// Package whatsapp holds the messaging provider adapters (Meta Cloud API and
// Evolution API) and the outbound send path with its delivery guard. The
// provider capability set is narrow: verify-signature and send-message.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
)

// Channel names double as provider keys on conversations.channel.
const (
	ChannelMeta      = "meta"
	ChannelEvolution = "evolution"
)

// ErrBadSignature rejects webhooks that fail signature verification.
var ErrBadSignature = errors.New("bad_webhook_signature")

// ErrNoSecret means the property has no secret configured for the provider.
// Ingress fail-closes with a 200 + warn log to avoid provider retry storms.
var ErrNoSecret = errors.New("webhook_secret_missing")

// SendError is a provider send failure. Permanent failures (4xx except 408
// and 429) must not be retried.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("whatsapp send failed: status %d", e.StatusCode)
}

func (e *SendError) Permanent() bool {
	if e.StatusCode == 408 || e.StatusCode == 429 {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanentSendError reports whether err is a non-retryable provider
// rejection.
func IsPermanentSendError(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent()
}

// Provider is one messaging backend.
type Provider interface {
	// VerifySignature validates the webhook payload against the request
	// signature material. The routable recipient id never appears in
	// errors.
	VerifySignature(payload []byte, signature string) error
	// SendText delivers a text message to the decrypted routable id.
	SendText(ctx context.Context, to, text string) error
}
