// Package logging configures the process logger and the correlation-id
// plumbing shared by ingress and worker.
//
// All log output is structured (zerolog). Handlers pull the request-scoped
// logger out of the context with zerolog.Ctx; correlation ids ride along in
// both the context and the X-Correlation-Id response header. Nothing in this
// package, and nothing passed to it, may contain decrypted contact data.
package logging

import (
	"context"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderCorrelationID is propagated end-to-end: dashboard -> ingress ->
// queue -> worker.
const HeaderCorrelationID = "X-Correlation-Id"

// HeaderEventSource marks requests that originated from the task queue.
const HeaderEventSource = "X-Event-Source"

type ctxKey int

const correlationKey ctxKey = 0

// New builds the process logger. Dev gets human-readable console output,
// everything else newline-delimited JSON.
func New(service, env string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().
		Timestamp().
		Str("service", service).
		Logger()
}

// WithCorrelationID returns a context carrying the id, for call paths that
// do not start at an HTTP request (cron, startup).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the id from the context, or "" when absent.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey).(string); ok {
		return v
	}
	return ""
}

// Middleware attaches a request-scoped logger and correlation id to the
// context, generating an id when the caller supplied none, and echoes it on
// the response.
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := r.Header.Get(HeaderCorrelationID)
			if cid == "" {
				cid = uuid.NewString()
			}
			logger := base.With().
				Str("correlation_id", cid).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			if src := r.Header.Get(HeaderEventSource); src != "" {
				logger = logger.With().Str("event_source", src).Logger()
			}

			ctx := WithCorrelationID(r.Context(), cid)
			ctx = logger.WithContext(ctx)
			w.Header().Set(HeaderCorrelationID, cid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RedactContact masks a routable contact identifier for log output, keeping
// only enough shape to recognize the channel ("+55...7890" style). Full
// values must never be logged; this is the only sanctioned representation.
func RedactContact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-6) + s[len(s)-4:]
}

// phoneLike matches digit runs long enough to be phone numbers.
var phoneLike = regexp.MustCompile(`[0-9]{7,}`)

// emailLike matches anything shaped like an email address.
var emailLike = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)

// SanitizeError strips anything that looks like a routable identifier from a
// provider error string before it is persisted (outbox_deliveries.last_error)
// or logged.
func SanitizeError(msg string) string {
	msg = emailLike.ReplaceAllString(msg, "[email]")
	msg = phoneLike.ReplaceAllString(msg, "[number]")
	return msg
}
