package tasks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
)

// Verifier checks the identity token the queue attaches to task requests.
// The remote keyset refetches JWKS on verification failure before giving up,
// so a key rotation does not strand the queue.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
	audience string
}

// NewVerifier builds a task-token verifier pinned to the worker's canonical
// URL as audience.
func NewVerifier(ctx context.Context, issuerURL, audience string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("tasks: oidc provider: %w", err)
	}
	return &Verifier{
		// Audience is asserted manually below for the exact-match guarantee.
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
		audience: audience,
	}, nil
}

// VerifyRequest validates the bearer token and asserts the audience equals
// the worker URL exactly. An audience mismatch is logged loudly: it means a
// queue or environment misconfiguration, not a guessable client error.
func (v *Verifier) VerifyRequest(r *http.Request) error {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return fmt.Errorf("tasks: missing bearer token")
	}
	token, err := v.verifier.Verify(r.Context(), raw)
	if err != nil {
		return fmt.Errorf("tasks: token verify: %w", err)
	}
	for _, aud := range token.Audience {
		if aud == v.audience {
			return nil
		}
	}
	zerolog.Ctx(r.Context()).Error().
		Strs("token_audience", token.Audience).
		Str("expected_audience", v.audience).
		Msg("task token audience mismatch")
	return fmt.Errorf("tasks: audience mismatch")
}

// Middleware rejects unauthenticated task invocations with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.VerifyRequest(r); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rejected task invocation")
			http.Error(w, `{"code":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
