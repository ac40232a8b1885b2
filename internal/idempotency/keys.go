package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// KeyTTL bounds how long a cached response is replayed before the key ages
// out of the table (retention also deletes past expires_at).
const KeyTTL = 30 * 24 * time.Hour

// CachedResponse is a stored endpoint response replayed verbatim for a
// repeated Idempotency-Key.
type CachedResponse struct {
	Code int
	Body []byte
}

// LookupKey returns the cached response for (key, endpoint), or nil when the
// key has not been seen.
func LookupKey(ctx context.Context, q store.Querier, key, endpoint string) (*CachedResponse, error) {
	var resp CachedResponse
	err := q.QueryRow(ctx, `
		SELECT response_code, response_body FROM idempotency_keys
		WHERE idempotency_key = $1 AND endpoint = $2 AND expires_at > now()`,
		key, endpoint).Scan(&resp.Code, &resp.Body)
	if store.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: lookup key: %w", err)
	}
	return &resp, nil
}

// StoreKey records the response for (key, endpoint) so replays return a
// byte-identical body. Called inside the endpoint's mutating transaction so
// the cache and the effect commit together. A concurrent duplicate insert
// loses silently; both requests produced the same effect.
func StoreKey(ctx context.Context, q store.Querier, key, endpoint, propertyID string, code int, body []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, endpoint, property_id, response_code, response_body, expires_at)
		VALUES ($1, $2, $3, $4, $5, now() + make_interval(secs => $6))
		ON CONFLICT (idempotency_key, endpoint) DO NOTHING`,
		key, endpoint, propertyID, code, body, KeyTTL.Seconds())
	if err != nil {
		return fmt.Errorf("idempotency: store key: %w", err)
	}
	return nil
}
