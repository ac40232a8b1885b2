package httpapi

import (
	"bytes"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/idempotency"
)

// maxBodyBytes bounds every request body we read.
const maxBodyBytes = 1 << 20

// responseRecorder captures status and body so a successful mutation can be
// cached under its idempotency key.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyKeys replays cached responses for repeated client-supplied
// Idempotency-Key headers on mutating endpoints. Only 2xx responses are
// cached: a failed mutation may be retried with the same key.
func IdempotencyKeys(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodDelete) {
				next.ServeHTTP(w, r)
				return
			}
			endpoint := r.Method + " " + r.URL.Path
			cached, err := idempotency.LookupKey(r.Context(), pool, key, endpoint)
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("idempotency lookup failed")
				writeError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}
			if cached != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(cached.Code)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				propertyID := r.URL.Query().Get("property_id")
				if err := idempotency.StoreKey(r.Context(), pool, key, endpoint, propertyID, rec.status, rec.body.Bytes()); err != nil {
					zerolog.Ctx(r.Context()).Error().Err(err).Msg("idempotency store failed")
				}
			}
		})
	}
}
