package identity

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// ErrContactRefNotFound means no non-expired vault entry exists for the
// contact. Outbound delivery terminates permanently on this; the guest
// silently re-engages.
var ErrContactRefNotFound = errors.New("contact_ref_not_found")

// Vault stores provider-routable identifiers encrypted with AES-256-GCM.
// Ingress writes on every inbound message; only the send-response handler
// reads. Entries expire after the configured TTL (24h by default).
type Vault struct {
	aead cipher.AEAD
	ttl  time.Duration
}

// NewVault builds a vault over a 32-byte key. The key must match
// byte-for-byte across ingress and worker in the same environment; a
// mismatch surfaces as an AES authentication failure on read.
func NewVault(key []byte, ttl time.Duration) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("identity: vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("identity: gcm: %w", err)
	}
	return &Vault{aead: aead, ttl: ttl}, nil
}

// seal encrypts the identifier with a fresh 96-bit nonce; the stored blob is
// nonce || ciphertext.
func (v *Vault) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (v *Vault) open(blob []byte) (string, error) {
	ns := v.aead.NonceSize()
	if len(blob) < ns {
		return "", errors.New("identity: ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("identity: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Put upserts the encrypted routable identifier for a contact, refreshing
// the TTL. Called by ingress only, on every verified inbound message.
func (v *Vault) Put(ctx context.Context, q store.Querier, propertyID, channel, contactHash, routableID string) error {
	blob, err := v.seal(routableID)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO contact_refs (property_id, channel, contact_hash, ciphertext, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now() + make_interval(secs => $5), now())
		ON CONFLICT (property_id, channel, contact_hash)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext,
		              expires_at = EXCLUDED.expires_at,
		              updated_at = now()`,
		propertyID, channel, contactHash, blob, v.ttl.Seconds())
	if err != nil {
		return fmt.Errorf("identity: vault put: %w", err)
	}
	return nil
}

// Get decrypts the routable identifier for a contact. Returns
// ErrContactRefNotFound when no row exists or the row has expired. The
// returned value must never be logged.
func (v *Vault) Get(ctx context.Context, q store.Querier, propertyID, channel, contactHash string) (string, error) {
	var blob []byte
	err := q.QueryRow(ctx, `
		SELECT ciphertext FROM contact_refs
		WHERE property_id = $1 AND channel = $2 AND contact_hash = $3
		  AND expires_at > now()`,
		propertyID, channel, contactHash).Scan(&blob)
	if store.IsNoRows(err) {
		return "", ErrContactRefNotFound
	}
	if err != nil {
		return "", fmt.Errorf("identity: vault get: %w", err)
	}
	return v.open(blob)
}

// Seal and Open are exported for tests and for the retention job's
// diagnostics; they operate on raw blobs without touching the store.
func (v *Vault) Seal(plaintext string) ([]byte, error) { return v.seal(plaintext) }
func (v *Vault) Open(blob []byte) (string, error)      { return v.open(blob) }
