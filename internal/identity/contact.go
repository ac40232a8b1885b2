// Package identity derives the PII-free contact identifier and owns the
// encrypted destination vault.
//
// The contact hash is the only representation of a guest identity that may
// cross process boundaries, enter logs, or land in domain tables. The
// routable identifier itself lives exclusively in the vault, encrypted, with
// a short TTL, and is decrypted only by the send-response path.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ContactHashLen is the fixed length of a contact hash.
const ContactHashLen = 32

// ContactHash derives the non-reversible contact identifier:
// base64url (no padding) of HMAC-SHA-256 over "{property_id}|{channel}|{sender_id}",
// truncated to 32 characters.
func ContactHash(secret []byte, propertyID, channel, senderID string) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%s|%s", propertyID, channel, senderID)
	sum := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return sum[:ContactHashLen]
}
