package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactHash_Deterministic(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	a := ContactHash(secret, "p1", "whatsapp", "+5511999990000")
	b := ContactHash(secret, "p1", "whatsapp", "+5511999990000")

	assert.Equal(t, a, b)
	assert.Len(t, a, ContactHashLen)
}

func TestContactHash_ScopedByTenantAndChannel(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	base := ContactHash(secret, "p1", "whatsapp", "+5511999990000")

	tests := []struct {
		name     string
		property string
		channel  string
		sender   string
	}{
		{"different property", "p2", "whatsapp", "+5511999990000"},
		{"different channel", "p1", "sms", "+5511999990000"},
		{"different sender", "p1", "whatsapp", "+5511999990001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContactHash(secret, tt.property, tt.channel, tt.sender)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestContactHash_SecretDependent(t *testing.T) {
	a := ContactHash([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), "p1", "whatsapp", "+5511999990000")
	b := ContactHash([]byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), "p1", "whatsapp", "+5511999990000")
	assert.NotEqual(t, a, b)
}

func TestContactHash_URLSafe(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	h := ContactHash(secret, "p1", "whatsapp", "+5511999990000")
	assert.NotContains(t, h, "+")
	assert.NotContains(t, h, "/")
	assert.NotContains(t, h, "=")
}

func TestVault_SealOpenRoundTrip(t *testing.T) {
	v, err := NewVault(make([]byte, 32), 24*time.Hour)
	require.NoError(t, err)

	blob, err := v.Seal("+5511999990000")
	require.NoError(t, err)

	got, err := v.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", got)
}

func TestVault_FreshNoncePerSeal(t *testing.T) {
	v, err := NewVault(make([]byte, 32), 24*time.Hour)
	require.NoError(t, err)

	a, err := v.Seal("+5511999990000")
	require.NoError(t, err)
	b, err := v.Seal("+5511999990000")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVault_KeyMismatchFailsAuthentication(t *testing.T) {
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	keyB[0] = 1

	va, err := NewVault(keyA, 24*time.Hour)
	require.NoError(t, err)
	vb, err := NewVault(keyB, 24*time.Hour)
	require.NoError(t, err)

	blob, err := va.Seal("+5511999990000")
	require.NoError(t, err)

	_, err = vb.Open(blob)
	assert.Error(t, err)
}

func TestVault_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewVault(make([]byte, 16), 24*time.Hour)
	assert.Error(t, err)
}

func TestVault_RejectsTruncatedBlob(t *testing.T) {
	v, err := NewVault(make([]byte, 32), 24*time.Hour)
	require.NoError(t, err)

	_, err = v.Open([]byte{1, 2, 3})
	assert.Error(t, err)
}
