package memo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/internal/keys"
)

func testKeyPair(t *testing.T, account string) keys.KeyPair {
	t.Helper()
	seed, err := keys.NewSeed()
	require.NoError(t, err)
	return keys.DeriveKeyPair(account, keys.RoleMemo, seed, "STM")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sender := testKeyPair(t, "sender")
	recipient := testKeyPair(t, "recipient")

	message := "account:newuser1 password:P5JRandomSeedValue"
	envelope, err := Encode(sender.PrivateWIF, recipient.PublicKey, message, "STM")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(envelope, EnvelopePrefix))

	// Either endpoint can decode with its own private key.
	got, err := Decode(recipient.PrivateWIF, envelope, "STM")
	require.NoError(t, err)
	assert.Equal(t, message, got)

	got, err = Decode(sender.PrivateWIF, envelope, "STM")
	require.NoError(t, err)
	assert.Equal(t, message, got)
}

func TestEncodeNeverLeaksPlaintext(t *testing.T) {
	message := "account:newuser1 password:P5JSecretSeedMaterial"
	for i := 0; i < 20; i++ {
		sender := testKeyPair(t, "sender")
		recipient := testKeyPair(t, "recipient")

		envelope, err := Encode(sender.PrivateWIF, recipient.PublicKey, message, "STM")
		require.NoError(t, err)
		assert.NotContains(t, envelope, "password")
		assert.NotContains(t, envelope, "P5JSecretSeedMaterial")
		assert.NotContains(t, envelope, "newuser1")
	}
}

func TestEnvelopesDifferPerEncoding(t *testing.T) {
	sender := testKeyPair(t, "sender")
	recipient := testKeyPair(t, "recipient")

	a, err := Encode(sender.PrivateWIF, recipient.PublicKey, "same message", "STM")
	require.NoError(t, err)
	b, err := Encode(sender.PrivateWIF, recipient.PublicKey, "same message", "STM")
	require.NoError(t, err)

	// The random nonce makes every envelope unique.
	assert.NotEqual(t, a, b)
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	sender := testKeyPair(t, "sender")
	recipient := testKeyPair(t, "recipient")
	stranger := testKeyPair(t, "stranger")

	envelope, err := Encode(sender.PrivateWIF, recipient.PublicKey, "hello", "STM")
	require.NoError(t, err)

	_, err = Decode(stranger.PrivateWIF, envelope, "STM")
	assert.Error(t, err)
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	recipient := testKeyPair(t, "recipient")

	tests := []struct {
		name     string
		envelope string
	}{
		{"missing prefix", "abc"},
		{"not base58", "#0OIl"},
		{"truncated payload", "#2n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(recipient.PrivateWIF, tt.envelope, "STM")
			assert.Error(t, err)
		})
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	sender := testKeyPair(t, "sender")
	recipient := testKeyPair(t, "recipient")

	privFrom, err := keys.DecodeWIF(sender.PrivateWIF)
	require.NoError(t, err)
	pubTo, err := keys.DecodePublicKey(recipient.PublicKey, "STM")
	require.NoError(t, err)

	encKey := encryptionKey(privFrom, pubTo, 12345)
	other := encryptionKey(privFrom, pubTo, 12346)
	assert.NotEqual(t, checksum(encKey), checksum(other))
}
