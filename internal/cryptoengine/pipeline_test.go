package cryptoengine

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sansi-28/byteguard/internal/wire"
)

func TestEncryptAndWrapRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	for _, plaintext := range [][]byte{
		[]byte(""),
		[]byte("Hi\n"),
		randomBytes(t, 1024*1024),
	} {
		result, err := EncryptAndWrap(pub, plaintext)
		require.NoError(t, err)
		require.Len(t, result.Blob, wire.IVSize+len(plaintext)+wire.TagSize)

		out, err := DecryptAndUnwrap(priv, result.OwnerWrap, result.Blob)
		require.NoError(t, err)
		require.Equal(t, plaintext, out)
	}
}

func TestEmptyPlaintextBlobLength(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := EncryptAndWrap(pub, nil)
	require.NoError(t, err)
	require.Len(t, result.Blob, wire.IVSize+wire.TagSize)
}

func TestCrossIdentityRoundTrip(t *testing.T) {
	ownerPub, ownerPriv, err := GenerateKeypair()
	require.NoError(t, err)
	recipientPub, recipientPriv, err := GenerateKeypair()
	require.NoError(t, err)

	plaintext := randomBytes(t, 64*1024)
	result, err := EncryptAndWrap(ownerPub, plaintext)
	require.NoError(t, err)

	secret, err := RecoverDEK(ownerPriv, result.OwnerWrap)
	require.NoError(t, err)
	defer secret.Wipe()

	sharePayload, err := ShareWrap(secret, recipientPub)
	require.NoError(t, err)

	out, err := DecryptAndUnwrap(recipientPriv, sharePayload, result.Blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestWrappedPayloadUniqueness(t *testing.T) {
	ownerPub, ownerPriv, err := GenerateKeypair()
	require.NoError(t, err)
	recipientPub, _, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := EncryptAndWrap(ownerPub, []byte("shared file"))
	require.NoError(t, err)

	secret, err := RecoverDEK(ownerPriv, result.OwnerWrap)
	require.NoError(t, err)
	defer secret.Wipe()

	first, err := ShareWrap(secret, recipientPub)
	require.NoError(t, err)
	second, err := ShareWrap(secret, recipientPub)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestTagMandatory(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := EncryptAndWrap(pub, []byte("tamper me"))
	require.NoError(t, err)

	tampered := append([]byte(nil), result.Blob...)
	tampered[len(tampered)-1] ^= 0x01

	out, err := DecryptAndUnwrap(priv, result.OwnerWrap, tampered)
	require.ErrorIs(t, err, ErrTampered)
	require.Nil(t, out)
}

func TestFingerprintMandatory(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := EncryptAndWrap(pub, []byte("fingerprint me"))
	require.NoError(t, err)

	tampered := append([]byte(nil), result.Blob...)
	tampered[len(tampered)-1] ^= 0x01

	err = VerifyFingerprint(tampered, result.Fingerprint)
	require.ErrorIs(t, err, ErrTampered)
}

func TestPlaintextSizeLimit(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	oversized := make([]byte, MaxPlaintextSize+1)
	_, err = EncryptAndWrap(pub, oversized)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}
