package cryptoengine

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Sansi-28/byteguard/internal/wire"
)

// MaxPlaintextSize is the default transport bound: 100 MiB. Inputs larger
// than this are rejected before any key is drawn.
const MaxPlaintextSize = 100 * 1024 * 1024

// EncryptResult is everything the uploader needs to hand to the Blob Store:
// the on-disk blob, its fingerprint, and the owner-wrap payload that lets
// the owner later recover the DEK to re-share.
type EncryptResult struct {
	Blob        []byte
	Fingerprint string
	OwnerWrap   wire.KEMPayload
}

// EncryptAndWrap runs the uploader-side pipeline in full: draw DEK, draw
// IV, AES-256-GCM seal, fingerprint, owner-wrap via Kyber-512
// encapsulation against the owner's own public key. The DEK is zeroized
// before this function returns, on every path including error returns.
func EncryptAndWrap(ownerPublicKey wire.KyberPublicKey, plaintext []byte) (*EncryptResult, error) {
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: plaintext exceeds maximum size", ErrSizeMismatch)
	}

	var dekBytes wire.DEK
	if _, err := io.ReadFull(rand.Reader, dekBytes[:]); err != nil {
		return nil, fmt.Errorf("%w: dek draw failed: %v", ErrInternal, err)
	}
	secret := NewScopedSecret(dekBytes)
	defer secret.Wipe()

	blob, fingerprint, err := EncryptBlob(secret.Expose(), plaintext)
	if err != nil {
		return nil, err
	}

	ownerCt, ownerSS, err := Encapsulate(ownerPublicKey)
	if err != nil {
		return nil, err
	}
	wrapped := wire.Wrap(secret.Expose(), ownerSS)
	payload := wire.NewPayload(ownerCt, wrapped)

	return &EncryptResult{
		Blob:        blob,
		Fingerprint: fingerprint,
		OwnerWrap:   payload,
	}, nil
}

// RecoverDEK implements step 1 of share-wrap: unwrap the owner-wrap payload
// with the owner's own Kyber private key to recover the DEK for re-sharing.
// Returns a ScopedSecret; callers must defer Wipe.
func RecoverDEK(ownerPrivateKey wire.KyberPrivateKey, ownerWrap wire.KEMPayload) (*ScopedSecret, error) {
	ss, err := Decapsulate(ownerPrivateKey, ownerWrap.Ciphertext())
	if err != nil {
		return nil, err
	}
	dek := wire.Unwrap(ownerWrap.Wrapped(), ss)
	return NewScopedSecret(dek), nil
}

// ShareWrap runs a fresh Kyber-512 encapsulation against one recipient's
// public key, producing a recipient-specific payload. Called once per
// recipient in a direct share or group fan-out; each call draws
// independent randomness so payloads never repeat across recipients even
// for the same DEK.
func ShareWrap(secret *ScopedSecret, recipientPublicKey wire.KyberPublicKey) (wire.KEMPayload, error) {
	ct, ss, err := Encapsulate(recipientPublicKey)
	if err != nil {
		return wire.KEMPayload{}, err
	}
	wrapped := wire.Wrap(secret.Expose(), ss)
	return wire.NewPayload(ct, wrapped), nil
}

// DecryptAndUnwrap runs the recipient-side pipeline: split the payload,
// decapsulate, recover the DEK, then AES-256-GCM decrypt the blob. A GCM
// tag failure returns ErrTampered with no plaintext bytes.
func DecryptAndUnwrap(recipientPrivateKey wire.KyberPrivateKey, payload wire.KEMPayload, blob []byte) ([]byte, error) {
	ss, err := Decapsulate(recipientPrivateKey, payload.Ciphertext())
	if err != nil {
		return nil, err
	}
	dek := wire.Unwrap(payload.Wrapped(), ss)
	secret := NewScopedSecret(dek)
	defer secret.Wipe()

	return DecryptBlob(secret.Expose(), blob)
}

// VerifyFingerprint checks a server-supplied fingerprint against the
// downloaded blob. A mismatch is Tampered and is fatal on the blob path.
func VerifyFingerprint(blob []byte, want string) error {
	got, err := Fingerprint(blob)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: fingerprint mismatch", ErrTampered)
	}
	return nil
}
