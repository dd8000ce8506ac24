package cryptoengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/Sansi-28/byteguard/internal/wire"
)

// EncryptBlob draws a fresh IV, seals the plaintext under AES-256-GCM
// with no additional data, and fingerprints the result. The returned
// slice is the on-disk wire format `IV(12) ∥ ciphertext ∥ tag(16)` — no
// header, no length prefix, no magic bytes.
func EncryptBlob(dek wire.DEK, plaintext []byte) (blob []byte, fingerprint string, err error) {
	block, err := aes.NewCipher(dek[:])
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var iv wire.IV
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return nil, "", fmt.Errorf("%w: iv draw failed: %v", ErrInternal, err)
	}

	ctAndTag := gcm.Seal(nil, iv[:], plaintext, nil)

	blob = make([]byte, 0, wire.IVSize+len(ctAndTag))
	blob = append(blob, iv[:]...)
	blob = append(blob, ctAndTag...)

	sum := sha256.Sum256(ctAndTag)
	return blob, wire.Hex(sum[:]), nil
}

// DecryptBlob splits the IV from the ciphertext-and-tag, then opens the
// AEAD. A tag-verification failure
// returns ErrTampered and the zero-value plaintext — callers MUST NOT treat
// a non-nil return alongside an error as partial plaintext; Go's gcm.Open
// contract already guarantees this (it returns nil on failure), but the
// discard is made explicit here to keep the invariant visible at the call
// site.
func DecryptBlob(dek wire.DEK, blob []byte) ([]byte, error) {
	if len(blob) < wire.IVSize+wire.TagSize {
		return nil, fmt.Errorf("%w: blob shorter than iv+tag", ErrTampered)
	}

	block, err := aes.NewCipher(dek[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	iv := blob[:wire.IVSize]
	ctAndTag := blob[wire.IVSize:]

	plaintext, err := gcm.Open(nil, iv, ctAndTag, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm tag verification failed", ErrTampered)
	}
	return plaintext, nil
}

// Fingerprint computes the lowercase-hex SHA-256 fingerprint over the
// ciphertext-and-tag portion of a blob (never the IV, never the
// plaintext).
func Fingerprint(blob []byte) (string, error) {
	if len(blob) < wire.IVSize {
		return "", fmt.Errorf("%w: blob shorter than iv", ErrSizeMismatch)
	}
	sum := sha256.Sum256(blob[wire.IVSize:])
	return wire.Hex(sum[:]), nil
}
