// Package wire defines the fixed-length binary types that cross the
// boundary between the Hybrid Cipher Engine, the Blob Store, and the Share
// Ledger. Every type here has a type-level length constant; constructors
// validate that length once at the boundary so the rest of the codebase can
// treat a mis-sized key or payload as impossible rather than as a runtime
// check scattered through every call site.
package wire

import (
	"encoding/hex"
	"fmt"
)

// Byte sizes fixed by ML-KEM-512 and AES-256-GCM. These never vary per file
// or per identity; see DESIGN.md for the decision to fix the parameter set.
const (
	IVSize            = 12
	TagSize           = 16
	DEKSize           = 32
	SharedSecretSize  = 32
	KyberPublicKeySize  = 800
	KyberPrivateKeySize = 1632
	KEMCiphertextSize   = 768
	WrappedKeySize      = 32
	KEMPayloadSize       = KEMCiphertextSize + WrappedKeySize // 800
)

// IV is a fresh, single-use AES-GCM nonce.
type IV [IVSize]byte

// DEK is the 32-byte AES-256 data-encryption key for one file. Callers that
// hold a DEK are responsible for zeroizing it; see cryptoengine.ScopedSecret.
type DEK [DEKSize]byte

// SharedSecret is the 32-byte output of a Kyber-512 encapsulation or
// decapsulation.
type SharedSecret [SharedSecretSize]byte

// WrappedKey is DEK XOR SharedSecret: meaningless without the paired
// KEMCiphertext and the recipient's private key.
type WrappedKey [WrappedKeySize]byte

// KyberPublicKey is a raw, packed Kyber-512 public key.
type KyberPublicKey [KyberPublicKeySize]byte

// KyberPrivateKey is a raw, packed Kyber-512 private key. It never leaves
// the Local Keystore process boundary.
type KyberPrivateKey [KyberPrivateKeySize]byte

// KEMCiphertext is the output of a Kyber-512 encapsulation.
type KEMCiphertext [KEMCiphertextSize]byte

// KEMPayload is the 800-byte wire format `kem_ct(768) ∥ wrapped_DEK(32)`
// used for both the owner-wrap and every recipient wrap in a share.
type KEMPayload [KEMPayloadSize]byte

// NewKyberPublicKey validates and wraps a raw public key byte slice.
func NewKyberPublicKey(b []byte) (KyberPublicKey, error) {
	var k KyberPublicKey
	if len(b) != KyberPublicKeySize {
		return k, fmt.Errorf("kyber public key: expected %d bytes, got %d", KyberPublicKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// NewKyberPrivateKey validates and wraps a raw private key byte slice.
func NewKyberPrivateKey(b []byte) (KyberPrivateKey, error) {
	var k KyberPrivateKey
	if len(b) != KyberPrivateKeySize {
		return k, fmt.Errorf("kyber private key: expected %d bytes, got %d", KyberPrivateKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// NewKEMPayload validates and wraps an 800-byte payload; Ciphertext and
// Wrapped split it into its halves. There is no way to hold a KEMPayload
// of the wrong length.
func NewKEMPayload(b []byte) (KEMPayload, error) {
	var p KEMPayload
	if len(b) != KEMPayloadSize {
		return p, fmt.Errorf("kem payload: expected %d bytes, got %d", KEMPayloadSize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// Ciphertext returns the leading 768-byte KEM ciphertext portion.
func (p KEMPayload) Ciphertext() KEMCiphertext {
	var ct KEMCiphertext
	copy(ct[:], p[:KEMCiphertextSize])
	return ct
}

// Wrapped returns the trailing 32-byte wrapped-DEK portion.
func (p KEMPayload) Wrapped() WrappedKey {
	var w WrappedKey
	copy(w[:], p[KEMCiphertextSize:])
	return w
}

// NewPayload joins a ciphertext and a wrapped key into one 800-byte payload.
func NewPayload(ct KEMCiphertext, w WrappedKey) KEMPayload {
	var p KEMPayload
	copy(p[:KEMCiphertextSize], ct[:])
	copy(p[KEMCiphertextSize:], w[:])
	return p
}

// Wrap XORs a DEK with a shared secret to produce a wrapped key. Both
// operands are the same length by construction (DEKSize == SharedSecretSize
// == WrappedKeySize), so this can never be miswired across a length
// mismatch the way a raw []byte XOR loop could be.
func Wrap(dek DEK, ss SharedSecret) WrappedKey {
	var w WrappedKey
	for i := range w {
		w[i] = dek[i] ^ ss[i]
	}
	return w
}

// Unwrap recovers a DEK from a wrapped key and the shared secret that
// produced it.
func Unwrap(w WrappedKey, ss SharedSecret) DEK {
	var d DEK
	for i := range d {
		d[i] = w[i] ^ ss[i]
	}
	return d
}

// Hex renders a byte array as lowercase hex, used for fingerprints and
// logging-safe identifiers (never for key material).
func Hex(b []byte) string {
	return hex.EncodeToString(b)
}
