package cryptoengine

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber512"

	"github.com/Sansi-28/byteguard/internal/wire"
)

// GenerateKeypair produces a fresh Kyber-512 keypair for one identity.
func GenerateKeypair() (wire.KyberPublicKey, wire.KyberPrivateKey, error) {
	pub, priv, err := kyber512.GenerateKeyPair(rand.Reader)
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, fmt.Errorf("%w: generate keypair: %v", ErrInternal, err)
	}

	pubBytes := make([]byte, kyber512.PublicKeySize)
	privBytes := make([]byte, kyber512.PrivateKeySize)
	pub.Pack(pubBytes)
	priv.Pack(privBytes)

	pk, err := wire.NewKyberPublicKey(pubBytes)
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	sk, err := wire.NewKyberPrivateKey(privBytes)
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return pk, sk, nil
}

// Encapsulate performs a fresh Kyber-512 encapsulation against a public
// key, returning the KEM ciphertext and the shared secret. Every call draws
// fresh randomness, so two encapsulations against the same public key
// always disagree.
func Encapsulate(pk wire.KyberPublicKey) (wire.KEMCiphertext, wire.SharedSecret, error) {
	var kyberPk kyber512.PublicKey
	kyberPk.Unpack(pk[:])

	ctBytes := make([]byte, kyber512.CiphertextSize)
	ssBytes := make([]byte, kyber512.SharedKeySize)
	kyberPk.EncapsulateTo(ctBytes, ssBytes, nil)

	var ct wire.KEMCiphertext
	copy(ct[:], ctBytes)
	var ss wire.SharedSecret
	copy(ss[:], ssBytes)
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext using the
// caller's own Kyber-512 private key.
func Decapsulate(sk wire.KyberPrivateKey, ct wire.KEMCiphertext) (wire.SharedSecret, error) {
	var kyberSk kyber512.PrivateKey
	kyberSk.Unpack(sk[:])

	ssBytes := make([]byte, kyber512.SharedKeySize)
	kyberSk.DecapsulateTo(ssBytes, ct[:])

	var ss wire.SharedSecret
	copy(ss[:], ssBytes)
	return ss, nil
}
