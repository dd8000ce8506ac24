package cryptoengine

import "github.com/Sansi-28/byteguard/internal/wire"

// ScopedSecret holds a DEK for the lifetime of one cryptographic operation
// and guarantees it is wiped on every exit path, including a panicking one.
// Callers must always defer Wipe immediately after obtaining a secret:
//
//	secret := NewScopedSecret(dek)
//	defer secret.Wipe()
type ScopedSecret struct {
	dek    wire.DEK
	wiped  bool
}

// NewScopedSecret takes ownership of a DEK value.
func NewScopedSecret(dek wire.DEK) *ScopedSecret {
	return &ScopedSecret{dek: dek}
}

// Expose returns the underlying DEK for use in an AES-GCM call. It must not
// be retained past the call; callers that need the bytes longer must copy
// them into their own ScopedSecret.
func (s *ScopedSecret) Expose() wire.DEK {
	return s.dek
}

// Wipe zeroizes the DEK in place. Safe to call multiple times.
func (s *ScopedSecret) Wipe() {
	if s.wiped {
		return
	}
	for i := range s.dek {
		s.dek[i] = 0
	}
	s.wiped = true
}
