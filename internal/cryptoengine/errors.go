package cryptoengine

import "github.com/Sansi-28/byteguard/internal/apierr"

// Stable error kinds per the cryptographic contract. These are never
// wrapped with additional context that could leak key material. The HTTP
// layer collapses ErrTampered and ErrBadPayload to "decryption failed" at
// the user boundary; the other kinds keep their own message.
var (
	ErrBadKey         = apierr.New(apierr.BadKey, "bad key")
	ErrBadPayload     = apierr.New(apierr.BadPayload, "bad payload")
	ErrTampered       = apierr.New(apierr.Tampered, "tampered")
	ErrSizeMismatch   = apierr.New(apierr.SizeMismatch, "size mismatch")
	ErrNotOwner       = apierr.New(apierr.NotOwner, "not owner")
	ErrNoRecipientKey = apierr.New(apierr.NoRecipientKey, "no recipient key")
	ErrInternal       = apierr.New(apierr.Internal, "internal crypto failure")
)
