// Package apierr defines the stable error taxonomy shared by every
// server-side and client-side component. Every exported service method
// across the registry, blob store, ledger, and cryptoengine packages
// returns (or wraps) one of these kinds so the HTTP layer can map errors
// to status codes in exactly one place (internal/httpapi/errors.go).
package apierr

import "errors"

// Kind is one of the stable error kinds.
type Kind int

const (
	Unauthorized Kind = iota
	Forbidden
	NotFound
	BadCredentials
	AlreadyExists
	BadKey
	NoRecipientKey
	NoKeypair
	BadPayload
	Tampered
	SizeMismatch
	FingerprintMismatch
	WeakPassword
	InvalidInput
	NotOwner
	Internal
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case BadCredentials:
		return "bad_credentials"
	case AlreadyExists:
		return "already_exists"
	case BadKey:
		return "bad_key"
	case NoRecipientKey:
		return "no_recipient_key"
	case NoKeypair:
		return "no_keypair"
	case BadPayload:
		return "bad_payload"
	case Tampered:
		return "tampered"
	case SizeMismatch:
		return "size_mismatch"
	case FingerprintMismatch:
		return "fingerprint_mismatch"
	case WeakPassword:
		return "weak_password"
	case InvalidInput:
		return "invalid_input"
	case NotOwner:
		return "not_owner"
	default:
		return "internal"
	}
}

// Error carries a stable Kind alongside a human-readable message. Its
// Unwrap implementation lets errors.Is/errors.As see through to a wrapped
// cause when one is present (e.g. a driver error behind Internal), while
// KindOf and Is below compare by the Kind value.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a sentinel-style error of the given kind. Each call site
// that needs a reusable sentinel (for errors.Is comparisons) should assign
// the result to a package-level var.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a Kind to an underlying error without losing it from the
// Unwrap chain.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. Falls back to Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
