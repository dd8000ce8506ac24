package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

// statusFor is the single place that maps an apierr.Kind to an HTTP
// status code. Every handler funnels its errors through writeError
// rather than picking a status code itself.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.Unauthorized:
		return http.StatusUnauthorized
	case apierr.Forbidden, apierr.NotOwner:
		return http.StatusForbidden
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.BadCredentials:
		return http.StatusUnauthorized
	case apierr.AlreadyExists:
		return http.StatusConflict
	case apierr.BadKey, apierr.NoRecipientKey, apierr.BadPayload,
		apierr.WeakPassword, apierr.InvalidInput,
		apierr.SizeMismatch, apierr.FingerprintMismatch:
		return http.StatusBadRequest
	case apierr.NoKeypair:
		return http.StatusConflict
	case apierr.Tampered:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code via statusFor and writes a small
// JSON error body. Cryptographic failures collapse to a single generic
// message at this boundary; the kind is still reported for diagnostics.
func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	msg := err.Error()
	if kind == apierr.Tampered || kind == apierr.BadPayload {
		msg = "decryption failed"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"kind":  kind.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
