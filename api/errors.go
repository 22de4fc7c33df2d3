package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumenhq/lumen/hive"
	"github.com/lumenhq/lumen/hue"
	"github.com/lumenhq/lumen/secrets"
	"github.com/lumenhq/lumen/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates typed domain errors to transport responses. Expected,
// user-correctable outcomes keep their sentinel's message so the UI can
// render them inline.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, hive.ErrInvalidCredentials),
		errors.Is(err, hive.ErrInvalidCode),
		errors.Is(err, hive.ErrChallengeExpired),
		errors.Is(err, hive.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, secrets.ErrValidation), errors.Is(err, hive.ErrNoCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hue.ErrLinkButtonNotPressed):
		writeError(w, http.StatusForbidden, "press the bridge link button and retry")
	case errors.Is(err, hue.ErrBridgeUnreachable), errors.Is(err, hive.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, hive.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

const maxBodySize = 64 * 1024

// decodeJSON decodes a size-capped JSON body, writing the 400 itself on
// failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}
