package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/care-notify/internal/application/feed"
	"github.com/care-notify/internal/domain"
	"github.com/rs/zerolog/log"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// SessionEnvelope wraps sign-in responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session,omitempty"`
	Feed    *feed.ReadModel `json:"feed,omitempty"`
}

// PressEnvelope tells the client where a pressed notification leads.
type PressEnvelope struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps domain sentinels to status codes. Anything else is a backend
// failure the client may retry.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotNavigable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, "backend unavailable, retry later")
	}
}
