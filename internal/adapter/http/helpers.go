package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sustainabot/sustainabot/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps the error taxonomy to HTTP statuses. Only
// verification failures and unusable payloads become client errors;
// anything else is an internal error, though the webhook handlers never
// let downstream failures reach here.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrVerificationFailed):
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
	case errors.Is(err, domain.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "malformed payload")
	case errors.Is(err, domain.ErrUnrecognizedEvent):
		writeError(w, http.StatusBadRequest, "unrecognized event")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
