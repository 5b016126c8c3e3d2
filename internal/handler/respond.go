package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security"
	"github.com/yourorg/fleetrent/internal/service"
)

// All responses share one envelope: {"success":true,...} on the happy path,
// {"success":false,"error":"..."} on failure.

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": true, "message": message})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// writeError maps an error to its HTTP status. Store errors are logged with
// their cause but reach the client as an opaque 500; driver and SQL details
// never leave the process.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	if errors.Is(err, security.ErrForbidden) {
		writeErrorMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeErrorMessage(w, http.StatusUnauthorized, err.Error())
		return
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case domain.KindNotFound:
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case domain.KindConflict:
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case domain.KindInvalidState:
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error("internal error", slog.String("error", err.Error()))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
