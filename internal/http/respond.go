package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"financas/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps ledger errors onto HTTP statuses. Validation failures
// are the caller's fault, unknown ids are 404, anything else is on us.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrEmptyEstablishment,
		core.ErrInvalidCategory,
		core.ErrInvalidSavingType,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
