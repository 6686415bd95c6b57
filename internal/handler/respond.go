package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, kind apperr.Kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "kind": string(kind)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code. Errors without a caller-facing kind,
// and precondition failures, are logged and reported as internal errors.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	if kind == "" || kind == apperr.KindPrecondition {
		logger.Error(op, "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeErrorMsg(w, statusFor(kind), kind, apperr.MessageOf(err))
}

// decodeJSON reads a JSON body into v. An empty body is allowed when
// optional is true.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeErrorMsg(w, http.StatusBadRequest, apperr.KindValidation, "invalid JSON")
	return false
}

func parseIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}
