package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Kapral67/FamilyDirectory-sub001/chain"
	"github.com/Kapral67/FamilyDirectory-sub001/engine"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// classify maps an error to its status and error code. Typed errors keep
// their message; anything else is reported as an opaque internal error.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, engine.ErrEmailTaken):
		return http.StatusConflict, "email_taken", err.Error()
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, chain.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid_cursor", err.Error()
	case errors.Is(err, chain.ErrCursorExpired):
		return http.StatusGone, "cursor_expired", "cursor expired, resync required"
	}
	return http.StatusInternalServerError, "internal_error", "internal error"
}
