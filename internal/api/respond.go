package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matheus3301/wisp/internal/apperr"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a typed error to its HTTP status. Untyped errors are
// masked as internal failures so store details never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	body := errorBody{Code: code, Message: err.Error()}
	var e *apperr.Error
	if !errors.As(err, &e) {
		body.Message = "internal error"
	}
	writeJSON(w, httpStatus(code), body)
}

func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAlreadyExists:
		return http.StatusConflict
	case apperr.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case apperr.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArg("malformed request body")
	}
	return nil
}
