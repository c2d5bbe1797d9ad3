package server

import (
	"errors"
	"net/http"

	"foxylend/native/lending"
)

// statusFor maps an error to the HTTP status and stable code returned to
// clients. Anything without a kind is a host fault.
func statusFor(err error) (int, string) {
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, lending.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, lending.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, lending.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "amount_mismatch"
	case errors.Is(err, lending.ErrTermViolation):
		return http.StatusUnprocessableEntity, "term_violation"
	case errors.Is(err, lending.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) int {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
	return status
}
