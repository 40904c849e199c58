package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/athenax/reviewd/internal/errs"
)

// statusFor performs the error-kind to transport mapping, once, for the whole
// server. Handlers never pick status codes themselves.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrNoCredentials),
		errors.Is(err, errs.ErrInvalidToken),
		errors.Is(err, errs.ErrUnknownKey),
		errors.Is(err, errs.ErrPrincipalNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrKeySetUnavailable), errors.Is(err, errs.ErrStorage):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// writeError maps err to a status and writes a JSON body. Infra failures are
// logged with full detail and presented with a generic message; the engine
// never leaks to the caller.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	detail := err.Error()
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusInternalServerError:
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
		switch {
		case errors.Is(err, errs.ErrKeySetUnavailable):
			detail = "authentication service unavailable"
		case errors.Is(err, errs.ErrUnavailable):
			detail = "service unavailable"
		default:
			detail = "internal server error"
		}
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
