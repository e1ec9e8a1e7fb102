package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hazelvane/arcana/internal/payment"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// paymentErrorStatus maps orchestrator errors onto HTTP statuses. Unmapped
// errors are treated as internal.
func paymentErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, payment.ErrUnknownOrder):
		return http.StatusNotFound, "unknown order"
	case errors.Is(err, payment.ErrAuthMismatch):
		return http.StatusForbidden, "order belongs to another user"
	case errors.Is(err, payment.ErrOrderInProgress):
		return http.StatusConflict, "an order is already being created"
	case errors.Is(err, payment.ErrCaptureInProgress):
		return http.StatusConflict, "capture already in progress"
	case errors.Is(err, payment.ErrCaptureFailed):
		return http.StatusPaymentRequired, "payment capture failed"
	case errors.Is(err, payment.ErrInvalidProviderResponse), errors.Is(err, payment.ErrOrderIDMismatch):
		return http.StatusBadGateway, "payment provider error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
