package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/payment"
)

type OrderHandler struct {
	orchestrator *payment.Orchestrator
	logger       *slog.Logger
}

func NewOrderHandler(o *payment.Orchestrator, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orchestrator: o, logger: logger}
}

// Create starts a payment order and returns the approval URL the buyer is
// sent to.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	order, err := h.orchestrator.CreateOrder(r.Context(), userID)
	if err != nil {
		status, msg := paymentErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("create order", "user_id", userID, "error", err)
		}
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// Capture finalizes an approved order for the authenticated user. Repeating
// a capture that already completed returns the same result.
func (h *OrderHandler) Capture(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	orderID := r.PathValue("orderID")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "order id is required")
		return
	}

	ent, err := h.orchestrator.Capture(r.Context(), userID, orderID)
	if err != nil {
		status, msg := paymentErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("capture order", "user_id", userID, "order_id", orderID, "error", err)
		}
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   ent.Status,
		"order_id": ent.ExternalOrderID,
	})
}

// Success handles the provider's return redirect after the buyer approves
// the order. The token query parameter carries the order id.
func (h *OrderHandler) Success(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("token")
	payerID := r.URL.Query().Get("PayerID")
	if orderID == "" || payerID == "" {
		http.Error(w, "Missing payment parameters", http.StatusBadRequest)
		return
	}

	_, err := h.orchestrator.Finalize(r.Context(), orderID)
	if err != nil {
		h.logger.Error("finalize on return redirect", "order_id", orderID, "error", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, paymentPendingPage)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, paymentSuccessPage)
}

// Cancelled handles the provider's cancel redirect. The pending order is
// left alone; it simply never completes.
func (h *OrderHandler) Cancelled(w http.ResponseWriter, r *http.Request) {
	if orderID := r.URL.Query().Get("token"); orderID != "" {
		h.logger.Info("payment approval cancelled", "order_id", orderID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, paymentCancelledPage)
}

const paymentSuccessPage = `<!DOCTYPE html>
<html><head><title>Payment Complete</title></head>
<body><h1>Payment complete</h1>
<p>Your readings are unlocked. You can close this window and return to the app.</p>
</body></html>`

const paymentPendingPage = `<!DOCTYPE html>
<html><head><title>Payment Processing</title></head>
<body><h1>Payment processing</h1>
<p>We are confirming your payment. Your readings will unlock shortly.</p>
</body></html>`

const paymentCancelledPage = `<!DOCTYPE html>
<html><head><title>Payment Cancelled</title></head>
<body><h1>Payment cancelled</h1>
<p>No charge was made. You can start a new order at any time.</p>
</body></html>`
