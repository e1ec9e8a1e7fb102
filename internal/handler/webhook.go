package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hazelvane/arcana/internal/payment"
	"github.com/hazelvane/arcana/internal/store"
)

type WebhookHandler struct {
	orchestrator *payment.Orchestrator
	entitlements *store.EntitlementStore
	logger       *slog.Logger
}

func NewWebhookHandler(o *payment.Orchestrator, es *store.EntitlementStore, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: o,
		entitlements: es,
		logger:       logger,
	}
}

type webhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// HandlePayPalWebhook processes capture lifecycle events. It always
// acknowledges with 200 so the provider does not retry events we choose to
// ignore; the reconciler covers anything lost.
func (h *WebhookHandler) HandlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("webhook: unparseable event", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		if orderID == "" {
			h.logger.Warn("webhook: completed event missing order id")
			break
		}
		if _, err := h.orchestrator.Finalize(r.Context(), orderID); err != nil {
			// Unknown orders are expected for events belonging to other
			// systems on the same merchant account.
			h.logger.Warn("webhook: finalize", "order_id", orderID, "error", err)
		}
	case "PAYMENT.CAPTURE.DENIED":
		if orderID == "" {
			break
		}
		if err := h.entitlements.MarkFailed(orderID, body); err != nil {
			h.logger.Warn("webhook: mark failed", "order_id", orderID, "error", err)
		}
	case "PAYMENT.CAPTURE.REFUNDED":
		if orderID == "" {
			break
		}
		if err := h.entitlements.MarkRefunded(orderID, body); err != nil {
			h.logger.Warn("webhook: mark refunded", "order_id", orderID, "error", err)
		} else {
			h.logger.Info("entitlement refunded", "order_id", orderID)
		}
	default:
		h.logger.Debug("webhook: ignored event", "event_type", event.EventType)
	}

	w.WriteHeader(http.StatusOK)
}
