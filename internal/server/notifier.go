package server

import (
	"log/slog"

	"github.com/hazelvane/arcana/internal/email"
	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/store"
	ws "github.com/hazelvane/arcana/internal/websocket"
)

// completionNotifier fans a finalized payment out to the buyer's open
// WebSocket connections and, when mail is configured, a receipt email.
// Both are best-effort; the entitlement is already durable.
type completionNotifier struct {
	hub    *ws.PaymentNotifier
	email  *email.Client
	users  *store.UserStore
	logger *slog.Logger
}

func (n *completionNotifier) PaymentCompleted(ent *model.Entitlement) {
	n.hub.PaymentCompleted(ent)

	if n.email == nil || !n.email.Configured() {
		return
	}
	user, err := n.users.GetByID(ent.UserID)
	if err != nil || user == nil {
		n.logger.Warn("receipt recipient lookup", "user_id", ent.UserID, "error", err)
		return
	}
	go func() {
		if err := n.email.SendReceipt(user.Email, user.FullName, ent.ExternalOrderID, ent.AmountCents, ent.Currency); err != nil {
			n.logger.Warn("send receipt", "user_id", ent.UserID, "error", err)
		}
	}()
}
