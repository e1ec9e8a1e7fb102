package websocket

import (
	"github.com/hazelvane/arcana/internal/model"
)

// PaymentNotifier pushes payment completion events to the buyer's open
// connections.
type PaymentNotifier struct {
	hub *Hub
}

func NewPaymentNotifier(hub *Hub) *PaymentNotifier {
	return &PaymentNotifier{hub: hub}
}

func (n *PaymentNotifier) PaymentCompleted(ent *model.Entitlement) {
	n.hub.SendToUser(ent.UserID, PaymentCompletedMessage(ent.ExternalOrderID))
}
