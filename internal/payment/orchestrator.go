package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/paypal"
	"github.com/hazelvane/arcana/internal/store"
)

// CaptureStatusCompleted is the single provider capture status accepted as
// success. Anything else fails the attempt.
const CaptureStatusCompleted = "COMPLETED"

// Provider is the narrow slice of the payment gateway the orchestrator
// needs: create an order, capture it, and read its status.
type Provider interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, description, returnURL, cancelURL string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.OrderDetails, error)
}

// Notifier receives completion events exactly once per finalized order.
type Notifier interface {
	PaymentCompleted(ent *model.Entitlement)
}

type nopNotifier struct{}

func (nopNotifier) PaymentCompleted(*model.Entitlement) {}

type Config struct {
	AmountCents int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

// Order is what the client needs to send the buyer into the approval flow.
type Order struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// Orchestrator drives the create -> approve -> capture payment protocol and
// reconciles the result into the entitlement store. Every completion signal
// (redirect return, webhook, background poll) funnels into the same
// idempotent finalize path.
type Orchestrator struct {
	cfg          Config
	provider     Provider
	entitlements *store.EntitlementStore
	notifier     Notifier
	logger       *slog.Logger

	mu       sync.Mutex
	attempts map[string]*Attempt
	creating map[int64]bool
}

func NewOrchestrator(cfg Config, provider Provider, es *store.EntitlementStore, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		provider:     provider,
		entitlements: es,
		notifier:     nopNotifier{},
		logger:       logger,
		attempts:     make(map[string]*Attempt),
		creating:     make(map[int64]bool),
	}
}

// SetNotifier installs the completion listener. Must be called before the
// orchestrator starts serving requests.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// CreateOrder starts a payment attempt for the user. A second trigger while
// one is still creating is rejected rather than producing a duplicate order.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID int64) (*Order, error) {
	o.mu.Lock()
	if o.creating[userID] {
		o.mu.Unlock()
		return nil, ErrOrderInProgress
	}
	o.creating[userID] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.creating, userID)
		o.mu.Unlock()
	}()

	attempt := NewAttempt(userID)
	if err := attempt.Transition(StateOrderCreating); err != nil {
		return nil, err
	}

	created, err := o.provider.CreateOrder(ctx, o.cfg.AmountCents, o.cfg.Currency, o.cfg.Description, o.cfg.ReturnURL, o.cfg.CancelURL)
	if err != nil {
		attempt.Transition(StateFailed)
		o.logger.Error("order creation failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("create provider order: %w", err)
	}
	if created.OrderID == "" || created.ApprovalURL == "" {
		attempt.Transition(StateFailed)
		o.logger.Error("provider order response incomplete",
			"user_id", userID, "order_id", created.OrderID)
		return nil, ErrInvalidProviderResponse
	}

	if _, err := o.entitlements.CreatePending(userID, created.OrderID, o.cfg.AmountCents, o.cfg.Currency); err != nil {
		attempt.Transition(StateFailed)
		return nil, fmt.Errorf("persist pending order: %w", err)
	}

	attempt.OrderID = created.OrderID
	attempt.Transition(StateAwaitingApproval)
	o.mu.Lock()
	o.attempts[created.OrderID] = attempt
	o.mu.Unlock()

	o.logger.Info("payment order created", "user_id", userID, "order_id", created.OrderID)
	return &Order{OrderID: created.OrderID, ApprovalURL: created.ApprovalURL}, nil
}

// Capture finalizes an approved order on behalf of the authenticated user.
// The user must be the one who created the order; a capture for an order
// that is already finalized is a successful no-op.
func (o *Orchestrator) Capture(ctx context.Context, userID int64, orderID string) (*model.Entitlement, error) {
	ent, err := o.entitlements.GetCompletedByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		if ent.UserID != userID {
			o.logger.Warn("capture replay by different user",
				"order_id", orderID, "owner_id", ent.UserID, "user_id", userID)
			return nil, ErrAuthMismatch
		}
		return ent, nil
	}

	pending, err := o.entitlements.GetPendingByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrUnknownOrder
	}
	if pending.UserID != userID {
		o.logger.Warn("capture attempt by non-owner",
			"order_id", orderID, "owner_id", pending.UserID, "user_id", userID)
		return nil, ErrAuthMismatch
	}

	return o.capture(ctx, pending)
}

// Finalize runs the capture path as the order's owner. It backs the webhook
// and reconciler, which act on provider signals rather than a user session.
func (o *Orchestrator) Finalize(ctx context.Context, orderID string) (*model.Entitlement, error) {
	ent, err := o.entitlements.GetCompletedByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return ent, nil
	}

	pending, err := o.entitlements.GetPendingByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrUnknownOrder
	}
	return o.capture(ctx, pending)
}

// Cancel aborts an attempt whose approval flow was closed without completing.
// The pending row is left in place; with no completed counterpart it is
// ignored by access evaluation.
func (o *Orchestrator) Cancel(userID int64, orderID string) error {
	pending, err := o.entitlements.GetPendingByOrderID(orderID)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrUnknownOrder
	}
	if pending.UserID != userID {
		return ErrAuthMismatch
	}

	if attempt := o.lookupAttempt(orderID); attempt != nil {
		attempt.Transition(StateCancelled)
	}
	o.clearAttempt(orderID)
	o.logger.Info("payment cancelled", "user_id", userID, "order_id", orderID)
	return nil
}

func (o *Orchestrator) capture(ctx context.Context, pending *model.Entitlement) (*model.Entitlement, error) {
	orderID := pending.ExternalOrderID
	attempt := o.attemptFor(orderID, pending.UserID)

	ok, state := attempt.BeginCapture()
	if !ok {
		if state == StateCapturing {
			return nil, ErrCaptureInProgress
		}
		if state == StateCompleted {
			return o.entitlements.GetCompletedByOrderID(orderID)
		}
		// A failed or cancelled attempt lingering in the registry should
		// not block a fresh completion signal.
		o.clearAttempt(orderID)
		attempt = o.attemptFor(orderID, pending.UserID)
		if ok, _ = attempt.BeginCapture(); !ok {
			return nil, ErrCaptureInProgress
		}
	}

	capture, err := o.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		attempt.Transition(StateFailed)
		o.clearAttempt(orderID)
		o.entitlements.MarkFailed(orderID, nil)
		o.logger.Error("provider capture failed",
			"order_id", orderID, "user_id", pending.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	if capture.OrderID != orderID {
		// Never record anything against the wrong order.
		attempt.Transition(StateFailed)
		o.clearAttempt(orderID)
		o.logger.Error("capture reported mismatched order",
			"order_id", orderID, "reported_order_id", capture.OrderID, "user_id", pending.UserID)
		return nil, ErrOrderIDMismatch
	}

	if capture.Status != CaptureStatusCompleted {
		attempt.Transition(StateFailed)
		o.clearAttempt(orderID)
		o.entitlements.MarkFailed(orderID, capture.Raw)
		o.logger.Error("capture status not completed",
			"order_id", orderID, "user_id", pending.UserID, "status", capture.Status)
		return nil, fmt.Errorf("%w: status %s", ErrCaptureFailed, capture.Status)
	}

	ent, alreadyFinalized, err := o.entitlements.FinalizeCapture(
		pending.UserID, orderID, capture.CaptureID, pending.AmountCents, pending.Currency, capture.Raw)
	if err != nil {
		attempt.Transition(StateFailed)
		o.clearAttempt(orderID)
		return nil, err
	}

	attempt.Transition(StateCompleted)
	o.clearAttempt(orderID)

	if alreadyFinalized {
		o.logger.Info("capture already finalized", "order_id", orderID, "user_id", pending.UserID)
	} else {
		o.logger.Info("payment completed",
			"order_id", orderID, "user_id", pending.UserID, "capture_id", capture.CaptureID)
		o.notifier.PaymentCompleted(ent)
	}
	return ent, nil
}

// attemptFor returns the registered attempt for an order, creating one in
// AwaitingApproval when the order was created before a restart.
func (o *Orchestrator) attemptFor(orderID string, userID int64) *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.attempts[orderID]; ok {
		return a
	}
	a := &Attempt{OrderID: orderID, UserID: userID, state: StateAwaitingApproval}
	o.attempts[orderID] = a
	return a
}

func (o *Orchestrator) lookupAttempt(orderID string) *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts[orderID]
}

func (o *Orchestrator) clearAttempt(orderID string) {
	o.mu.Lock()
	delete(o.attempts, orderID)
	o.mu.Unlock()
}
