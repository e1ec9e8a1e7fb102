package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazelvane/arcana/internal/store"
)

const (
	reconcileInterval = 30 * time.Second
	reconcileLookback = 24 * time.Hour
	reconcileBatch    = 50
)

// Reconciler periodically sweeps recent pending orders and finalizes any the
// provider reports as approved. It is one more producer racing the redirect
// return and the webhook toward the same idempotent finalize, so orders
// whose completion signal was lost still get captured.
type Reconciler struct {
	orchestrator *Orchestrator
	entitlements *store.EntitlementStore
	provider     Provider
	logger       *slog.Logger
	interval     time.Duration
}

func NewReconciler(o *Orchestrator, es *store.EntitlementStore, provider Provider, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orchestrator: o,
		entitlements: es,
		provider:     provider,
		logger:       logger,
		interval:     reconcileInterval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	since := time.Now().UTC().Add(-reconcileLookback)
	pending, err := r.entitlements.ListPending(since, reconcileBatch)
	if err != nil {
		r.logger.Error("reconciler: list pending", "error", err)
		return
	}

	for _, ent := range pending {
		details, err := r.provider.GetOrder(ctx, ent.ExternalOrderID)
		if err != nil {
			r.logger.Warn("reconciler: order lookup failed",
				"order_id", ent.ExternalOrderID, "error", err)
			continue
		}

		// Only APPROVED orders are capturable; CREATED means the buyer
		// never finished approval and the row stays inert.
		if details.Status != "APPROVED" {
			continue
		}

		if _, err := r.orchestrator.Finalize(ctx, ent.ExternalOrderID); err != nil {
			if errors.Is(err, ErrCaptureInProgress) {
				continue
			}
			r.logger.Error("reconciler: finalize failed",
				"order_id", ent.ExternalOrderID, "user_id", ent.UserID, "error", err)
			continue
		}
		r.logger.Info("reconciler: finalized stale order",
			"order_id", ent.ExternalOrderID, "user_id", ent.UserID)
	}
}
