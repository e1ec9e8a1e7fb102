package access

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/store"
)

// Service resolves access checks against the entitlement store, performing
// the lazy set-once window activation on first access after payment.
type Service struct {
	entitlements *store.EntitlementStore
	logger       *slog.Logger
	// bypass disables the paywall entirely. Injected from configuration at
	// startup; there is no in-code toggle.
	bypass bool
}

func NewService(es *store.EntitlementStore, logger *slog.Logger, bypass bool) *Service {
	if bypass {
		logger.Warn("paywall bypass enabled; all access checks will be granted")
	}
	return &Service{entitlements: es, logger: logger, bypass: bypass}
}

// Check evaluates access to a category for the user, activating the access
// window if this is the first check after a completed payment. The returned
// entitlement is nil only when the decision is Denied(no_payment) or the
// bypass is active.
func (s *Service) Check(userID int64, category string, now time.Time) (Decision, *model.Entitlement, error) {
	if s.bypass {
		return granted(now.Add(model.WindowDuration)), nil, nil
	}

	ent, err := s.entitlements.LatestCompletedByUser(userID)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("load entitlement: %w", err)
	}

	d := Evaluate(ent, category, now)
	if !d.NeedsActivation {
		return d, ent, nil
	}

	activated, err := s.entitlements.ActivateWindow(ent.ID, now)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("activate window: %w", err)
	}
	if activated {
		s.logger.Info("access window activated",
			"user_id", userID, "entitlement_id", ent.ID, "expires_at", d.ExpiresAt)
	}

	// Whether we won the activation race or another check did, the stored
	// window is now authoritative; re-read and re-evaluate against it.
	ent, err = s.entitlements.GetByID(ent.ID)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("reload entitlement: %w", err)
	}
	return Evaluate(ent, category, now), ent, nil
}

// MarkConsumed spends the category's single use. Call it only after the
// reading has been generated successfully, so a failed generation never
// burns the category.
func (s *Service) MarkConsumed(ent *model.Entitlement, category string) error {
	if s.bypass || ent == nil {
		return nil
	}
	if err := s.entitlements.MarkCategoryConsumed(ent.ID, category); err != nil {
		return err
	}
	s.logger.Info("category consumed",
		"user_id", ent.UserID, "entitlement_id", ent.ID, "category", category)
	return nil
}
