// Package access decides whether a user's entitlement currently unlocks a
// reading category. Decisions are always recomputed from the stored window
// timestamps; client countdowns are advisory only.
package access

import (
	"time"

	"github.com/hazelvane/arcana/internal/model"
)

// DenyReason classifies why access was refused.
type DenyReason string

const (
	// ReasonNoPayment means no completed entitlement exists for the user.
	ReasonNoPayment DenyReason = "no_payment"
	// ReasonWindowExpired means the 2-hour access window has ended.
	ReasonWindowExpired DenyReason = "window_expired"
	// ReasonCategoryUsed means this category's single use is spent.
	ReasonCategoryUsed DenyReason = "category_already_used"
)

// Decision is the outcome of an access check.
type Decision struct {
	Granted bool
	Reason  DenyReason
	// ExpiresAt is set when access is granted.
	ExpiresAt time.Time
	// NeedsActivation is set when the entitlement is completed but its
	// window has not started; the caller must activate it before
	// treating access as granted.
	NeedsActivation bool
}

func denied(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

func granted(expiresAt time.Time) Decision {
	return Decision{Granted: true, ExpiresAt: expiresAt}
}

// Evaluate produces the access decision for a category given the user's
// most recent completed entitlement (nil if none) at the given instant.
// It never mutates state: a NeedsActivation result tells the caller to
// perform the set-once window activation and re-evaluate.
func Evaluate(ent *model.Entitlement, category string, now time.Time) Decision {
	if ent == nil || ent.Status != model.StatusCompleted {
		return denied(ReasonNoPayment)
	}

	if ent.AccessGrantedAt == nil {
		d := granted(now.Add(model.WindowDuration))
		d.NeedsActivation = true
		return d
	}

	if !now.Before(*ent.AccessExpiresAt) {
		return denied(ReasonWindowExpired)
	}

	if ent.Consumed(category) {
		return denied(ReasonCategoryUsed)
	}

	return granted(*ent.AccessExpiresAt)
}
