package model

import "time"

// WindowDuration is how long a completed payment unlocks readings,
// measured from the first access check rather than from capture time.
const WindowDuration = 2 * time.Hour

// Entitlement statuses. Only completed entitlements participate in
// access-window evaluation; pending rows with no completed counterpart
// are inert audit records.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Reading categories, each consumable once per access window.
const (
	CategoryHoroscope  = "horoscope"
	CategoryTarot      = "tarot"
	CategoryNumerology = "numerology"
)

// Categories lists every valid reading category.
var Categories = []string{CategoryHoroscope, CategoryTarot, CategoryNumerology}

// ValidCategory reports whether s names a known reading category.
func ValidCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}

// Entitlement is one payment attempt and, once completed, the access
// window it grants. A new payment always creates a new row; completed
// rows are never mutated back to an earlier status.
type Entitlement struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"user_id"`
	Status          string     `json:"status"`
	ExternalOrderID string     `json:"external_order_id"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	CaptureID       *string    `json:"capture_id,omitempty"`
	AccessGrantedAt *time.Time `json:"access_granted_at,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	// CategoriesConsumed holds the categories used during the current
	// window. Membership is monotonic for the life of the window.
	CategoriesConsumed []string `json:"categories_consumed"`
	// RawCapture is the provider's capture payload, stored verbatim for
	// audit and never interpreted by access logic.
	RawCapture []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// WindowActive reports whether the entitlement's access window has been
// activated and has not yet expired at the given instant.
func (e *Entitlement) WindowActive(now time.Time) bool {
	return e.Status == StatusCompleted &&
		e.AccessGrantedAt != nil && e.AccessExpiresAt != nil &&
		now.Before(*e.AccessExpiresAt)
}

// Consumed reports whether the category has already been used this window.
func (e *Entitlement) Consumed(category string) bool {
	for _, c := range e.CategoriesConsumed {
		if c == category {
			return true
		}
	}
	return false
}
