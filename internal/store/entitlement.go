package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazelvane/arcana/internal/model"
)

type EntitlementStore struct {
	db *sql.DB
}

func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

func scanEntitlement(scanner interface{ Scan(...any) error }) (*model.Entitlement, error) {
	var e model.Entitlement
	var captureID sql.NullString
	var grantedAt, expiresAt sql.NullTime
	var raw []byte
	err := scanner.Scan(
		&e.ID, &e.UserID, &e.Status, &e.ExternalOrderID, &e.AmountCents,
		&e.Currency, &captureID, &grantedAt, &expiresAt, &raw, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if captureID.Valid {
		e.CaptureID = &captureID.String
	}
	if grantedAt.Valid {
		t := grantedAt.Time
		e.AccessGrantedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		e.AccessExpiresAt = &t
	}
	e.RawCapture = raw
	return &e, nil
}

const entitlementCols = `id, user_id, status, external_order_id, amount_cents, currency, capture_id, access_granted_at, access_expires_at, raw_capture, created_at`

// CreatePending records a provider order that has been created but not yet
// captured. The row is inert until a completed counterpart exists.
func (s *EntitlementStore) CreatePending(userID int64, orderID string, amountCents int64, currency string) (*model.Entitlement, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO entitlements (id, user_id, status, external_order_id, amount_cents, currency)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, model.StatusPending, orderID, amountCents, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pending entitlement: %w", err)
	}
	return s.GetByID(id)
}

// FinalizeCapture persists the completed entitlement for a verified capture.
// The partial unique index on (external_order_id WHERE status='completed')
// makes this a set-once operation: the first caller inserts the row, every
// later caller gets the existing row back with alreadyFinalized=true and
// must not re-run completion side effects.
func (s *EntitlementStore) FinalizeCapture(userID int64, orderID, captureID string, amountCents int64, currency string, raw []byte) (*model.Entitlement, bool, error) {
	id := uuid.NewString()
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO entitlements (id, user_id, status, external_order_id, amount_cents, currency, capture_id, raw_capture)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, model.StatusCompleted, orderID, amountCents, currency, captureID, raw,
	)
	if err != nil {
		return nil, false, fmt.Errorf("finalize capture: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	ent, err := s.GetCompletedByOrderID(orderID)
	if err != nil {
		return nil, false, err
	}
	if ent == nil {
		return nil, false, fmt.Errorf("finalize capture: completed row missing for order %s", orderID)
	}
	return ent, n == 0, nil
}

// ActivateWindow starts the access window if it has not been started yet.
// The IS NULL guard makes concurrent first-access checks idempotent: only
// one caller wins the write and the window is never reset or extended.
func (s *EntitlementStore) ActivateWindow(id string, now time.Time) (bool, error) {
	grantedAt := now.UTC()
	expiresAt := grantedAt.Add(model.WindowDuration)
	result, err := s.db.Exec(
		`UPDATE entitlements SET access_granted_at = ?, access_expires_at = ?
		 WHERE id = ? AND access_granted_at IS NULL`,
		grantedAt, expiresAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("activate window: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkCategoryConsumed records that a category's single use has been spent.
// Re-marking an already consumed category is a no-op.
func (s *EntitlementStore) MarkCategoryConsumed(id, category string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO entitlement_consumptions (entitlement_id, category) VALUES (?, ?)`,
		id, category,
	)
	if err != nil {
		return fmt.Errorf("mark category consumed: %w", err)
	}
	return nil
}

func (s *EntitlementStore) GetByID(id string) (*model.Entitlement, error) {
	row := s.db.QueryRow(`SELECT `+entitlementCols+` FROM entitlements WHERE id = ?`, id)
	ent, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	if err := s.loadConsumptions(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// GetPendingByOrderID returns the pending placeholder for a provider order,
// or nil if none exists.
func (s *EntitlementStore) GetPendingByOrderID(orderID string) (*model.Entitlement, error) {
	row := s.db.QueryRow(
		`SELECT `+entitlementCols+` FROM entitlements WHERE external_order_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		orderID, model.StatusPending,
	)
	ent, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending entitlement by order: %w", err)
	}
	return ent, nil
}

// GetCompletedByOrderID returns the completed entitlement for a provider
// order, or nil if the order has not been finalized.
func (s *EntitlementStore) GetCompletedByOrderID(orderID string) (*model.Entitlement, error) {
	row := s.db.QueryRow(
		`SELECT `+entitlementCols+` FROM entitlements WHERE external_order_id = ? AND status = ?`,
		orderID, model.StatusCompleted,
	)
	ent, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completed entitlement by order: %w", err)
	}
	if err := s.loadConsumptions(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// LatestCompletedByUser returns the user's most recently created completed
// entitlement, the only row considered for access decisions.
func (s *EntitlementStore) LatestCompletedByUser(userID int64) (*model.Entitlement, error) {
	row := s.db.QueryRow(
		`SELECT `+entitlementCols+` FROM entitlements
		 WHERE user_id = ? AND status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID, model.StatusCompleted,
	)
	ent, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest completed entitlement: %w", err)
	}
	if err := s.loadConsumptions(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// MarkFailed moves a pending order to failed after a capture error.
func (s *EntitlementStore) MarkFailed(orderID string, raw []byte) error {
	_, err := s.db.Exec(
		`UPDATE entitlements SET status = ?, raw_capture = ? WHERE external_order_id = ? AND status = ?`,
		model.StatusFailed, raw, orderID, model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark entitlement failed: %w", err)
	}
	return nil
}

// MarkRefunded records an external refund notification against the
// completed entitlement for the order.
func (s *EntitlementStore) MarkRefunded(orderID string, raw []byte) error {
	_, err := s.db.Exec(
		`UPDATE entitlements SET status = ?, raw_capture = ? WHERE external_order_id = ? AND status = ?`,
		model.StatusRefunded, raw, orderID, model.StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("mark entitlement refunded: %w", err)
	}
	return nil
}

// ListPending returns pending orders created within the lookback window that
// have no completed counterpart. Used by the background reconciler.
func (s *EntitlementStore) ListPending(since time.Time, limit int) ([]*model.Entitlement, error) {
	rows, err := s.db.Query(
		`SELECT `+entitlementCols+` FROM entitlements e
		 WHERE e.status = ? AND e.created_at >= ?
		   AND NOT EXISTS (
		     SELECT 1 FROM entitlements c
		     WHERE c.external_order_id = e.external_order_id AND c.status = ?
		   )
		 ORDER BY e.created_at ASC LIMIT ?`,
		model.StatusPending, since.UTC(), model.StatusCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending entitlements: %w", err)
	}
	defer rows.Close()

	var ents []*model.Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending entitlement: %w", err)
		}
		ents = append(ents, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending entitlements: %w", err)
	}
	return ents, nil
}

// ListByUser returns all of a user's entitlements, newest first, for the
// dashboard payment history.
func (s *EntitlementStore) ListByUser(userID int64) ([]*model.Entitlement, error) {
	rows, err := s.db.Query(
		`SELECT `+entitlementCols+` FROM entitlements WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entitlements by user: %w", err)
	}
	defer rows.Close()

	var ents []*model.Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		ents = append(ents, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}
	return ents, nil
}

func (s *EntitlementStore) loadConsumptions(ent *model.Entitlement) error {
	rows, err := s.db.Query(
		`SELECT category FROM entitlement_consumptions WHERE entitlement_id = ? ORDER BY consumed_at ASC`,
		ent.ID,
	)
	if err != nil {
		return fmt.Errorf("load consumptions: %w", err)
	}
	defer rows.Close()

	ent.CategoriesConsumed = nil
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return fmt.Errorf("scan consumption: %w", err)
		}
		ent.CategoriesConsumed = append(ent.CategoriesConsumed, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate consumptions: %w", err)
	}
	return nil
}
