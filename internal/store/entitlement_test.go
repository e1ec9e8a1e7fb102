package store

import (
	"sync"
	"testing"
	"time"

	"github.com/hazelvane/arcana/internal/database"
	"github.com/hazelvane/arcana/internal/model"
)

func setupEntitlementTestDB(t *testing.T) (*EntitlementStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEntitlementStore(db), NewUserStore(db)
}

func testUser(t *testing.T, us *UserStore) *model.User {
	t.Helper()
	u, err := us.Create("luna@example.com", "hash", "Luna Vale")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreatePending(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	ent, err := es.CreatePending(u.ID, "ORD-1", 199, "USD")
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if ent.Status != model.StatusPending {
		t.Errorf("status = %q, want %q", ent.Status, model.StatusPending)
	}
	if ent.ExternalOrderID != "ORD-1" {
		t.Errorf("order id = %q, want %q", ent.ExternalOrderID, "ORD-1")
	}
	if ent.AccessGrantedAt != nil || ent.AccessExpiresAt != nil {
		t.Error("pending entitlement should have no access window")
	}
}

func TestFinalizeCaptureCreatesCompletedRow(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)
	es.CreatePending(u.ID, "ORD-1", 199, "USD")

	ent, already, err := es.FinalizeCapture(u.ID, "ORD-1", "CAP-1", 199, "USD", []byte(`{"status":"COMPLETED"}`))
	if err != nil {
		t.Fatalf("finalize capture: %v", err)
	}
	if already {
		t.Error("first finalize reported alreadyFinalized")
	}
	if ent.Status != model.StatusCompleted {
		t.Errorf("status = %q, want %q", ent.Status, model.StatusCompleted)
	}
	if ent.CaptureID == nil || *ent.CaptureID != "CAP-1" {
		t.Errorf("capture id = %v, want CAP-1", ent.CaptureID)
	}

	// Pending placeholder is preserved for audit.
	pending, err := es.GetPendingByOrderID("ORD-1")
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if pending == nil {
		t.Error("pending placeholder was removed by finalize")
	}
}

func TestFinalizeCaptureIdempotent(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	first, already, err := es.FinalizeCapture(u.ID, "O123", "CAP-1", 199, "USD", nil)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if already {
		t.Error("first finalize reported alreadyFinalized")
	}

	second, already, err := es.FinalizeCapture(u.ID, "O123", "CAP-2", 199, "USD", nil)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !already {
		t.Error("second finalize did not report alreadyFinalized")
	}
	if second.ID != first.ID {
		t.Errorf("second finalize returned row %s, want existing %s", second.ID, first.ID)
	}
	if second.CaptureID == nil || *second.CaptureID != "CAP-1" {
		t.Error("second finalize overwrote the original capture")
	}
}

func TestFinalizeCaptureConcurrent(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	const finalizers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, finalizers)
	for i := 0; i < finalizers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, already, err := es.FinalizeCapture(u.ID, "O123", "CAP-1", 199, "USD", nil)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			wins <- !already
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Errorf("finalize winners = %d, want exactly 1", won)
	}
}

func TestActivateWindowSetOnce(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)
	ent, _, err := es.FinalizeCapture(u.ID, "ORD-1", "CAP-1", 199, "USD", nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	activated, err := es.ActivateWindow(ent.ID, t1)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated {
		t.Fatal("first activation did not win")
	}

	// A second activation attempt must not reset or extend the window.
	activated, err = es.ActivateWindow(ent.ID, t1.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if activated {
		t.Error("second activation won; window guard failed")
	}

	got, err := es.GetByID(ent.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessGrantedAt == nil || got.AccessExpiresAt == nil {
		t.Fatal("window fields not set")
	}
	if !got.AccessGrantedAt.Equal(t1) {
		t.Errorf("granted at = %v, want %v", got.AccessGrantedAt, t1)
	}
	if d := got.AccessExpiresAt.Sub(*got.AccessGrantedAt); d != model.WindowDuration {
		t.Errorf("window duration = %v, want %v", d, model.WindowDuration)
	}
}

func TestMarkCategoryConsumedIdempotent(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)
	ent, _, _ := es.FinalizeCapture(u.ID, "ORD-1", "CAP-1", 199, "USD", nil)

	if err := es.MarkCategoryConsumed(ent.ID, model.CategoryTarot); err != nil {
		t.Fatalf("mark consumed: %v", err)
	}
	if err := es.MarkCategoryConsumed(ent.ID, model.CategoryTarot); err != nil {
		t.Fatalf("re-mark consumed: %v", err)
	}
	if err := es.MarkCategoryConsumed(ent.ID, model.CategoryHoroscope); err != nil {
		t.Fatalf("mark second category: %v", err)
	}

	got, err := es.GetByID(ent.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.CategoriesConsumed) != 2 {
		t.Errorf("consumed = %v, want 2 categories", got.CategoriesConsumed)
	}
	if !got.Consumed(model.CategoryTarot) || !got.Consumed(model.CategoryHoroscope) {
		t.Errorf("consumed = %v, want tarot and horoscope", got.CategoriesConsumed)
	}
}

func TestLatestCompletedByUserPicksNewest(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	es.FinalizeCapture(u.ID, "ORD-OLD", "CAP-1", 199, "USD", nil)
	newest, _, err := es.FinalizeCapture(u.ID, "ORD-NEW", "CAP-2", 199, "USD", nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := es.LatestCompletedByUser(u.ID)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if got == nil {
		t.Fatal("expected entitlement, got nil")
	}
	if got.ID != newest.ID {
		t.Errorf("latest = %s, want %s", got.ExternalOrderID, newest.ExternalOrderID)
	}
}

func TestLatestCompletedByUserIgnoresPendingAndFailed(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	es.CreatePending(u.ID, "ORD-1", 199, "USD")
	es.MarkFailed("ORD-1", nil)
	es.CreatePending(u.ID, "ORD-2", 199, "USD")

	got, err := es.LatestCompletedByUser(u.ID)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %s entitlement", got.Status)
	}
}

func TestMarkRefunded(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)
	ent, _, _ := es.FinalizeCapture(u.ID, "ORD-1", "CAP-1", 199, "USD", nil)

	if err := es.MarkRefunded("ORD-1", []byte(`{"status":"REFUNDED"}`)); err != nil {
		t.Fatalf("mark refunded: %v", err)
	}

	got, err := es.GetByID(ent.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusRefunded {
		t.Errorf("status = %q, want %q", got.Status, model.StatusRefunded)
	}

	latest, err := es.LatestCompletedByUser(u.ID)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest != nil {
		t.Error("refunded entitlement still treated as completed")
	}
}

func TestListPendingSkipsFinalizedOrders(t *testing.T) {
	es, us := setupEntitlementTestDB(t)
	u := testUser(t, us)

	es.CreatePending(u.ID, "ORD-1", 199, "USD")
	es.CreatePending(u.ID, "ORD-2", 199, "USD")
	es.FinalizeCapture(u.ID, "ORD-2", "CAP-2", 199, "USD", nil)

	since := time.Now().UTC().Add(-time.Hour)
	pending, err := es.ListPending(since, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d rows, want 1", len(pending))
	}
	if pending[0].ExternalOrderID != "ORD-1" {
		t.Errorf("pending order = %q, want ORD-1", pending[0].ExternalOrderID)
	}
}
