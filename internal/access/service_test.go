package access

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazelvane/arcana/internal/database"
	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/store"
)

func setupService(t *testing.T, bypass bool) (*Service, *store.EntitlementStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := store.NewUserStore(db)
	u, err := us.Create("luna@example.com", "hash", "Luna")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	es := store.NewEntitlementStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(es, logger, bypass), es, u.ID
}

func TestServiceCheckNoPayment(t *testing.T) {
	svc, _, userID := setupService(t, false)

	d, ent, err := svc.Check(userID, model.CategoryTarot, time.Now().UTC())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Granted {
		t.Fatal("granted without payment")
	}
	if d.Reason != ReasonNoPayment {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonNoPayment)
	}
	if ent != nil {
		t.Error("expected nil entitlement")
	}
}

func TestServiceFirstCheckActivatesWindow(t *testing.T) {
	svc, es, userID := setupService(t, false)
	es.FinalizeCapture(userID, "ORD-1", "CAP-1", 199, "USD", nil)

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, ent, err := svc.Check(userID, model.CategoryHoroscope, t1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Granted {
		t.Fatalf("decision = %+v, want granted", d)
	}
	if ent.AccessGrantedAt == nil || !ent.AccessGrantedAt.Equal(t1) {
		t.Errorf("granted at = %v, want %v", ent.AccessGrantedAt, t1)
	}
	if d := ent.AccessExpiresAt.Sub(*ent.AccessGrantedAt); d != model.WindowDuration {
		t.Errorf("window duration = %v, want %v", d, model.WindowDuration)
	}
}

func TestServiceConcurrentFirstChecksActivateOnce(t *testing.T) {
	svc, es, userID := setupService(t, false)
	es.FinalizeCapture(userID, "ORD-1", "CAP-1", 199, "USD", nil)

	var wg sync.WaitGroup
	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}
	for _, now := range times {
		wg.Add(1)
		go func(now time.Time) {
			defer wg.Done()
			d, _, err := svc.Check(userID, model.CategoryTarot, now)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if !d.Granted {
				t.Errorf("concurrent first check denied: %+v", d)
			}
		}(now)
	}
	wg.Wait()

	ent, err := es.LatestCompletedByUser(userID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ent.AccessGrantedAt == nil {
		t.Fatal("window never activated")
	}
	// Exactly one of the two instants won; either way the invariant holds.
	if d := ent.AccessExpiresAt.Sub(*ent.AccessGrantedAt); d != model.WindowDuration {
		t.Errorf("window duration = %v, want %v", d, model.WindowDuration)
	}
}

func TestServiceConsumeThenRecheck(t *testing.T) {
	svc, es, userID := setupService(t, false)
	es.FinalizeCapture(userID, "ORD-1", "CAP-1", 199, "USD", nil)

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, ent, err := svc.Check(userID, model.CategoryHoroscope, t1.Add(90*time.Minute))
	if err != nil || !d.Granted {
		t.Fatalf("check: d=%+v err=%v", d, err)
	}

	if err := svc.MarkConsumed(ent, model.CategoryHoroscope); err != nil {
		t.Fatalf("mark consumed: %v", err)
	}

	d, _, err = svc.Check(userID, model.CategoryHoroscope, t1.Add(91*time.Minute))
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if d.Granted || d.Reason != ReasonCategoryUsed {
		t.Errorf("recheck = %+v, want Denied(category_already_used)", d)
	}

	d, _, err = svc.Check(userID, model.CategoryNumerology, t1.Add(91*time.Minute))
	if err != nil {
		t.Fatalf("other category: %v", err)
	}
	if !d.Granted {
		t.Errorf("other category = %+v, want granted", d)
	}
}

func TestServiceBypassGrantsWithoutPayment(t *testing.T) {
	svc, _, userID := setupService(t, true)

	d, ent, err := svc.Check(userID, model.CategoryTarot, time.Now().UTC())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Granted {
		t.Errorf("bypass decision = %+v, want granted", d)
	}
	if err := svc.MarkConsumed(ent, model.CategoryTarot); err != nil {
		t.Errorf("bypass mark consumed: %v", err)
	}
}
