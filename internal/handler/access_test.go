package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazelvane/arcana/internal/paypal"
)

func TestAccessCheckNoPayment(t *testing.T) {
	db := setupDB(t)
	u := seedUser(t, db, "luna@example.com")

	h := NewAccessHandler(newAccessService(db), slog.Default())

	rec := httptest.NewRecorder()
	h.Check(rec, authedRequest("GET", "/api/access?category=tarot", nil, u.ID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed {
		t.Error("expected access denied without payment")
	}
	if resp.Reason != "no_payment" {
		t.Errorf("reason = %q, want no_payment", resp.Reason)
	}
}

func TestAccessCheckAfterPayment(t *testing.T) {
	db := setupDB(t)
	u := seedUser(t, db, "luna@example.com")

	gw := &fakeGateway{
		order:   &paypal.Order{OrderID: "ORDER-1", ApprovalURL: "https://pay.example/approve"},
		capture: completedCapture("ORDER-1"),
	}
	orch := newOrchestrator(t, db, gw)
	NewOrderHandler(orch, slog.Default()).Create(httptest.NewRecorder(), authedRequest("POST", "/api/orders", nil, u.ID))
	if _, err := orch.Capture(t.Context(), u.ID, "ORDER-1"); err != nil {
		t.Fatalf("capture: %v", err)
	}

	h := NewAccessHandler(newAccessService(db), slog.Default())

	rec := httptest.NewRecorder()
	h.Check(rec, authedRequest("GET", "/api/access?category=tarot", nil, u.ID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Allowed   bool   `json:"allowed"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Allowed {
		t.Errorf("expected access granted after payment: %s", rec.Body.String())
	}
	if resp.ExpiresAt == "" {
		t.Error("expected window expiry in response")
	}
}

func TestAccessCheckUnknownCategory(t *testing.T) {
	db := setupDB(t)
	u := seedUser(t, db, "luna@example.com")

	h := NewAccessHandler(newAccessService(db), slog.Default())

	rec := httptest.NewRecorder()
	h.Check(rec, authedRequest("GET", "/api/access?category=palmistry", nil, u.ID))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
