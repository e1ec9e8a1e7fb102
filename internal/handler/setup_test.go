package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazelvane/arcana/internal/access"
	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/database"
	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/payment"
	"github.com/hazelvane/arcana/internal/paypal"
	"github.com/hazelvane/arcana/internal/reading"
	"github.com/hazelvane/arcana/internal/store"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	us := store.NewUserStore(db)
	u, err := us.Create(email, string(hash), "Luna Vale")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := us.UpdateProfile(u.ID, "Luna Vale", "1993-06-21", "Lisbon, Portugal"); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	u, err = us.GetByID(u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

// authedRequest builds a request whose context carries the user, the way the
// auth middleware would populate it.
func authedRequest(method, target string, body io.Reader, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID})
	return req.WithContext(ctx)
}

// fakeGateway is a canned payment provider.
type fakeGateway struct {
	order       *paypal.Order
	capture     *paypal.Capture
	captureErr  error
	orderStatus string
}

func (f *fakeGateway) CreateOrder(ctx context.Context, amountCents int64, currency, description, returnURL, cancelURL string) (*paypal.Order, error) {
	if f.order == nil {
		return nil, errors.New("no order configured")
	}
	return f.order, nil
}

func (f *fakeGateway) CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error) {
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return f.capture, nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, orderID string) (*paypal.OrderDetails, error) {
	return &paypal.OrderDetails{OrderID: orderID, Status: f.orderStatus}, nil
}

// stubGenerator returns fixed reading text or an error.
type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Generate(ctx context.Context, category string, profile reading.SubjectProfile) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func newOrchestrator(t *testing.T, db *sql.DB, gw payment.Provider) *payment.Orchestrator {
	t.Helper()
	cfg := payment.Config{
		AmountCents: 199,
		Currency:    "USD",
		Description: "readings",
		ReturnURL:   "http://localhost/payment/success",
		CancelURL:   "http://localhost/payment/cancelled",
	}
	return payment.NewOrchestrator(cfg, gw, store.NewEntitlementStore(db), slog.Default())
}

func newAccessService(db *sql.DB) *access.Service {
	return access.NewService(store.NewEntitlementStore(db), slog.Default(), false)
}
