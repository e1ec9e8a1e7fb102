package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazelvane/arcana/internal/access"
	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/email"
	"github.com/hazelvane/arcana/internal/handler"
	"github.com/hazelvane/arcana/internal/middleware"
	"github.com/hazelvane/arcana/internal/payment"
	"github.com/hazelvane/arcana/internal/reading"
	"github.com/hazelvane/arcana/internal/store"
	ws "github.com/hazelvane/arcana/internal/websocket"
)

type Config struct {
	JWTSecret      string
	Payment        payment.Config
	PaywallBypass  bool
	EmailClient    *email.Client
	PaymentGateway payment.Provider
	Generator      reading.Generator
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	orderH       *handler.OrderHandler
	webhookH     *handler.WebhookHandler
	accessH      *handler.AccessHandler
	readingH     *handler.ReadingHandler
	issuer       *auth.TokenIssuer
	sessionStore *store.SessionStore
	orchestrator *payment.Orchestrator
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	entitlementStore := store.NewEntitlementStore(db)

	accessSvc := access.NewService(entitlementStore, logger.With("component", "access"), cfg.PaywallBypass)

	orchestrator := payment.NewOrchestrator(cfg.Payment, cfg.PaymentGateway, entitlementStore,
		logger.With("component", "payment"))
	orchestrator.SetNotifier(&completionNotifier{
		hub:    ws.NewPaymentNotifier(hub),
		email:  cfg.EmailClient,
		users:  userStore,
		logger: logger.With("component", "notify"),
	})

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, issuer, logger.With("component", "auth")),
		orderH:       handler.NewOrderHandler(orchestrator, logger.With("component", "order")),
		webhookH:     handler.NewWebhookHandler(orchestrator, entitlementStore, logger.With("component", "webhook")),
		accessH:      handler.NewAccessHandler(accessSvc, logger.With("component", "access_handler")),
		readingH:     handler.NewReadingHandler(accessSvc, cfg.Generator, userStore, logger.With("component", "reading")),
		issuer:       issuer,
		sessionStore: sessionStore,
		orchestrator: orchestrator,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Orchestrator returns the payment orchestrator for the reconciler.
func (s *Server) Orchestrator() *payment.Orchestrator {
	return s.orchestrator
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/refresh", s.rateLimitedHandler(s.authH.Refresh))
	outerMux.HandleFunc("POST /api/logout", s.authH.Logout)
	outerMux.HandleFunc("GET /payment/success", s.orderH.Success)
	outerMux.HandleFunc("GET /payment/cancelled", s.orderH.Cancelled)
	outerMux.HandleFunc("POST /webhooks/paypal", s.webhookH.HandlePayPalWebhook)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("GET /api/profile", s.authH.Profile)
	protectedMux.HandleFunc("PUT /api/profile", s.authH.UpdateProfile)
	protectedMux.HandleFunc("POST /api/orders", s.orderH.Create)
	protectedMux.HandleFunc("POST /api/orders/{orderID}/capture", s.orderH.Capture)
	protectedMux.HandleFunc("GET /api/access", s.accessH.Check)
	protectedMux.HandleFunc("POST /api/readings/{category}", s.readingH.Create)
	protectedMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	authMiddleware := middleware.RequireAuth(s.issuer)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.KeyByIP, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
