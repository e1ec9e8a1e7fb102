package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hazelvane/arcana/internal/database"
	"github.com/hazelvane/arcana/internal/email"
	"github.com/hazelvane/arcana/internal/logging"
	"github.com/hazelvane/arcana/internal/payment"
	"github.com/hazelvane/arcana/internal/paypal"
	"github.com/hazelvane/arcana/internal/reading"
	"github.com/hazelvane/arcana/internal/server"
	"github.com/hazelvane/arcana/internal/store"
)

const priceCents = 199

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	godotenv.Load()

	logger := logging.Setup(os.Getenv("ARCANA_LOG_LEVEL"), os.Getenv("ARCANA_LOG_FORMAT"))

	port := os.Getenv("ARCANA_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("ARCANA_DB_PATH")
	if dbPath == "" {
		dbPath = "arcana.db"
	}

	baseURL := os.Getenv("ARCANA_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	jwtSecret := os.Getenv("ARCANA_JWT_SECRET")
	if jwtSecret == "" {
		slog.Error("ARCANA_JWT_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	paypalBase := paypal.SandboxBaseURL
	if os.Getenv("PAYPAL_ENV") == "live" {
		paypalBase = paypal.LiveBaseURL
	}
	gateway := paypal.NewClient(paypal.Config{
		ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
		ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		BaseURL:      paypalBase,
		BrandName:    "Arcana Readings",
	})

	ctx := context.Background()
	generator, err := reading.NewGeminiGenerator(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_MODEL"))
	if err != nil {
		slog.Error("failed to create reading generator", "error", err)
		os.Exit(1)
	}
	defer generator.Close()

	emailClient := email.NewClient(os.Getenv("ARCANA_POSTMARK_TOKEN"), os.Getenv("ARCANA_FROM_EMAIL"))

	bypass, _ := strconv.ParseBool(os.Getenv("ARCANA_PAYWALL_BYPASS"))

	cfg := server.Config{
		JWTSecret: jwtSecret,
		Payment: payment.Config{
			AmountCents: priceCents,
			Currency:    "USD",
			Description: "Unlock your horoscope, tarot, and numerology readings",
			ReturnURL:   baseURL + "/payment/success",
			CancelURL:   baseURL + "/payment/cancelled",
		},
		PaywallBypass:  bypass,
		EmailClient:    emailClient,
		PaymentGateway: gateway,
		Generator:      generator,
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	// Sweep pending orders the redirect and webhook paths both missed.
	reconciler := payment.NewReconciler(srv.Orchestrator(), store.NewEntitlementStore(db),
		gateway, logger.With("component", "reconciler"))
	go reconciler.Run(bgCtx)

	// Hourly cleanup of expired sessions and stale rate-limit windows.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("arcana starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
