package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"tourmarket/internal/agent"
	"tourmarket/internal/booking"
	bookingapi "tourmarket/internal/booking/api"
	bookingstore "tourmarket/internal/booking/store"
	"tourmarket/internal/catalog"
	"tourmarket/internal/common/auth"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/middleware"
	natsclient "tourmarket/internal/common/nats"
	"tourmarket/internal/payment"
	paymentapi "tourmarket/internal/payment/api"
	"tourmarket/internal/promo"
	promoapi "tourmarket/internal/promo/api"
	"tourmarket/internal/withdrawal"
	withdrawalapi "tourmarket/internal/withdrawal/api"
	"tourmarket/migrations"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Database database.Config
	NATS     natsclient.Config
	Auth     auth.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Apply migrations before opening the pool
	if cfg.Database.Migrate {
		if err := database.Migrate(cfg.Database.URL, migrations.FS, ".", logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS; fall back to a no-op publisher when disabled
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := natsclient.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		if _, err := nc.EnsureStream(ctx, natsclient.DefaultStreamConfig("TOURMARKET_EVENTS", []string{"events.>"})); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}
		publisher = natsclient.NewPublisher(nc, logger)
	}

	// Stores
	agentStore := agent.NewPostgresStore(db)
	catalogStore := catalog.NewPostgresStore(db)
	bookingStore := bookingstore.New(db)
	promoStore := promo.NewPostgresStore(db)
	paymentStore := payment.NewPostgresStore(db)
	withdrawalStore := withdrawal.NewPostgresStore(db)

	// Services
	promoService := promo.NewService(promoStore, agentStore, catalogStore, logger)
	bookingService := booking.NewService(bookingStore, catalogStore, promoService, publisher, logger)
	paymentService := payment.NewService(paymentStore, agentStore, publisher, logger)
	withdrawalService := withdrawal.NewService(withdrawalStore, agentStore, publisher, logger)

	// Handlers
	bookingHandler := bookingapi.NewHandler(bookingService)
	paymentHandler := paymentapi.NewHandler(paymentService)
	promoHandler := promoapi.NewHandler(promoService)
	withdrawalHandler := withdrawalapi.NewHandler(withdrawalService)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	validateToken := auth.NewValidator(cfg.Auth)
	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks, authenticated upstream by signature verification
		r.Group(func(r chi.Router) {
			paymentHandler.WebhookRoutes(r)
		})

		// Authenticated API surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validateToken))
			bookingHandler.Routes(r)
			paymentHandler.Routes(r)
			promoHandler.Routes(r)
			withdrawalHandler.Routes(r)
			withdrawalHandler.AdminRoutes(r)
		})
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting tourmarket service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
