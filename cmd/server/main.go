package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/mashareq-erp/be-procurement/internal/client"
	"github.com/mashareq-erp/be-procurement/internal/config"
	"github.com/mashareq-erp/be-procurement/internal/database"
	"github.com/mashareq-erp/be-procurement/internal/handler"
	"github.com/mashareq-erp/be-procurement/internal/logger"
	"github.com/mashareq-erp/be-procurement/internal/middleware"
	"github.com/mashareq-erp/be-procurement/internal/repository"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
	})

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Msg("Starting Procurement Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PGMaxConns,
		MinConns: cfg.PGMinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// NATS is optional: without it workflow events are logged and dropped.
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("NATS unavailable, notifications disabled")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATSURL).Msg("NATS connection established")
		}
	}

	// Initialize repositories
	thresholdRepo := repository.NewThresholdRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	stepRepo := repository.NewStepRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	vendorRepo := repository.NewVendorRepository(db)

	// Initialize external clients
	aiClient := client.NewAIClient(cfg.AIBaseURL, cfg.AIModel, cfg.AIAPIKey)
	identityClient := client.NewIdentityClient(cfg.IdentityURL)
	notifier := client.NewNotificationPublisher(nc, log.Logger)

	// Initialize services
	approvalService := service.NewApprovalService(
		thresholdRepo, workflowRepo, stepRepo, auditRepo,
		identityClient, notifier, cfg.OverrideRole, log)
	thresholdService := service.NewThresholdService(thresholdRepo, log)
	comparisonService := service.NewComparisonService(aiClient, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(documentRepo, vendorRepo,
		approvalService, thresholdService, comparisonService, cfg.CompanyName, log)
	metrics := middleware.NewHTTPMetrics(cfg.ServiceName)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	// Document routes
	mux.HandleFunc("/api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDocuments(w, r)
		case http.MethodPost:
			httpHandler.CreateDocument(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/documents/get", httpHandler.GetDocument)
	mux.HandleFunc("/api/v1/documents/submit", httpHandler.SubmitDocument)
	mux.HandleFunc("/api/v1/documents/resubmit", httpHandler.ResubmitDocument)

	// Workflow routes
	mux.HandleFunc("/api/v1/workflows/get", httpHandler.GetWorkflow)
	mux.HandleFunc("/api/v1/workflows/approve", httpHandler.ApproveStep)
	mux.HandleFunc("/api/v1/workflows/reject", httpHandler.RejectStep)
	mux.HandleFunc("/api/v1/workflows/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/workflows/history", httpHandler.ApprovalHistory)

	// Threshold routes
	mux.HandleFunc("/api/v1/thresholds", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListThresholds(w, r)
		case http.MethodPost:
			httpHandler.CreateThreshold(w, r)
		case http.MethodPut:
			httpHandler.UpdateThreshold(w, r)
		case http.MethodDelete:
			httpHandler.DeleteThreshold(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Vendor routes
	mux.HandleFunc("/api/v1/vendors", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListVendors(w, r)
		case http.MethodPost:
			httpHandler.CreateVendor(w, r)
		case http.MethodPut:
			httpHandler.UpdateVendor(w, r)
		case http.MethodDelete:
			httpHandler.DeleteVendor(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Quotation comparison routes
	mux.HandleFunc("/api/v1/comparisons/analyze", httpHandler.AnalyzeQuotations)
	mux.HandleFunc("/api/v1/comparisons/export", httpHandler.ExportComparison)

	// Apply middleware
	var h http.Handler = mux
	h = metrics.Instrument(cfg.ServiceName, h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: h,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
