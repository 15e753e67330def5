package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoddukzoa12/openclaw/internal/allowance"
	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/internal/gateway"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/hoddukzoa12/openclaw/internal/paywall"
	"github.com/hoddukzoa12/openclaw/internal/verify"
	"github.com/hoddukzoa12/openclaw/pkg/cache"
	"github.com/hoddukzoa12/openclaw/pkg/database"
	"github.com/hoddukzoa12/openclaw/pkg/events"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting OpenClaw payment engine")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Persistence. Both Postgres and Redis are optional: without them the
	// engine runs fully in memory, which is the single-node deployment mode.
	var (
		sessionStore   ledger.Store    = ledger.NewMemoryStore()
		requestStore   paywall.Store   = paywall.NewMemoryStore()
		allowanceStore allowance.Store = allowance.NewMemoryStore()
	)
	if cfg.Database.Host != "" {
		db, err := database.NewDatabase(cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.EnsureSchema(schemaCtx); err != nil {
			cancel()
			logger.Fatal("failed to ensure database schema", zap.Error(err))
		}
		cancel()
		logger.Info("connected to database")

		sessionStore = ledger.NewPostgresStore(db)
		requestStore = paywall.NewPostgresStore(db)
		allowanceStore = allowance.NewPostgresStore(db)
	} else {
		logger.Info("no database configured, using in-memory stores")
	}

	var proofStore verify.ProofStore = verify.NewMemoryProofStore(cfg.Payment.RetentionWindow)
	if cfg.Redis.Host != "" {
		redisCache, err := cache.NewCache(cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		logger.Info("connected to Redis")

		proofStore = verify.NewRedisProofStore(redisCache, cfg.Payment.RetentionWindow)
	} else {
		logger.Info("no Redis configured, using in-memory proof store")
	}

	// Initialize event bus with the audit-log observer
	eventBus := events.NewBus(logger)
	eventBus.SubscribeAudit(logger)

	// Core engine wiring
	sessions := ledger.New(sessionStore, cfg.Payment, logger)
	requests := paywall.NewService(requestStore, sessions, cfg.Payment, eventBus, logger)

	var facilitator verify.FacilitatorClient
	if cfg.Payment.FacilitatorURL != "" {
		facilitator = verify.NewHTTPFacilitator(cfg.Payment.FacilitatorURL)
	}
	var chain verify.ChainReader
	if cfg.Payment.ChainIndexerURL != "" {
		chain = verify.NewIndexerClient(cfg.Payment.ChainIndexerURL)
	}
	verifier := verify.New(requests, sessions, proofStore, facilitator, chain, cfg.Payment, eventBus, logger)

	var allowanceReader allowance.Reader
	if cfg.Payment.ChainIndexerURL != "" {
		allowanceReader = allowance.NewHTTPReader(cfg.Payment.ChainIndexerURL, cfg.Payment.TokenAddress, cfg.Payment.PayTo)
	}
	allowances := allowance.NewEngine(allowanceStore, allowanceReader, cfg.Payment, eventBus, logger)

	// Background expiry sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janitor := paywall.NewJanitor(requests, cfg.Payment.CleanupInterval, logger)
	janitor.Start(ctx)

	// Initialize API gateway
	gw := gateway.New(sessions, requests, verifier, allowances, cfg.Payment, logger)
	logger.Info("initialized API gateway")

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server",
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	janitor.Stop()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
