package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"kharcha/internal/budget"
	"kharcha/internal/categorize"
	"kharcha/internal/categorize/llm"
	"kharcha/internal/config"
	apphttp "kharcha/internal/http"
	"kharcha/internal/identity"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/notify"
	"kharcha/internal/services"
	"kharcha/internal/store"
	"kharcha/internal/trips"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.DefaultConfig().Level,
		Component: "kharcha",
		Pretty:    os.Getenv("LOG_PRETTY") == "true",
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Data backend
	var st store.Store
	switch cfg.DataBackend {
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		st = sqliteStore
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		st = store.NewMemoryStore()
		logger.Info("Initialized memory backend")
	}
	defer st.Close()

	// Event bus
	var bus notify.Bus
	switch cfg.EventBus {
	case "amqp":
		amqpBus, err := notify.NewAMQPBus(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to connect AMQP bus", "error", err)
			os.Exit(1)
		}
		defer amqpBus.Close()
		bus = amqpBus
		logger.Info("Initialized amqp event bus", "exchange", cfg.AMQPExchange)
	default:
		bus = notify.NewMemoryBus()
		logger.Info("Initialized memory event bus")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Primary classifier is optional; without an endpoint every
	// categorization takes the keyword fallback.
	var classifier categorize.Classifier
	if cfg.ClassifierEndpoint != "" {
		classifier = llm.New(cfg.ClassifierEndpoint, cfg.ClassifierAPIKey, cfg.ClassifierModel, cfg.ClassifierTimeout)
		logger.Info("Initialized classifier", "endpoint", cfg.ClassifierEndpoint, "model", cfg.ClassifierModel)
	} else {
		logger.Info("No classifier endpoint configured, keyword fallback only")
	}
	resolver := categorize.NewResolver(classifier, categorize.WithObserver(m))

	ledger := budget.NewLedger(st, st)
	ident := identity.NewService(cfg.GoogleClientID, []byte(cfg.SessionSecret), cfg.SessionTTL)

	srv := apphttp.NewServer(":"+cfg.Port,
		services.NewExpenseService(st, resolver, ledger, bus, m, logger),
		services.NewCategoryService(st, m, logger),
		trips.NewService(st),
		ledger,
		ident,
		bus,
		m,
		logger,
	)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting kharcha server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
