package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/veldt/genforge/internal/config"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/events"
	"github.com/veldt/genforge/internal/generation"
	"github.com/veldt/genforge/internal/ledger"
	"github.com/veldt/genforge/internal/platform/genai"
	"github.com/veldt/genforge/internal/platform/postgres"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/service/auth"
	"github.com/veldt/genforge/internal/store"
	"github.com/veldt/genforge/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore   store.TaskStore
	ledgerStore store.LedgerStore

	// Service interfaces
	jwtService   auth.JWTService
	creditLedger ledger.CreditLedger
	taskService  service.TaskService

	// Compute adapters
	adapters *generation.Registry

	// Event system
	pubSub    *gochannel.GoChannel
	publisher events.Publisher

	// Background processing
	supervisor *task.PollingSupervisor
	dispatcher *task.Dispatcher
}

// newApplication creates a new application instance with all dependencies initialized.
// It accepts core dependencies like configuration, logger, and database connection that
// must be established before application initialization.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize JWT service
	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// Initialize stores
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.ledgerStore = postgres.NewPostgresLedgerStore(db, logger)

	// Initialize the credit ledger
	app.creditLedger, err = ledger.NewCreditLedger(app.ledgerStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credit ledger: %w", err)
	}

	// Initialize the compute adapter registry. Both work types run on
	// the Gemini adapter for now.
	geminiAdapter, err := genai.NewGeminiAdapter(
		ctx,
		logger.With("component", "gemini_adapter"),
		cfg.Compute,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini adapter: %w", err)
	}

	app.adapters = generation.NewRegistry()
	for _, workType := range []domain.WorkType{
		domain.WorkTypeImageGeneration,
		domain.WorkTypeTextGeneration,
	} {
		if err := app.adapters.Register(workType, geminiAdapter); err != nil {
			return nil, fmt.Errorf("failed to register adapter for %s: %w", workType, err)
		}
	}
	logger.Info("compute adapters registered", "work_types", app.adapters.WorkTypes())

	// Initialize the event publisher. Synchronous in-process handlers
	// register on the emitter; the watermill bridge is one of them and
	// fans events out to the pub/sub channel for subscribers.
	app.pubSub = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
	emitter := events.NewInMemoryPublisher(logger)
	emitter.RegisterHandler(events.NewWatermillPublisher(app.pubSub, events.TopicTaskLifecycle, logger))
	emitter.RegisterHandler(events.NewLoggingHandler(logger))
	app.publisher = emitter

	// Initialize the task service
	costPolicy := service.NewStandardCostPolicy(cfg.Cost, nil)
	runTx := func(ctx context.Context, fn store.TxFn) error {
		return store.RunInTransaction(ctx, db, fn)
	}
	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.creditLedger,
		app.adapters,
		app.publisher,
		costPolicy,
		runTx,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	// Initialize background processing
	app.supervisor = task.NewPollingSupervisor(
		app.taskService,
		app.adapters,
		task.SupervisorConfig{
			PollInterval: time.Duration(cfg.Task.PollIntervalSeconds) * time.Second,
			MaxAttempts:  cfg.Task.PollMaxAttempts,
		},
		logger,
	)
	app.dispatcher = task.NewDispatcher(
		app.taskService,
		app.supervisor,
		app.taskStore,
		task.DispatcherConfig{
			WorkerCount:       cfg.Task.WorkerCount,
			IdleInterval:      2 * time.Second,
			ReconcileGrace:    time.Duration(cfg.Task.ReconcileGraceMinutes) * time.Minute,
			ReconcileInterval: time.Duration(cfg.Task.ReconcileIntervalMinutes) * time.Minute,
			Retention:         time.Duration(cfg.Task.RetentionDays) * 24 * time.Hour,
		},
		logger,
	)
	app.dispatcher.Start()

	logger.Info("application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	err := app.startHTTPServer(ctx, router)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	// Stop background processing first so nothing touches the store
	// after the pool closes.
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if app.pubSub != nil {
		if err := app.pubSub.Close(); err != nil {
			app.logger.Error("error closing event channel", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
