package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	httpAdapter "github.com/lorrc/ticket-workflow/internal/adapters/primary/http"
	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-workflow/internal/adapters/primary/scheduler"
	"github.com/lorrc/ticket-workflow/internal/adapters/primary/websocket"
	"github.com/lorrc/ticket-workflow/internal/adapters/secondary/email"
	"github.com/lorrc/ticket-workflow/internal/adapters/secondary/memory"
	natsAdapter "github.com/lorrc/ticket-workflow/internal/adapters/secondary/nats"
	"github.com/lorrc/ticket-workflow/internal/adapters/secondary/postgres"
	redisAdapter "github.com/lorrc/ticket-workflow/internal/adapters/secondary/redis"
	"github.com/lorrc/ticket-workflow/internal/auth"
	"github.com/lorrc/ticket-workflow/internal/config"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/services"
	"github.com/lorrc/ticket-workflow/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		AddSource:   !cfg.IsProduction(),
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, cancelRuntime := context.WithCancel(context.Background())
	defer cancelRuntime()

	// 3. Initialize Storage
	var (
		stores services.Stores
		roster ports.Roster
		pool   *pgxpool.Pool
	)

	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		stores = services.Stores{
			Tickets:   store.Tickets(),
			Audit:     store.Audit(),
			Timers:    store.Timers(),
			TxManager: store,
		}
		roster = store.Directory()

	default:
		if cfg.Store.RunMigrations {
			if err := postgres.RunMigrations(cfg.Database.URL, cfg.Store.MigrationsDir, logger); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
		}

		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}

		// Apply database configuration
		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
		poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
		poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		logger.Info("database connection established")

		stores = services.Stores{
			Tickets:   postgres.NewTicketRepository(pool),
			Audit:     postgres.NewAuditRepository(pool),
			Timers:    postgres.NewTimerRepository(pool),
			TxManager: postgres.NewTransactionManager(pool),
		}
		roster = postgres.NewDirectoryRepository(pool)
	}

	// Roster cache (optional)
	var rosterCache *redisAdapter.DirectoryCache
	if cfg.Redis.Addr != "" {
		redisClient := redisAdapter.NewClient(ctx, redisAdapter.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, logger)
		defer func(c *goredis.Client) { _ = c.Close() }(redisClient)

		rosterCache = redisAdapter.NewDirectoryCache(redisClient, roster, cfg.Redis.TTL, logger)
		roster = rosterCache
	}

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Event bus (optional); without it notifications are logged as mock mail
	var (
		broadcaster ports.EventBroadcaster = hub
		notifier    ports.Notifier         = email.NewMockSMTPNotifier(logger)
		publisher   *natsAdapter.Publisher
	)
	if cfg.NATS.URL != "" {
		publisher, err = natsAdapter.Connect(natsAdapter.Config{
			URL:           cfg.NATS.URL,
			ClientName:    cfg.NATS.ClientName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		broadcaster = services.Broadcasters{hub, publisher}
		notifier = publisher
	}

	// 5. Initialize Rate Limiters
	var generalRateLimiter *mw.RateLimiter
	var bulkRateLimiter *mw.RateLimitByKey
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		bulkRateLimiter = mw.NewRateLimitByKey(cfg.RateLimit.BulkRPS, cfg.RateLimit.BulkBurst)
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Services (Core)
	clock := services.SystemClock{}
	dispatcher := services.NewDispatcher(notifier, broadcaster, hub, hub, logger)
	policy := services.TimerPolicy{
		UndoWindow:     cfg.Workflow.UndoWindow,
		AutoCloseAfter: cfg.Workflow.AutoCloseAfter,
	}

	workflowService := services.NewWorkflowService(stores, roster, dispatcher, clock, policy, logger)
	timerService := services.NewTimerService(stores, workflowService, dispatcher, clock, cfg.Timers.BatchSize, logger)
	splitService := services.NewSplitService(stores, dispatcher, clock, logger)
	reassignmentService := services.NewReassignmentService(stores, roster, dispatcher, clock)
	assigneeService := services.NewAssigneeService(roster)

	// Subscriptions by non-members are checked against ticket visibility
	hub.SetAuthorizer(workflowService)

	// Timer worker
	timerWorker := scheduler.New(scheduler.Config{
		WorkerInterval: cfg.Timers.PollInterval,
		BatchSize:      cfg.Timers.BatchSize,
	}, timerService, clock, logger)
	if err := timerWorker.Start(ctx); err != nil {
		logger.Error("failed to start timer worker", "error", err)
		os.Exit(1)
	}

	// Handlers (Primary Adapters)
	ticketHandler := httpAdapter.NewTicketHandler(workflowService, timerService, splitService, reassignmentService, errorHandler, logger)
	if bulkRateLimiter != nil {
		ticketHandler.WithBulkLimiter(bulkRateLimiter.Middleware)
	}
	assigneeHandler := httpAdapter.NewAssigneeHandler(assigneeService, errorHandler, logger)
	adminHandler := httpAdapter.NewAdminHandler(assigneeService, errorHandler, logger)
	meHandler := httpAdapter.NewMeHandler(logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger)

	var healthHandler *httpAdapter.HealthHandler
	if pool != nil {
		healthHandler = httpAdapter.NewHealthHandler(pool, cfg.App.Version)
	} else {
		healthHandler = httpAdapter.NewHealthHandler(nil, cfg.App.Version)
	}
	if rosterCache != nil {
		healthHandler.WithCheck("redis", rosterCache)
	}
	if publisher != nil {
		healthHandler.WithCheck("nats", publisher)
	}

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Apply general rate limiting if enabled
	if generalRateLimiter != nil {
		r.Use(generalRateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Route("/tickets", ticketHandler.RegisterRoutes)
			r.Route("/departments", assigneeHandler.RegisterRoutes)
			r.Route("/admin", adminHandler.RegisterRoutes)
			r.Route("/me", meHandler.RegisterRoutes)
		})
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := timerWorker.Stop(); err != nil {
		logger.Warn("timer worker stop", "error", err)
	}

	// Let queued broadcasts and notifications finish before connections close
	workflowService.Shutdown()
	cancelRuntime()

	logger.Info("server shutdown complete")
}
