// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/OwonaMedia/support-engine/internal/analyzer"
	"github.com/OwonaMedia/support-engine/internal/approval"
	approvalpostgres "github.com/OwonaMedia/support-engine/internal/approval/postgres"
	"github.com/OwonaMedia/support-engine/internal/autopatch"
	"github.com/OwonaMedia/support-engine/internal/config"
	"github.com/OwonaMedia/support-engine/internal/drift"
	driftpostgres "github.com/OwonaMedia/support-engine/internal/drift/postgres"
	"github.com/OwonaMedia/support-engine/internal/engine"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
	knowledgepostgres "github.com/OwonaMedia/support-engine/internal/knowledge/postgres"
	"github.com/OwonaMedia/support-engine/internal/notify"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
	"github.com/OwonaMedia/support-engine/internal/pkg/httputil"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
	"github.com/OwonaMedia/support-engine/internal/pkg/postgres"
	"github.com/OwonaMedia/support-engine/internal/planner"
	"github.com/OwonaMedia/support-engine/internal/resolution"
	"github.com/OwonaMedia/support-engine/internal/tickets"
	ticketspostgres "github.com/OwonaMedia/support-engine/internal/tickets/postgres"
	"github.com/OwonaMedia/support-engine/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	engine        *engine.Engine
	driftRunner   *drift.Runner
	bgCancel      context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := runMigrations(cfg.Database); err != nil {
		db.Close()
		return nil, err
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		bgCancel: bgCancel,
	}

	go app.collectDBMetrics(bgCtx)

	router, err := app.setup(bgCtx)
	if err != nil {
		db.Close()
		bgCancel()
		return nil, fmt.Errorf("setup: %w", err)
	}

	app.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server", "addr", a.config.Server.MetricsAddr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server", "addr", a.config.Server.Addr)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.bgCancel()

	if a.driftRunner != nil {
		a.driftRunner.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Engine returns the resolution engine instance.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// setup wires every component and returns the main router. Background work
// (ticket polling, drift schedule) is bound to ctx.
func (a *App) setup(ctx context.Context) (*chi.Mux, error) {
	index := a.loadKnowledge()

	ticketsRepo := ticketspostgres.NewRepository(a.db)
	approvalRepo := approvalpostgres.NewRepository(a.db)
	driftRepo := driftpostgres.NewRepository(a.db)
	knowledgeRepo := knowledgepostgres.NewRepository(a.db)

	// Operator-curated documents live in the database alongside the
	// markdown tree; both feed the same index.
	if docs, err := knowledgeRepo.ListAll(ctx); err != nil {
		a.logger.Warn("failed to load stored knowledge documents", "error", err)
	} else {
		for _, doc := range docs {
			index.Add(doc)
		}
	}

	approvalSender := notify.NewWebhookSender(notify.Config{
		URL:           a.config.Approval.WebhookURL,
		RatePerSecond: a.config.Notify.RatePerSecond,
		Burst:         a.config.Notify.Burst,
	})
	notifySender := notify.NewWebhookSender(notify.Config{
		URL:           a.config.Notify.WebhookURL,
		RatePerSecond: a.config.Notify.RatePerSecond,
		Burst:         a.config.Notify.Burst,
	})

	gate := approval.NewGate(approvalRepo, approvalSender,
		a.config.Approval.WaitTimeout, a.config.Approval.PollInterval)

	guarantee := resolution.NewGuarantee(ticketsRepo, notifySender,
		a.config.Engine.MaxAutoFixAttempts, a.config.Engine.EscalationCooldown)

	a.engine = engine.New(engine.Config{
		Tickets:         ticketsRepo,
		Matcher:         analyzer.New(index),
		Planner:         planner.New(a.newChatClient(), a.config.LLM.Timeout),
		Approvals:       gate,
		Autopatch:       autopatch.NewWriter(a.config.Engine.AutopatchDir),
		Guarantee:       guarantee,
		Knowledge:       index,
		ApprovalTimeout: a.config.Approval.WaitTimeout,
	})

	go a.engine.Run(ctxlog.WithLogger(ctx, a.logger), a.config.Engine.PollInterval)

	if a.config.Drift.Enabled {
		a.driftRunner = drift.NewRunner(a.config.Drift.Schedule, index,
			drift.NewStripeMonitor(driftRepo, nil),
			drift.NewPayPalMonitor(driftRepo, nil),
			drift.NewMollieMonitor(driftRepo, nil),
			drift.NewHetznerMonitor(driftRepo, nil),
			drift.NewN8NMonitor(driftRepo, nil),
			drift.NewSupabaseMonitor(driftRepo, nil),
		)
		if err := a.driftRunner.Start(); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	engineHandler := engine.NewHandler(a.engine, driftRepo)
	ticketsHandler := tickets.NewHandler(ticketsRepo)
	r.Route("/api/v1", func(r chi.Router) {
		ticketsHandler.RegisterRoutes(r)
		engineHandler.RegisterRoutes(r)
	})

	return r, nil
}

// loadKnowledge builds the knowledge index from the configured directory.
// A missing or unreadable directory degrades to an empty index: the engine
// still runs, plans are just generated without grounding documents.
func (a *App) loadKnowledge() *knowledge.Index {
	dir := a.config.Engine.KnowledgeDir
	if dir == "" {
		return knowledge.NewIndex()
	}

	index, err := knowledge.Load(os.DirFS(dir))
	if err != nil {
		a.logger.Warn("knowledge base not loaded", "dir", dir, "error", err)
		return knowledge.NewIndex()
	}

	a.logger.Info("knowledge base loaded", "dir", dir, "documents", index.Len())
	return index
}

// newChatClient returns the configured LLM client, or nil when no API key
// is set. The planner degrades to its fallback plan on a nil client.
func (a *App) newChatClient() planner.ChatClient {
	if a.config.LLM.APIKey == "" {
		a.logger.Warn("no llm api key configured, plan generation disabled")
		return nil
	}

	return planner.NewOpenAIClient(a.config.LLM.APIKey,
		planner.WithBaseURL(a.config.LLM.BaseURL),
		planner.WithModel(a.config.LLM.Model),
		planner.WithTemperature(a.config.LLM.Temperature),
		planner.WithMaxTokens(a.config.LLM.MaxTokens),
		planner.WithHTTPClient(&http.Client{Timeout: a.config.LLM.Timeout}),
	)
}

func runMigrations(cfg config.DatabaseConfig) error {
	if cfg.MigrationsPath == "" {
		return nil
	}

	migrator, err := migrate.New("file://"+cfg.MigrationsPath, cfg.URL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = migrator.Close() }()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
