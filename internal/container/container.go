package container

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"goamcc/adapters/postgres"
	"goamcc/app"
	"goamcc/internal"
	"goamcc/internal/config"
	"goamcc/internal/errors"
	"goamcc/internal/metrics"
	"goamcc/internal/migration"
	"goamcc/internal/session"
	"goamcc/ports"
	"goamcc/ui"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Run execution
	RunRepo  ports.RunRepository
	Service  *app.CounterfactualService
	Runs     *session.Registry
	Defaults config.RunConfig

	App *ui.App
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}, nil
}

// Bootstrap builds a ready container: PostgreSQL-backed when a database is
// configured, in-memory otherwise
func Bootstrap(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	c, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled() {
		return c, c.InitInMemory()
	}

	db, err := OpenDatabase(ctx, cfg.Database, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// OpenDatabase connects to DATABASE_URL and applies migrations
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *internal.Logger) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := migration.NewRunner(logger).Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return db, nil
}

// InitWithDatabase persists runs to PostgreSQL
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	c.Logger.Info("[Container] run store: postgres")
	return c.init()
}

// InitInMemory keeps runs in process memory
func (c *Container) InitInMemory() error {
	c.RunRepo = session.NewMemoryRunStore()
	c.Logger.Info("[Container] run store: memory")
	return c.init()
}

func (c *Container) init() error {
	defaults, err := c.loadDefaults()
	if err != nil {
		return err
	}
	c.Defaults = defaults

	c.Service = app.NewCounterfactualService(c.Logger,
		app.WithMetrics(c.Metrics),
		app.WithRepository(c.RunRepo),
	)
	c.Runs = session.NewRegistry(c.Service.RunWithID, c.Config.Server.MaxProcessingTime, c.RunRepo, c.Logger)

	c.App, err = ui.NewApp(ui.Config{
		Defaults:      c.Defaults,
		Gatherer:      c.Registry,
		RunsPerMinute: c.Config.Server.RunsPerMinute,
		RunBurst:      c.Config.Server.RunBurst,
	}, c.Runs, c.RunRepo, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize UI: %w", err)
	}
	return nil
}

// loadDefaults reads the run config file when present. Without it the
// form starts from the built-in defaults and data_path must be supplied
// per request.
func (c *Container) loadDefaults() (config.RunConfig, error) {
	path := c.Config.Search.RunConfigPath
	if path == "" {
		return config.DefaultRunConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.Logger.Warn("[Container] run config %s not found, using defaults", path)
		return config.DefaultRunConfig(), nil
	}
	cfg, err := config.LoadRunConfig(path)
	if err != nil {
		return config.RunConfig{}, err
	}
	return *cfg, nil
}

// ListenAndServe serves the UI until ctx is cancelled, then drains
// in-flight requests and background runs within the shutdown timeout
func (c *Container) ListenAndServe(ctx context.Context) error {
	if c.App == nil {
		return fmt.Errorf("container not initialized")
	}
	server := &http.Server{
		Addr:    ":" + c.Config.Server.Port,
		Handler: c.App.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("Starting server on port %s", c.Config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
	defer cancel()
	c.Logger.Info("Shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return c.Shutdown(shutdownCtx)
}

// Shutdown stops background runs and closes the database
func (c *Container) Shutdown(ctx context.Context) error {
	var err error
	if c.Runs != nil {
		err = multierr.Append(err, c.Runs.Shutdown(ctx))
	}
	if c.DB != nil {
		err = multierr.Append(err, c.DB.Close())
	}
	c.Logger.Sync()
	return err
}
