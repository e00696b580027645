package ui

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"goamcc/internal"
	"goamcc/internal/config"
	"goamcc/internal/session"
	"goamcc/ports"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

// App serves the run form, the run API and the metrics endpoint
type App struct {
	router    *chi.Mux
	runs      *session.Registry
	repo      ports.RunRepository
	defaults  config.RunConfig
	gatherer  prometheus.Gatherer
	admit     *rate.Limiter
	templates *template.Template
	logger    *internal.Logger
}

// Config holds UI application configuration
type Config struct {
	// Defaults seeds every run before request overrides are applied
	Defaults config.RunConfig
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	// RunsPerMinute caps run starts; zero disables the cap
	RunsPerMinute int
	RunBurst      int
}

// NewApp creates a new UI application. repo may be nil.
func NewApp(cfg Config, runs *session.Registry, repo ports.RunRepository, logger *internal.Logger) (*App, error) {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	templates, err := template.ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	var admit *rate.Limiter
	if cfg.RunsPerMinute > 0 {
		burst := cfg.RunBurst
		if burst < 1 {
			burst = 1
		}
		admit = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RunsPerMinute)), burst)
	}

	app := &App{
		router:    chi.NewRouter(),
		runs:      runs,
		repo:      repo,
		defaults:  cfg.Defaults,
		gatherer:  gatherer,
		admit:     admit,
		templates: templates,
		logger:    logger.Named("ui"),
	}

	app.setupMiddleware()
	app.setupRoutes()

	return app, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)

	a.router.Route("/api/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Post("/", a.handleStartRun)
		r.Get("/{id}", a.handleGetRun)
		r.Get("/{id}/log", a.handleRunLog)
		r.Get("/{id}/report", a.handleRunReport)
	})

	a.router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.router
}

// renderTemplate executes a named template as an HTML response
func (a *App) renderTemplate(w http.ResponseWriter, templateName string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.templates.ExecuteTemplate(w, templateName, data); err != nil {
		a.logger.Error("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
