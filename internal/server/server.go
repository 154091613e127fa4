package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/history"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"github.com/raaihank/doc-sentinel/internal/web"
	"github.com/raaihank/doc-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by / and /info
var Version = "0.1.0"

// RunLister reads the run history
type RunLister interface {
	Recent(ctx context.Context, limit int, supplier string) ([]history.Run, error)
	Summary(ctx context.Context) (*history.Summary, error)
}

// Options holds the optional collaborators
type Options struct {
	Hub  *websocket.Hub
	Runs RunLister
	// Model is reported by /info
	Model string
}

// Server exposes the extraction and admin HTTP surface
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	processor *processor.Processor
	engine    *anonymizer.Engine
	store     *suppliers.Store
	hub       *websocket.Hub
	runs      RunLister
	model     string
	limiter   *RateLimiter
	router    *mux.Router
	server    *http.Server
	started   time.Time
	done      chan struct{}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, proc *processor.Processor, opts Options) (*Server, error) {
	engine := proc.Engine()
	if engine == nil || engine.Suppliers() == nil {
		return nil, fmt.Errorf("processor needs an engine with a supplier store")
	}

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		processor: proc,
		engine:    engine,
		store:     engine.Suppliers(),
		hub:       opts.Hub,
		runs:      opts.Runs,
		model:     opts.Model,
		router:    mux.NewRouter(),
		started:   time.Now(),
		done:      make(chan struct{}),
	}
	if cfg.RateLimit.Enabled {
		server.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.Handle("/extraer", s.limited(s.handleExtract)).Methods(http.MethodPost)
	s.router.Handle("/extraer-archivo", s.limited(s.handleExtractFile)).Methods(http.MethodPost)
	s.router.Handle("/extraer-dades-venda", s.limited(s.handleExtractSalesData)).Methods(http.MethodPost)

	admin := s.router.PathPrefix("/admin/anonymization").Subrouter()
	admin.HandleFunc("/proveedores", s.handleListSuppliers).Methods(http.MethodGet)
	// agregar-dato must be registered before the {id} routes
	admin.HandleFunc("/proveedor/agregar-dato", s.handleAddSupplierValue).Methods(http.MethodPost)
	admin.HandleFunc("/proveedor/{id}", s.handleGetSupplier).Methods(http.MethodGet)
	admin.HandleFunc("/proveedor/{id}", s.handlePutSupplier).Methods(http.MethodPost)
	admin.HandleFunc("/proveedor/{id}", s.handleDeleteSupplier).Methods(http.MethodDelete)
	admin.HandleFunc("/test", s.handleTestAnonymization).Methods(http.MethodPost)
	admin.HandleFunc("/patrones", s.handlePatterns).Methods(http.MethodGet)

	s.router.HandleFunc("/admin/runs", s.handleRuns).Methods(http.MethodGet)

	if s.hub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
	}
}

func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return s.rateLimitMiddleware(h)
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting doc-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("suppliers", s.store.Len()),
		zap.Bool("rate_limit", s.limiter != nil),
	)
	if s.limiter != nil {
		s.limiter.StartCleanupRoutine(s.done)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping doc-sentinel server")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// handleRoot describes the service
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "doc-sentinel API",
		"version": Version,
		"endpoints": map[string]string{
			"extraer":             "/extraer",
			"extraer-archivo":     "/extraer-archivo",
			"extraer-dades-venda": "/extraer-dades-venda",
			"admin":               "/admin/anonymization",
			"health":              "/health",
			"info":                "/info",
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports the active configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	groups := s.engine.Patterns()
	detectors := make([]string, len(groups))
	for i, g := range groups {
		detectors[i] = g.Name
	}

	info := map[string]any{
		"name":             "doc-sentinel",
		"version":          Version,
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"model":            s.model,
		"detectors":        detectors,
		"suppliers":        s.store.Len(),
		"supplier_backend": s.store.Backend().String(),
		"apply_heuristics": s.config.Anonymization.ApplyHeuristics,
		"cache_enabled":    s.config.Cache.Enabled,
		"history_enabled":  s.runs != nil,
		"rate_limit":       s.limiter != nil,
	}
	if s.hub != nil {
		info["websocket"] = s.hub.GetStats()
	}
	s.writeJSON(w, r, http.StatusOK, info)
}
