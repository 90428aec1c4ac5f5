// Package api provides the admin HTTP API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/raid-tracker/internal/adapter"
	"github.com/raid-tracker/internal/catalog"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
	"github.com/raid-tracker/internal/worker"
)

// Service interfaces for dependency injection and testing

// CatalogSyncer triggers and reports catalog synchronization
type CatalogSyncer interface {
	RunNow(ctx context.Context, opts catalog.Options) (*models.SyncResult, error)
	Running() bool
	LastError() error
	LastResult() (*models.SyncResult, time.Time)
}

// CatalogLister lists the stored catalog
type CatalogLister interface {
	ListRaids(ctx context.Context) ([]models.RaidWithBosses, error)
}

// ProcessingService exposes the character pipeline's administrative operations
type ProcessingService interface {
	Reenqueue(ctx context.Context, job *models.QueueJob) error
	State(ctx context.Context, characterID int64) (*models.ProcessingState, error)
	QueueLengths(ctx context.Context) (map[types.Stage]int, error)
}

// RateLimitReporter reports per-provider quota state
type RateLimitReporter interface {
	States() []models.RateLimitState
}

// WorkerReporter reports one stage worker's status
type WorkerReporter interface {
	GetStatus() *worker.StageWorkerStatus
}

// Server represents the admin HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *logging.Logger
	config     *ServerConfig

	syncer     CatalogSyncer
	catalog    CatalogLister
	processing ProcessingService
	rateLimits RateLimitReporter
	providers  map[types.Provider]adapter.HealthReporter
	workers    []WorkerReporter
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RequestRPS   int // per-client requests per second
	RequestBurst int
}

// Dependencies are the components served by the admin API
type Dependencies struct {
	Syncer     CatalogSyncer
	Catalog    CatalogLister
	Processing ProcessingService
	RateLimits RateLimitReporter
	Providers  map[types.Provider]adapter.HealthReporter
	Workers    []WorkerReporter
	Logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps *Dependencies) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if deps == nil || deps.Syncer == nil || deps.Catalog == nil || deps.Processing == nil || deps.RateLimits == nil {
		return nil, fmt.Errorf("syncer, catalog, processing and rate limit dependencies are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		config:     config,
		syncer:     deps.Syncer,
		catalog:    deps.Catalog,
		processing: deps.Processing,
		rateLimits: deps.RateLimits,
		providers:  deps.Providers,
		workers:    deps.Workers,
	}

	s.setupRouter()
	return s, nil
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	if s.config.RequestRPS > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestRPS, s.config.RequestBurst)))
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	admin := s.router.PathPrefix("/admin").Subrouter()

	admin.HandleFunc("/catalog/sync", s.handleCatalogSync).Methods("POST")
	admin.HandleFunc("/catalog/sync", s.handleCatalogSyncStatus).Methods("GET")
	admin.HandleFunc("/catalog/raids", s.handleListRaids).Methods("GET")

	admin.HandleFunc("/characters/{id}/reenqueue", s.handleReenqueue).Methods("POST")
	admin.HandleFunc("/characters/{id}/processing", s.handleGetProcessing).Methods("GET")

	admin.HandleFunc("/ratelimits", s.handleRateLimits).Methods("GET")
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "raid-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting admin API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin API server")
	return s.httpServer.Shutdown(ctx)
}
