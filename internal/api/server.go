// Package api provides the HTTP status and inspection server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/service"
	"github.com/portfolio-reconciler/internal/types"
	"github.com/portfolio-reconciler/internal/worker"
)

// Service interfaces for dependency injection and testing

// SnapshotSource exposes the committed snapshots.
type SnapshotSource interface {
	Load() (*models.Snapshot, error)
	LoadPrevious() (*models.Snapshot, error)
}

// LedgerSource exposes the tail of the audit ledger.
type LedgerSource interface {
	Tail(n int) ([]*models.LedgerEntry, error)
}

// TokenSource exposes the token registry.
type TokenSource interface {
	ListTokens(ctx context.Context) ([]models.TokenMetadata, error)
	ListTokensByChain(ctx context.Context, chain types.ChainID) ([]models.TokenMetadata, error)
}

// CycleController exposes scheduler state and the manual trigger.
type CycleController interface {
	TriggerCycle(ctx context.Context) (*service.CycleResult, error)
	Status() *worker.SchedulerStatus
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	snapshots  SnapshotSource
	ledger     LedgerSource
	tokens     TokenSource
	cycles     CycleController
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	snapshots SnapshotSource,
	ledger LedgerSource,
	tokens TokenSource,
	cycles CycleController,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		snapshots: snapshots,
		ledger:    ledger,
		tokens:    tokens,
		cycles:    cycles,
		config:    config,
		logger:    logging.GetGlobalLogger(),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rps := s.config.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	rateLimiter := NewRateLimiter(rps)

	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

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

	api := s.router.PathPrefix("/api").Subrouter()

	// Snapshot endpoints
	api.HandleFunc("/snapshot", s.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/snapshot/previous", s.handleGetPreviousSnapshot).Methods("GET")

	// Audit ledger endpoints
	api.HandleFunc("/ledger", s.handleGetLedgerTail).Methods("GET")

	// Token registry endpoints
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")

	// Reconciliation endpoints
	api.HandleFunc("/reconcile", s.handleTriggerReconcile).Methods("POST")
	api.HandleFunc("/reconcile/status", s.handleReconcileStatus).Methods("GET")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
