package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/process"
	"github.com/pvgupta24/embark/internal/storage"
)

// ContractSource is the set of contracts of the current run
type ContractSource interface {
	Snapshots() []*models.Contract
	Snapshot(name string) (*models.Contract, bool)
}

// WorkerSource returns a snapshot of the supervised workers
type WorkerSource func() []process.Handle

// Server represents the HTTP status server
// Provides endpoints for Prometheus metrics, health checks, and the state of the deploy run
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	contracts  ContractSource
	repository storage.Repository
	workers    WorkerSource
	port       int
}

// NewServer creates a new API server instance
// workers may be nil when no worker is supervised
func NewServer(port int, contracts ContractSource, repository storage.Repository, workers WorkerSource) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:        mux,
		contracts:  contracts,
		repository: repository,
		workers:    workers,
		port:       port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())
	s.mux.HandleFunc("/workers", s.handleWorkers)

	// Contract endpoints
	s.mux.HandleFunc("/contracts", s.handleContracts)
	s.mux.HandleFunc("/contracts/", s.handleContractRoutes)
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// handleContracts routes to list contracts (without trailing slash)
func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleListContracts(w, r)
}

// handleContractRoutes routes contract sub-endpoints (with trailing slash)
func (s *Server) handleContractRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/contracts/")
	parts := strings.Split(path, "/")

	// GET /contracts/{name}
	if len(parts) == 1 {
		s.handleGetContract(w, r, parts[0])
		return
	}

	// GET /contracts/{name}/receipts
	if len(parts) == 2 && parts[1] == "receipts" {
		s.handleGetReceipts(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/workers", "/contracts"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
