package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/process"
	"github.com/pvgupta24/embark/internal/storage"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "embark",
		"version":     "1.0.0",
		"description": "Blockchain node supervisor and contract deployer",
		"endpoints": map[string]string{
			"GET /":                          "This page - Service information",
			"GET /health":                    "Health check endpoint",
			"GET /metrics":                   "Prometheus metrics for monitoring",
			"GET /workers":                   "Supervised worker processes",
			"GET /contracts":                 "List contracts of the deploy run (supports ?status=)",
			"GET /contracts/{name}":          "Get contract deployment state",
			"GET /contracts/{name}/receipts": "Get deployment receipts of a contract (supports ?limit=)",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.repository.Ping(r.Context()); err != nil {
		slog.Warn("Tracking store unhealthy", "error", err)
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "embark",
	}

	s.sendJSON(w, code, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleWorkers lists the supervised workers
// GET /workers
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handles := []process.Handle{}
	if s.workers != nil {
		handles = append(handles, s.workers()...)
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"workers": handles,
		"total":   len(handles),
	})
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

// handleListContracts lists the contracts of the run with optional filtering
// GET /contracts?status=deployed
func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := r.URL.Query().Get("status")

	tracked, err := s.trackedByName(ctx)
	if err != nil {
		slog.Error("Failed to list tracked contracts", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := []models.ContractSummary{}
	for _, c := range s.contracts.Snapshots() {
		summary := BuildContractSummary(c, tracked[c.ClassName])
		if status != "" && summary.Status != status {
			continue
		}
		summaries = append(summaries, summary)
	}

	s.sendJSON(w, http.StatusOK, models.ContractListResponse{
		Contracts: summaries,
		Total:     len(summaries),
	})
}

// handleGetContract returns the deployment state of one contract
// GET /contracts/{name}
func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" {
		s.sendError(w, "Contract name required", http.StatusBadRequest)
		return
	}

	c, ok := s.contracts.Snapshot(name)
	if !ok {
		s.sendError(w, "Contract not found", http.StatusNotFound)
		return
	}

	tracked, err := s.repository.GetTracked(r.Context(), name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("Failed to get tracked contract", "contract", name, "error", err)
		}
		tracked = nil // Continue without the tracking record
	}

	s.sendJSON(w, http.StatusOK, BuildContractResponse(c, tracked))
}

// handleGetReceipts returns the recorded receipts of a contract
// GET /contracts/{name}/receipts?limit=10
func (s *Server) handleGetReceipts(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := s.contracts.Snapshot(name); !ok {
		s.sendError(w, "Contract not found", http.StatusNotFound)
		return
	}

	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	receipts, err := s.repository.ListReceipts(r.Context(), name, limit)
	if err != nil {
		slog.Error("Failed to list receipts", "contract", name, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if receipts == nil {
		receipts = []*models.Receipt{}
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"class_name": name,
		"receipts":   receipts,
		"total":      len(receipts),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
