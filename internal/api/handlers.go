package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/portfolio-reconciler/internal/types"
	"github.com/portfolio-reconciler/internal/worker"
)

const (
	defaultLedgerTail = 50
	maxLedgerTail     = 1000
)

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-reconciler",
	})
}

// handleGetSnapshot returns the current committed snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshots.Load()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No snapshot has been committed yet", nil)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetPreviousSnapshot returns the archived prior snapshot.
func (s *Server) handleGetPreviousSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshots.LoadPrevious()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No prior snapshot exists", nil)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetLedgerTail returns the most recent audit ledger entries.
func (s *Server) handleGetLedgerTail(w http.ResponseWriter, r *http.Request) {
	limit := defaultLedgerTail
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", map[string]interface{}{
				"limit": raw,
			})
			return
		}
		limit = parsed
	}
	if limit > maxLedgerTail {
		limit = maxLedgerTail
	}

	entries, err := s.ledger.Tail(limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListTokens returns the token registry, optionally filtered by chain.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	var err error
	var tokens interface{}

	if chain := r.URL.Query().Get("chain"); chain != "" {
		tokens, err = s.tokens.ListTokensByChain(r.Context(), types.ChainID(chain))
	} else {
		tokens, err = s.tokens.ListTokens(r.Context())
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
	})
}

// handleTriggerReconcile runs one reconciliation cycle on demand.
func (s *Server) handleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.cycles.TriggerCycle(r.Context())
	if err != nil {
		if stderrors.Is(err, worker.ErrCycleInFlight) {
			respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
			return
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"positions":   result.Snapshot.PositionCount(),
		"total_value": result.Snapshot.TotalValue,
		"changes":     len(result.Changes),
		"significant": len(result.Significant),
		"discovered":  result.DiscoveredTokens,
		"degraded":    result.Degraded,
	})
}

// handleReconcileStatus reports the scheduler state.
func (s *Server) handleReconcileStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cycles.Status())
}
