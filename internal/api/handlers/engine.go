package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/realtime/cache"
	"github.com/wonny/flof/backend/internal/strategyconfig"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Engine is what the API reads and controls
type Engine interface {
	Snapshot() brain.EngineSnapshot
	contracts.KillSwitch
}

// EngineHandler serves engine state and the manual kill switch
// ⭐ SSOT: 엔진 상태 API 핸들러는 이 구조체에서만
type EngineHandler struct {
	engine   Engine
	cache    *cache.SnapshotCache
	provider *strategyconfig.Manager
	logger   *logger.Logger
}

// NewEngineHandler creates a new engine handler. snapshots may be nil.
func NewEngineHandler(engine Engine, snapshots *cache.SnapshotCache, provider *strategyconfig.Manager, log *logger.Logger) *EngineHandler {
	return &EngineHandler{
		engine:   engine,
		cache:    snapshots,
		provider: provider,
		logger:   log,
	}
}

// ============================================================
// State
// ============================================================

// GetState returns the full engine snapshot
// GET /api/state
func (h *EngineHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Snapshot())
}

// GetPositions returns open managed positions
// GET /api/positions
func (h *EngineHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"instrument": snap.Instrument,
		"count":      len(snap.Positions),
		"positions":  snap.Positions,
	})
}

// GetLedger returns the portfolio gate ledger
// GET /api/ledger
func (h *EngineHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Snapshot().Ledger)
}

// GetRisk returns overlord and equity state
// GET /api/risk
func (h *EngineHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"risk":       snap.Risk,
		"equity":     snap.Equity,
		"feed_stale": snap.FeedStale,
	})
}

// GetSnapshots returns the published snapshot cache
// GET /api/snapshots
func (h *EngineHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respondError(w, http.StatusServiceUnavailable, "Snapshot cache not configured")
		return
	}

	entries := make([]cache.Entry, 0, h.cache.Len())
	for _, instrument := range h.cache.Instruments() {
		if e, ok := h.cache.Get(instrument); ok {
			entries = append(entries, e)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     h.cache.Stats(),
		"snapshots": entries,
	})
}

// ============================================================
// Toggles
// ============================================================

// GetToggles returns every toggle with its effective state
// GET /api/toggles
func (h *EngineHandler) GetToggles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"live_mode":   h.provider.LiveMode(),
		"config_hash": h.provider.Hash(),
		"toggles":     h.provider.Toggles(),
	})
}

// GetToggle returns one toggle
// GET /api/toggles/{id}
func (h *EngineHandler) GetToggle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := h.provider.ToggleState(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// GetToggleIssues returns dependency and safety-lock issues
// GET /api/toggles/issues
func (h *EngineHandler) GetToggleIssues(w http.ResponseWriter, r *http.Request) {
	issues := h.provider.ValidateToggles()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(issues),
		"issues": issues,
	})
}

// ============================================================
// Kill switch
// ============================================================

// Kill cancels working orders, flattens every position and sends the engine DORMANT
// POST /api/kill
func (h *EngineHandler) Kill(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("Manual kill switch invoked")

	var errs []string
	if err := h.engine.CancelAllOrders(); err != nil {
		errs = append(errs, "cancel: "+err.Error())
	}
	if err := h.engine.FlattenAllPositions(); err != nil {
		errs = append(errs, "flatten: "+err.Error())
	}
	if err := h.engine.ForceDormant(); err != nil {
		errs = append(errs, "dormant: "+err.Error())
	}

	if len(errs) > 0 {
		h.logger.WithField("errors", errs).Error("Manual kill switch incomplete")
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"errors":  errs,
		})
		return
	}

	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"state":     snap.State,
		"positions": len(snap.Positions),
	})
}
