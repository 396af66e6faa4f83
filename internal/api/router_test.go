package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/api/handlers"
	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/realtime/cache"
	"github.com/wonny/flof/backend/internal/strategyconfig"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

type fakeEngine struct {
	snap      brain.EngineSnapshot
	flattened bool
	failFlat  error
}

func (f *fakeEngine) Snapshot() brain.EngineSnapshot { return f.snap }
func (f *fakeEngine) CancelAllOrders() error         { return nil }
func (f *fakeEngine) ForceDormant() error {
	f.snap.State = contracts.StateDormant
	return nil
}
func (f *fakeEngine) FlattenAllPositions() error {
	if f.failFlat != nil {
		return f.failFlat
	}
	f.flattened = true
	f.snap.Positions = nil
	return nil
}

type fakeReporter struct{ healthy bool }

func (f fakeReporter) Report(time.Time) contracts.HealthReport {
	return contracts.HealthReport{Healthy: f.healthy, HeartbeatAgeMs: 120}
}

func newTestRouter(t *testing.T, engine *fakeEngine, healthy bool) http.Handler {
	t.Helper()
	log := logger.NewNop()

	provider, err := strategyconfig.NewManagerFromConfig(strategyconfig.DefaultConfig(), log)
	require.NoError(t, err)

	store := audit.NewMemoryStore()
	ctx := context.Background()
	for i, pnl := range []float64{500, -250, 750} {
		require.NoError(t, store.SaveTrade(ctx, audit.TradeRecord{
			PositionID: string(rune('A' + i)),
			Instrument: "ES",
			Grade:      contracts.GradeAPlus,
			Closed:     true,
			PnL:        pnl,
		}))
	}

	snapshots := cache.NewSnapshotCache(redis.TTLSnapshot, log)
	snapshots.Update(engine.snap)

	return NewRouter(Handlers{
		Health:  handlers.NewHealthHandler(fakeReporter{healthy: healthy}, "flof-engine"),
		Engine:  handlers.NewEngineHandler(engine, snapshots, provider, log),
		Journal: handlers.NewJournalHandler(store, redis.NewCache(redis.Disabled(), "flof"), "ES", time.UTC, log),
	}, log)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func stalkingEngine() *fakeEngine {
	return &fakeEngine{snap: brain.EngineSnapshot{
		Instrument: "ES",
		State:      contracts.StateStalking,
		LastNs:     time.Now().UnixNano(),
		Positions:  []execution.ManagedPosition{{ID: "P1", Direction: contracts.Long, Phase: contracts.Phase1Initial}},
	}}
}

func TestEngineRoutes(t *testing.T) {
	router := newTestRouter(t, stalkingEngine(), true)

	tests := []struct {
		name   string
		path   string
		status int
		key    string
	}{
		{"state", "/api/state", http.StatusOK, "state"},
		{"positions", "/api/positions", http.StatusOK, "positions"},
		{"ledger", "/api/ledger", http.StatusOK, "open_positions"},
		{"risk", "/api/risk", http.StatusOK, "risk"},
		{"snapshots", "/api/snapshots", http.StatusOK, "snapshots"},
		{"toggles", "/api/toggles", http.StatusOK, "toggles"},
		{"toggle issues", "/api/toggles/issues", http.StatusOK, "issues"},
		{"one toggle", "/api/toggles/" + strategyconfig.ToggleCHOCH, http.StatusOK, "enabled"},
		{"unknown toggle", "/api/toggles/T99", http.StatusNotFound, "error"},
		{"health", "/health", http.StatusOK, "report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodGet, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode(t, rec), tt.key)
		})
	}

	body := decode(t, serve(router, http.MethodGet, "/api/state"))
	assert.Equal(t, "STALKING", body["state"])
}

func TestHealthDegraded(t *testing.T) {
	router := newTestRouter(t, stalkingEngine(), false)

	rec := serve(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestKillSwitch(t *testing.T) {
	engine := stalkingEngine()
	router := newTestRouter(t, engine, true)

	rec := serve(router, http.MethodGet, "/api/kill")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.False(t, engine.flattened)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodPost, "/health").Code)


	rec = serve(router, http.MethodPost, "/api/kill")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "DORMANT", body["state"])
	assert.True(t, engine.flattened)

	failing := stalkingEngine()
	failing.failFlat = errors.New("broker offline")
	rec = serve(newTestRouter(t, failing, true), http.MethodPost, "/api/kill")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestJournalRoutes(t *testing.T) {
	router := newTestRouter(t, stalkingEngine(), true)

	body := decode(t, serve(router, http.MethodGet, "/api/journal/trades?limit=2"))
	assert.EqualValues(t, 2, body["count"])

	body = decode(t, serve(router, http.MethodGet, "/api/journal/rejections"))
	assert.EqualValues(t, 0, body["count"])

	body = decode(t, serve(router, http.MethodGet, "/api/journal/summary"))
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["wins"])
	assert.InDelta(t, 1000, body["total_pnl"], 1e-9)
}
