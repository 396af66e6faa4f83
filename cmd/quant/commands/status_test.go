package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

func TestSnapshotSourceFallsBackToAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/state", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"instrument":"ES","state":"STALKING","last_price":5001.25,` +
			`"positions":[{"id":"P1","direction":"LONG","phase":"PHASE2_RUNNER","remaining_contracts":3}]}`))
	}))
	defer srv.Close()

	src := &snapshotSource{
		cache:      redis.NewCache(redis.Disabled(), "flof"),
		client:     httputil.New(logger.NewNop()).DisableRetry(),
		apiURL:     srv.URL,
		instrument: "ES",
	}

	snap, from, err := src.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api", from)
	assert.Equal(t, contracts.StateStalking, snap.State)
	assert.InDelta(t, 5001.25, snap.LastPrice, 1e-9)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, contracts.Long, snap.Positions[0].Direction)
	assert.Equal(t, contracts.Phase2Runner, snap.Positions[0].Phase)
}

func TestSnapshotSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := &snapshotSource{
		cache:      redis.NewCache(redis.Disabled(), "flof"),
		client:     httputil.New(logger.NewNop()).DisableRetry(),
		apiURL:     srv.URL,
		instrument: "ES",
	}

	_, _, err := src.fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine not reachable")
}

func TestLastN(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{3, 4}, lastN(items, 2))
	assert.Equal(t, items, lastN(items, 0))
	assert.Equal(t, items, lastN(items, 10))
}

func TestSortedKeys(t *testing.T) {
	counts := map[contracts.Grade]int{"B": 1, "A+": 2, "A": 3}
	assert.Equal(t, []contracts.Grade{"A", "A+", "B"}, sortedKeys(counts))
}
