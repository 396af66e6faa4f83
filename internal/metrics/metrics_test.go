package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	TicksTotal.WithLabelValues("ES").Inc()
	RejectionsTotal.WithLabelValues("G1_premium_discount").Inc()
	ObserveScoring(time.Now())

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"flof_ticks_total", "flof_rejections_total", "flof_scoring_duration_seconds"} {
		assert.True(t, names[want], want)
	}
}

func TestCounterValues(t *testing.T) {
	before := testutil.ToFloat64(PositionsClosedTotal.WithLabelValues("stop_hit"))
	PositionsClosedTotal.WithLabelValues("stop_hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PositionsClosedTotal.WithLabelValues("stop_hit")))
}

func TestHandlerExposition(t *testing.T) {
	Equity.Set(101_250)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flof_equity 101250")
}
