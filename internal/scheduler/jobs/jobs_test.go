package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/realtime/cache"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/pkg/config"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

type fakeEngine struct {
	result   risk.CheckResult
	checks   []time.Time
	resets   []time.Time
	warnings []time.Time
	snap     brain.EngineSnapshot
}

func (f *fakeEngine) RunRiskCheck(now time.Time) risk.CheckResult {
	f.checks = append(f.checks, now)
	return f.result
}
func (f *fakeEngine) DailyReset(now time.Time)        { f.resets = append(f.resets, now) }
func (f *fakeEngine) EODWarning(now time.Time)        { f.warnings = append(f.warnings, now) }
func (f *fakeEngine) Snapshot() brain.EngineSnapshot { return f.snap }

var fixedNow = time.Date(2026, 3, 2, 15, 45, 0, 0, time.UTC)

func disabledCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return redis.NewCache(client, "flof")
}

func TestRiskCheckJob(t *testing.T) {
	tests := []struct {
		name   string
		result risk.CheckResult
	}{
		{"ok", risk.CheckResult{Status: risk.StatusOK}},
		{"breach is not a job failure", risk.CheckResult{Status: risk.StatusBreach, Pillar: risk.PillarStaleData}},
		{"already flattened", risk.CheckResult{Status: risk.StatusFlattened}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{result: tt.result}
			job := NewRiskCheckJob(eng, "@every 1s", logger.NewNop())
			job.now = func() time.Time { return fixedNow }

			assert.Equal(t, "risk_check", job.Name())
			assert.Equal(t, "@every 1s", job.Schedule())
			require.NoError(t, job.Run(context.Background()))
			assert.Equal(t, []time.Time{fixedNow}, eng.checks)
		})
	}
}

func TestSessionJobs(t *testing.T) {
	eng := &fakeEngine{}

	reset := NewDailyResetJob(eng, "0 18 * * 0-4", logger.NewNop())
	reset.now = func() time.Time { return fixedNow }
	require.NoError(t, reset.Run(context.Background()))
	assert.Equal(t, "daily_reset", reset.Name())
	assert.Equal(t, []time.Time{fixedNow}, eng.resets)

	warn, err := NewEODWarningJob(eng, "15:50", 5*time.Minute, logger.NewNop())
	require.NoError(t, err)
	warn.now = func() time.Time { return fixedNow }
	assert.Equal(t, "45 15 * * 1-5", warn.Schedule())
	require.NoError(t, warn.Run(context.Background()))
	assert.Len(t, eng.warnings, 1)

	_, err = NewEODWarningJob(eng, "3pm", time.Minute, logger.NewNop())
	assert.Error(t, err)
}

func TestEODWarningSpec(t *testing.T) {
	tests := []struct {
		flatten string
		lead    time.Duration
		want    string
		wantErr bool
	}{
		{"15:50", 5 * time.Minute, "45 15 * * 1-5", false},
		{"16:00", 10 * time.Minute, "50 15 * * 1-5", false},
		{"00:03", 5 * time.Minute, "58 23 * * 1-5", false},
		{"15:50", 0, "50 15 * * 1-5", false},
		{"25:00", time.Minute, "", true},
		{"15:50", -time.Minute, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.flatten+"-"+tt.lead.String(), func(t *testing.T) {
			got, err := EODWarningSpec(tt.flatten, tt.lead)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotPublishJob(t *testing.T) {
	eng := &fakeEngine{snap: brain.EngineSnapshot{Instrument: "ES", LastNs: 42, State: contracts.StateScouting}}
	local := cache.NewSnapshotCache(15*time.Second, logger.NewNop())
	job := NewSnapshotPublishJob(eng, local, disabledCache(t), "@every 5s", logger.NewNop())

	require.NoError(t, job.Run(context.Background()))
	entry, ok := local.Get("ES")
	require.True(t, ok)
	assert.Equal(t, int64(42), entry.Snapshot.LastNs)
	assert.Equal(t, contracts.StateScouting, entry.Snapshot.State)

	// remote 없이도 동작
	require.NoError(t, NewSnapshotPublishJob(eng, nil, nil, "@every 5s", logger.NewNop()).Run(context.Background()))
}

func TestCalendarRefreshJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"CPI m/m","datetime":"2026-03-02T08:30:00","impact":"high","type":"CPI"}]`))
	}))
	defer srv.Close()

	log := logger.NewNop()
	cal := market.NewEventCalendar(market.DefaultCalendarConfig(), time.UTC, log)
	client := httputil.New(log).DisableRetry()

	job := NewCalendarRefreshJob(cal, client, disabledCache(t), srv.URL, "0 6 * * 1-5", time.UTC, log)
	job.now = func() time.Time { return fixedNow }
	require.NoError(t, job.Run(context.Background()))

	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "CPI m/m", events[0].Name)
	assert.True(t, cal.HasActiveEvent(time.Date(2026, 3, 2, 8, 31, 0, 0, time.UTC)))
}

func TestCalendarRefreshJobFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	log := logger.NewNop()
	cal := market.NewEventCalendar(market.DefaultCalendarConfig(), time.UTC, log)
	client := httputil.New(log).DisableRetry()

	// 캐시된 사본이 없으면 실패를 그대로 반환 (스케줄러가 재시도)
	job := NewCalendarRefreshJob(cal, client, disabledCache(t), srv.URL, "0 6 * * 1-5", time.UTC, log)
	assert.Error(t, job.Run(context.Background()))

	// URL 미설정은 건너뜀
	skip := NewCalendarRefreshJob(cal, client, nil, "", "0 6 * * 1-5", nil, log)
	assert.NoError(t, skip.Run(context.Background()))
}
