package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorStale(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil)
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	assert.False(t, m.Stale(base), "no heartbeat yet")

	m.Heartbeat(SourceFeed, base)
	assert.False(t, m.Stale(base.Add(5*time.Second)))
	assert.True(t, m.Stale(base.Add(5*time.Second+time.Millisecond)))

	// out of order heartbeat is ignored
	m.Heartbeat(SourceFeed, base.Add(-time.Minute))
	age, ok := m.HeartbeatAge(base.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, time.Second, age)
}

func TestMonitorReport(t *testing.T) {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		feed    time.Duration
		broker  time.Duration
		at      time.Duration
		healthy bool
	}{
		{"all good", 100 * time.Millisecond, 100 * time.Millisecond, time.Second, true},
		{"feed at limit", 500 * time.Millisecond, 0, 0, true},
		{"feed slow", 501 * time.Millisecond, 0, 0, false},
		{"broker slow", 0, 401 * time.Millisecond, 0, false},
		{"heartbeat stale", 0, 0, 6 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(DefaultConfig(), nil)
			m.RecordLatency(SourceFeed, tt.feed, base)
			m.RecordLatency(SourceBroker, tt.broker, base)

			r := m.Report(base.Add(tt.at))
			assert.Equal(t, tt.healthy, r.Healthy)
			assert.InDelta(t, float64(tt.feed)/1e6, r.FeedLatencyMs, 1e-9)
			assert.InDelta(t, float64(tt.at)/1e6, r.HeartbeatAgeMs, 1e-9)
		})
	}
}

func TestMonitorReset(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil)
	now := time.Now()
	m.Heartbeat(SourceFeed, now)
	m.Reset()
	_, ok := m.HeartbeatAge(now)
	assert.False(t, ok)
	assert.True(t, m.Report(now).Healthy)
}
