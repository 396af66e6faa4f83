package health

import (
	"sync"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Source kinds tracked by the monitor
const (
	SourceFeed   = "feed"
	SourceBroker = "broker"
)

// Config 인프라 헬스 임계값
type Config struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" json:"heartbeat_timeout"`
	FeedLatencyMax   time.Duration `yaml:"feed_latency_max" json:"feed_latency_max"`
	BrokerLatencyMax time.Duration `yaml:"broker_latency_max" json:"broker_latency_max"`
}

// DefaultConfig returns the default health thresholds
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 5 * time.Second,
		FeedLatencyMax:   500 * time.Millisecond,
		BrokerLatencyMax: 400 * time.Millisecond,
	}
}

// sourceState is the last observation for one source
type sourceState struct {
	lastSeen time.Time
	latency  time.Duration
	samples  int64
}

// Monitor records feed heartbeats and latencies
// ⭐ SSOT: 인프라 헬스 판정은 이 구조체에서만
type Monitor struct {
	mu      sync.RWMutex
	cfg     Config
	sources map[string]*sourceState
	logger  *logger.Logger
}

// NewMonitor creates a new health monitor
func NewMonitor(cfg Config, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Monitor{
		cfg:     cfg,
		sources: make(map[string]*sourceState),
		logger:  log,
	}
}

// Config returns the thresholds in use
func (m *Monitor) Config() Config {
	return m.cfg
}

// Heartbeat marks a source as alive at now.
// Older observations are ignored.
func (m *Monitor) Heartbeat(source string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	if now.Before(st.lastSeen) {
		return
	}
	st.lastSeen = now
}

// RecordLatency stores a latency sample and counts as a heartbeat
func (m *Monitor) RecordLatency(source string, latency time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(source)
	st.latency = latency
	st.samples++
	if now.After(st.lastSeen) {
		st.lastSeen = now
	}
}

func (m *Monitor) state(source string) *sourceState {
	st, ok := m.sources[source]
	if !ok {
		st = &sourceState{}
		m.sources[source] = st
	}
	return st
}

// HeartbeatAge returns time since the last feed heartbeat.
// ok is false before any heartbeat.
func (m *Monitor) HeartbeatAge(now time.Time) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, exists := m.sources[SourceFeed]
	if !exists || st.lastSeen.IsZero() {
		return 0, false
	}
	age := now.Sub(st.lastSeen)
	if age < 0 {
		age = 0
	}
	return age, true
}

// Stale reports whether the feed heartbeat is older than the timeout.
// A feed that never sent a heartbeat is not stale.
func (m *Monitor) Stale(now time.Time) bool {
	age, ok := m.HeartbeatAge(now)
	return ok && age > m.cfg.HeartbeatTimeout
}

// Report builds the current HealthReport
func (m *Monitor) Report(now time.Time) contracts.HealthReport {
	age, seen := m.HeartbeatAge(now)

	m.mu.RLock()
	var feedLat, brokerLat time.Duration
	if st, ok := m.sources[SourceFeed]; ok {
		feedLat = st.latency
	}
	if st, ok := m.sources[SourceBroker]; ok {
		brokerLat = st.latency
	}
	m.mu.RUnlock()

	healthy := feedLat <= m.cfg.FeedLatencyMax && brokerLat <= m.cfg.BrokerLatencyMax
	if seen && age > m.cfg.HeartbeatTimeout {
		healthy = false
	}

	report := contracts.HealthReport{
		FeedLatencyMs:   durationMs(feedLat),
		BrokerLatencyMs: durationMs(brokerLat),
		HeartbeatAgeMs:  durationMs(age),
		Healthy:         healthy,
	}

	if !healthy {
		m.logger.WithFields(map[string]interface{}{
			"feed_latency_ms":   report.FeedLatencyMs,
			"broker_latency_ms": report.BrokerLatencyMs,
			"heartbeat_age_ms":  report.HeartbeatAgeMs,
		}).Debug("Infrastructure degraded")
	}
	return report
}

// Reset forgets all sources
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = make(map[string]*sourceState)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
