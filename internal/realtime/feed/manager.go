package feed

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/pkg/logger"
)

const watchdogInterval = 250 * time.Millisecond

// StaleHandlers receive heartbeat watchdog transitions
type StaleHandlers struct {
	OnStale   func(age time.Duration)
	OnRecover func()
}

// Manager runs the live feed client plus the heartbeat watchdog
// ⭐ SSOT: 피드 수명주기 + stale 감시는 이 매니저에서만
type Manager struct {
	client   *Client
	monitor  *health.Monitor
	handlers StaleHandlers
	logger   *logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	stale bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a feed manager around a client and its monitor
func NewManager(client *Client, monitor *health.Monitor, handlers StaleHandlers, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		client:   client,
		monitor:  monitor,
		handlers: handlers,
		logger:   log,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the client and the watchdog loop
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting feed manager")

	if m.client != nil {
		if err := m.client.Start(ctx); err != nil {
			return err
		}
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	m.logger.Info("Feed manager started successfully")
	return nil
}

// Stop stops the watchdog and the client
func (m *Manager) Stop() {
	m.logger.Info("Stopping feed manager")

	close(m.stopCh)
	if m.client != nil {
		m.client.Stop()
	}
	m.wg.Wait()

	m.logger.Info("Feed manager stopped")
}

// Stale reports whether the watchdog currently considers the feed stale
func (m *Manager) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkOnce(m.now())
		}
	}
}

// checkOnce fires OnStale on the fresh→stale edge and OnRecover on the way back
func (m *Manager) checkOnce(now time.Time) {
	if m.monitor == nil {
		return
	}

	isStale := m.monitor.Stale(now)

	m.mu.Lock()
	was := m.stale
	m.stale = isStale
	m.mu.Unlock()

	switch {
	case isStale && !was:
		age, _ := m.monitor.HeartbeatAge(now)
		m.logger.WithField("heartbeat_age_ms", age.Milliseconds()).Warn("Feed heartbeat stale")
		if m.handlers.OnStale != nil {
			m.handlers.OnStale(age)
		}
	case !isStale && was:
		m.logger.Info("Feed heartbeat recovered")
		if m.handlers.OnRecover != nil {
			m.handlers.OnRecover()
		}
	}
}
