package strategyconfig

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/flof/backend/pkg/logger"
)

var (
	// ErrNotLoaded is returned before the first successful Load
	ErrNotLoaded = errors.New("strategy config not loaded")
	// ErrReloadInLiveMode refuses hot reload while trading live
	ErrReloadInLiveMode = errors.New("hot reload is disabled in live mode")
	// ErrUnknownToggle is returned for ids outside the registry
	ErrUnknownToggle = errors.New("unknown toggle")
)

// Manager owns the merged configuration and the toggle registry.
// ⭐ SSOT: 런타임 설정 조회는 Manager를 통해서만 (contracts.ConfigProvider 구현)
type Manager struct {
	mu        sync.RWMutex
	layers    Layers
	forceLive bool
	cfg       *Config
	tree      map[string]interface{}
	registry  *Registry
	hash      string
	logger    *logger.Logger
}

// NewManager creates an empty manager. forceLive overrides system.live_mode in the files.
func NewManager(forceLive bool, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{forceLive: forceLive, logger: log}
}

// NewManagerFromConfig wraps an in-memory Config (tests, backtests without files)
func NewManagerFromConfig(cfg Config, log *logger.Logger) (*Manager, error) {
	m := NewManager(cfg.System.LiveMode, log)
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.System.LiveMode {
		enforceSafetyLocks(tree)
	}
	decoded, err := decodeTree(tree)
	if err != nil {
		return nil, err
	}
	if err := Validate(decoded); err != nil {
		return nil, err
	}
	if err := m.install(decoded, tree); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and merges the three layers
func (m *Manager) Load(layers Layers) error {
	cfg, tree, err := Load(layers, m.forceLive)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.layers = layers
	m.mu.Unlock()

	if err := m.install(cfg, tree); err != nil {
		return err
	}

	m.logger.WithFields(map[string]interface{}{
		"base":       layers.Base,
		"profile":    layers.Profile,
		"instrument": layers.Instrument,
		"live_mode":  cfg.System.LiveMode,
		"hash":       m.Hash(),
	}).Info("Strategy config loaded")

	for _, w := range Warn(cfg) {
		m.logger.WithFields(map[string]interface{}{
			"code":    w.Code,
			"message": w.Message,
		}).Warn("Strategy config warning")
	}
	return nil
}

func (m *Manager) install(cfg *Config, tree map[string]interface{}) error {
	hash, err := Hash(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.tree = tree
	m.hash = hash
	m.registry = NewRegistry(func(key string, def interface{}) interface{} {
		if v := getNested(tree, key); v != nil {
			return v
		}
		return def
	}, cfg.System.LiveMode)
	return nil
}

// Reload re-reads the same layers. Refused in live mode.
func (m *Manager) Reload() error {
	m.mu.RLock()
	loaded := m.cfg != nil
	live := loaded && m.cfg.System.LiveMode
	layers := m.layers
	m.mu.RUnlock()

	if !loaded {
		return ErrNotLoaded
	}
	if live {
		return ErrReloadInLiveMode
	}
	if layers.Base == "" {
		return fmt.Errorf("reload: %w (no files)", ErrNotLoaded)
	}
	return m.Load(layers)
}

// Config returns a copy of the typed configuration
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return DefaultConfig()
	}
	return *m.cfg
}

// Hash returns the config hash, empty before Load
func (m *Manager) Hash() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hash
}

// LiveMode reports system.live_mode
func (m *Manager) LiveMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg != nil && m.cfg.System.LiveMode
}

// Get resolves a dotted key ("scoring.thresholds.a_min"), def when absent
func (m *Manager) Get(key string, def interface{}) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tree == nil {
		return def
	}
	if v := getNested(m.tree, key); v != nil {
		return v
	}
	return def
}

// GetFloat resolves a numeric key
func (m *Manager) GetFloat(key string, def float64) float64 {
	switch v := m.Get(key, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetInt resolves an integer key
func (m *Manager) GetInt(key string, def int) int {
	switch v := m.Get(key, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// GetBool resolves a boolean key
func (m *Manager) GetBool(key string, def bool) bool {
	if v, ok := m.Get(key, def).(bool); ok {
		return v
	}
	return def
}

// GetString resolves a string key
func (m *Manager) GetString(key string, def string) string {
	if v, ok := m.Get(key, def).(string); ok {
		return v
	}
	return def
}

// GetDuration resolves a duration key ("30s")
func (m *Manager) GetDuration(key string, def time.Duration) time.Duration {
	switch v := m.Get(key, def).(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v)
	}
	return def
}

// IsToggleEnabled resolves a toggle through the dependency graph. Unknown ids are off.
func (m *Manager) IsToggleEnabled(id string) bool {
	m.mu.RLock()
	reg := m.registry
	m.mu.RUnlock()
	if reg == nil {
		return false
	}
	return reg.IsEnabled(id)
}

// Toggle is one row of the toggle listing
type Toggle struct {
	ID      string   `json:"id"`
	Key     string   `json:"key"`
	Raw     bool     `json:"raw"`
	Enabled bool     `json:"enabled"`
	Parents []string `json:"parents,omitempty"`
	Safety  bool     `json:"safety"`
}

// Toggles lists every registered toggle with raw and effective state
func (m *Manager) Toggles() []Toggle {
	out := make([]Toggle, 0, len(toggleKeys))
	for _, id := range ToggleIDs() {
		key := toggleKeys[id]
		out = append(out, Toggle{
			ID:      id,
			Key:     key,
			Raw:     m.GetBool(key, false),
			Enabled: m.IsToggleEnabled(id),
			Parents: ToggleParents(id),
			Safety:  IsSafetyToggle(id),
		})
	}
	return out
}

// ToggleState resolves one toggle, ErrUnknownToggle for unregistered ids
func (m *Manager) ToggleState(id string) (Toggle, error) {
	key, ok := toggleKeys[id]
	if !ok {
		return Toggle{}, fmt.Errorf("%w: %s", ErrUnknownToggle, id)
	}
	return Toggle{
		ID:      id,
		Key:     key,
		Raw:     m.GetBool(key, false),
		Enabled: m.IsToggleEnabled(id),
		Parents: ToggleParents(id),
		Safety:  IsSafetyToggle(id),
	}, nil
}

// ValidateToggles returns toggle issues, nil before Load
func (m *Manager) ValidateToggles() []Issue {
	m.mu.RLock()
	reg := m.registry
	m.mu.RUnlock()
	if reg == nil {
		return nil
	}
	return reg.Validate()
}

// Snapshot returns a decision snapshot of the current config
func (m *Manager) Snapshot(gitCommit string) (*DecisionSnapshot, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()
	if cfg == nil {
		return nil, ErrNotLoaded
	}
	return NewDecisionSnapshot(cfg, gitCommit)
}
