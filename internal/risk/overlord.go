package risk

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// =============================================================================
// Config
// =============================================================================

// Config 리스크 오버로드 안전 한도
type Config struct {
	MaxOrdersPerMinute     int           `yaml:"max_orders_per_minute" json:"max_orders_per_minute"`
	MaxConcurrentPositions int           `yaml:"max_concurrent_positions" json:"max_concurrent_positions"`
	MaxDailyDrawdown       float64       `yaml:"max_daily_drawdown_pct" json:"max_daily_drawdown_pct"` // 음수 (예: -0.03)
	MaxConsecutiveLosses   int           `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
	StaleDataCountdown     time.Duration `yaml:"stale_data_countdown" json:"stale_data_countdown"`
	CheckInterval          time.Duration `yaml:"check_interval" json:"check_interval"`
	LiveMode               bool          `yaml:"-" json:"live_mode"`
}

// DefaultConfig returns the default safety limits
func DefaultConfig() Config {
	return Config{
		MaxOrdersPerMinute:     3,
		MaxConcurrentPositions: 3,
		MaxDailyDrawdown:       -0.03,
		MaxConsecutiveLosses:   3,
		StaleDataCountdown:     5 * time.Second,
		CheckInterval:          time.Second,
	}
}

// Pillar identifiers, in check order
const (
	PillarAntiSpam          = "T25_anti_spam"
	PillarFatFinger         = "T26_fat_finger"
	PillarDailyDrawdown     = "T27_daily_drawdown"
	PillarConsecutiveLosses = "consecutive_losses"
	PillarStaleData         = "T28_stale_data"
)

// Status is the outcome of a check
type Status string

const (
	StatusOK        Status = "ok"
	StatusBreach    Status = "breach"
	StatusFlattened Status = "flattened" // 이미 Flatten 됨. 시퀀스 재실행 없음
)

// CheckResult is returned by Check
type CheckResult struct {
	Status Status `json:"status"`
	Pillar string `json:"pillar,omitempty"`
}

// Snapshot is a value copy of overlord state
type Snapshot struct {
	Flattened         bool    `json:"flattened"`
	FlattenReason     string  `json:"flatten_reason,omitempty"`
	RecentOrders      int     `json:"recent_orders"`
	Positions         int     `json:"positions"`
	DailyPnLPct       float64 `json:"daily_pnl_pct"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	StaleSinceNs      int64   `json:"stale_since_ns,omitempty"`
}

const orderWindow = int64(time.Minute)

// =============================================================================
// Overlord
// =============================================================================

// Overlord is the independent safety monitor.
// ⭐ SSOT: Nuclear Flatten 은 KillSwitch 직접 호출로만 수행. 이벤트 버스는 알림 용도
//
// 동기화 없음: 호스트가 Check 와 상태 갱신을 직렬화
type Overlord struct {
	cfg    Config
	kill   contracts.KillSwitch
	notify contracts.Notifier
	log    *logger.Logger
	exit   func(code int)

	orders            []int64
	positions         int
	dailyPnLPct       float64
	consecutiveLosses int
	staleSinceNs      int64
	stale             bool

	flattened     bool
	flattenReason string
}

// Option configures an Overlord
type Option func(*Overlord)

// WithExit replaces the process exit used in live mode
func WithExit(exit func(code int)) Option {
	return func(o *Overlord) { o.exit = exit }
}

// WithNotifier sets the breach notification channel
func WithNotifier(n contracts.Notifier) Option {
	return func(o *Overlord) { o.notify = n }
}

// NewOverlord creates a monitor with direct kill-switch access
func NewOverlord(cfg Config, kill contracts.KillSwitch, log *logger.Logger, opts ...Option) *Overlord {
	if log == nil {
		log = logger.NewNop()
	}
	o := &Overlord{
		cfg:    cfg,
		kill:   kill,
		log:    log,
		exit:   os.Exit,
		orders: make([]int64, 0, 16),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetKillSwitch wires the kill switch after construction (host and overlord reference each other)
func (o *Overlord) SetKillSwitch(k contracts.KillSwitch) {
	o.kill = k
}

// =============================================================================
// State updates
// =============================================================================

// RecordOrder records an order submission time
func (o *Overlord) RecordOrder(nowNs int64) {
	o.orders = append(o.orders, nowNs)
}

// UpdatePositions sets the concurrent position count
func (o *Overlord) UpdatePositions(n int) {
	o.positions = n
}

// UpdateDailyPnL sets session PnL as a fraction of session-start equity
func (o *Overlord) UpdateDailyPnL(pct float64) {
	o.dailyPnLPct = pct
}

// RecordLoss extends the loss streak
func (o *Overlord) RecordLoss() {
	o.consecutiveLosses++
}

// RecordWin resets the loss streak
func (o *Overlord) RecordWin() {
	o.consecutiveLosses = 0
}

// OnStaleDataAlert starts the stale-data countdown. The first alert wins.
func (o *Overlord) OnStaleDataAlert(nowNs int64) {
	if o.stale {
		return
	}
	o.stale = true
	o.staleSinceNs = nowNs
}

// ClearStaleAlert stops the countdown
func (o *Overlord) ClearStaleAlert() {
	o.stale = false
	o.staleSinceNs = 0
}

// IsFlattened reports whether Nuclear Flatten has run this session
func (o *Overlord) IsFlattened() bool {
	return o.flattened
}

// ResetDaily clears all session state including the flattened flag.
// Only valid at a new session boundary.
func (o *Overlord) ResetDaily() {
	o.orders = o.orders[:0]
	o.dailyPnLPct = 0
	o.consecutiveLosses = 0
	o.ClearStaleAlert()
	o.flattened = false
	o.flattenReason = ""
	o.log.Info("Risk overlord daily reset")
}

// Snapshot returns a value copy of the monitor state
func (o *Overlord) Snapshot() Snapshot {
	return Snapshot{
		Flattened:         o.flattened,
		FlattenReason:     o.flattenReason,
		RecentOrders:      len(o.orders),
		Positions:         o.positions,
		DailyPnLPct:       o.dailyPnLPct,
		ConsecutiveLosses: o.consecutiveLosses,
		StaleSinceNs:      o.staleSinceNs,
	}
}

// =============================================================================
// Check
// =============================================================================

// Check evaluates the pillars in fixed order. The first breach runs Nuclear Flatten.
func (o *Overlord) Check(nowNs int64) CheckResult {
	if o.flattened {
		return CheckResult{Status: StatusFlattened}
	}

	var pillar string
	switch {
	case o.antiSpam(nowNs):
		pillar = PillarAntiSpam
	case o.positions > o.cfg.MaxConcurrentPositions:
		pillar = PillarFatFinger
	case o.dailyPnLPct <= o.cfg.MaxDailyDrawdown:
		pillar = PillarDailyDrawdown
	case o.consecutiveLosses >= o.cfg.MaxConsecutiveLosses:
		pillar = PillarConsecutiveLosses
	case o.stale && nowNs-o.staleSinceNs >= o.cfg.StaleDataCountdown.Nanoseconds():
		pillar = PillarStaleData
	default:
		return CheckResult{Status: StatusOK}
	}

	o.log.WithField("pillar", pillar).Critical("RISK BREACH, initiating Nuclear Flatten")
	o.nuclearFlatten(nowNs, pillar)
	return CheckResult{Status: StatusBreach, Pillar: pillar}
}

// antiSpam prunes order times outside the trailing minute and tests the rate
func (o *Overlord) antiSpam(nowNs int64) bool {
	cutoff := nowNs - orderWindow
	keep := o.orders[:0]
	for _, ts := range o.orders {
		if ts > cutoff {
			keep = append(keep, ts)
		}
	}
	o.orders = keep
	return len(o.orders) > o.cfg.MaxOrdersPerMinute
}

// nuclearFlatten runs the one-shot kill sequence. Errors are logged, never retried.
func (o *Overlord) nuclearFlatten(nowNs int64, reason string) {
	o.flattened = true
	o.flattenReason = reason

	if o.kill != nil {
		if err := o.kill.CancelAllOrders(); err != nil {
			o.log.WithError(err).Critical("Nuclear Flatten: cancel all orders failed")
		}
		if err := o.kill.FlattenAllPositions(); err != nil {
			o.log.WithError(err).Critical("Nuclear Flatten: flatten positions failed")
		}
	} else {
		o.log.Critical("Nuclear Flatten: no kill switch wired")
	}

	if o.notify != nil {
		o.notify.PublishSync(contracts.Event{
			ID:          uuid.NewString(),
			Type:        contracts.EventRiskLimitBreached,
			TimestampNs: nowNs,
			Source:      "RiskOverlord",
			Payload: map[string]interface{}{
				"reason":        reason,
				"daily_pnl_pct": o.dailyPnLPct,
				"positions":     o.positions,
			},
		})
	}

	if o.kill != nil {
		if err := o.kill.ForceDormant(); err != nil {
			o.log.WithError(err).Critical("Nuclear Flatten: force dormant failed")
		}
	}

	o.log.WithFields(map[string]interface{}{
		"reason":        reason,
		"daily_pnl_pct": o.dailyPnLPct * 100,
		"positions":     o.positions,
	}).Critical("NUCLEAR FLATTEN EXECUTED")

	if o.cfg.LiveMode {
		o.log.Critical("Live mode, terminating process")
		o.exit(1)
	}
}
