package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var hhmmRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === System ===
	if cfg.System.Instrument == "" {
		return ValidationError{"system.instrument", "required"}
	}
	if _, err := time.LoadLocation(cfg.System.Timezone); err != nil {
		return ValidationError{"system.timezone", err.Error()}
	}
	if cfg.System.SessionRollTime != "" {
		if err := validateHHMM(cfg.System.SessionRollTime); err != nil {
			return ValidationError{"system.session_roll_time", err.Error()}
		}
	}
	if cfg.System.RingBufferCapacity <= 0 {
		return ValidationError{"system.ring_buffer_capacity", "must be > 0"}
	}
	if cfg.System.StartingEquity <= 0 {
		return ValidationError{"system.starting_equity", "must be > 0"}
	}

	// === Predator ===
	for i, kz := range cfg.Predator.Killzones {
		if err := validateHHMM(kz.Start); err != nil {
			return ValidationError{fmt.Sprintf("predator.killzones[%d].start", i), err.Error()}
		}
		if err := validateHHMM(kz.End); err != nil {
			return ValidationError{fmt.Sprintf("predator.killzones[%d].end", i), err.Error()}
		}
	}
	if cfg.Predator.ProximityHaloATRMult <= 0 {
		return ValidationError{"predator.proximity_halo_atr_mult", "must be > 0"}
	}

	// === Scoring ===
	th := cfg.Scoring.Thresholds
	if !(th.BMin <= th.AMin && th.AMin <= th.APlusMin) {
		return ValidationError{"scoring.thresholds", "must satisfy b_min <= a_min <= a_plus_min"}
	}
	if th.Tier1GateMinimum < 0 {
		return ValidationError{"scoring.thresholds.tier1_gate_minimum", "must be >= 0"}
	}
	s := cfg.Scoring.Sizing
	for field, v := range map[string]float64{
		"scoring.sizing.a_plus_risk": s.APlusRisk,
		"scoring.sizing.a_risk":      s.ARisk,
		"scoring.sizing.b_risk":      s.BRisk,
	} {
		if err := validatePctRange(v, field); err != nil {
			return err
		}
	}

	// === Portfolio / Risk ===
	if err := validatePctRange(cfg.Portfolio.MaxTotalExposure, "portfolio.p1_max_total_exposure"); err != nil {
		return err
	}
	if cfg.Portfolio.DailyDrawdownLimit >= 0 {
		return ValidationError{"portfolio.p3_daily_drawdown_limit", "must be negative"}
	}
	if cfg.Risk.MaxDailyDrawdown >= 0 {
		return ValidationError{"risk_overlord.max_daily_drawdown_pct", "must be negative"}
	}
	if cfg.Risk.MaxOrdersPerMinute <= 0 || cfg.Risk.MaxConcurrentPositions <= 0 {
		return ValidationError{"risk_overlord", "max_orders_per_minute and max_concurrent_positions must be > 0"}
	}
	if cfg.Shadow.SafetyMaxDrawdownPct >= 0 {
		return ValidationError{"shadow.safety_max_drawdown_pct", "must be negative"}
	}

	// === Trade / Execution ===
	t := cfg.Trade
	if t.TickSize <= 0 || t.PointValue <= 0 {
		return ValidationError{"trade", "tick_size and point_value must be > 0"}
	}
	if t.TrailMethod != execution.TrailStructuralNode && t.TrailMethod != execution.TrailFixed {
		return ValidationError{"trade.trail_method", "must be structural_node or fixed"}
	}
	if err := validatePctRange(t.DefaultPartialPct, "trade.default_partial_pct"); err != nil {
		return err
	}
	if err := validatePctRange(t.APlusPartialPct, "trade.a_plus_partial_pct"); err != nil {
		return err
	}
	if err := validateHHMM(t.EODFlattenTime); err != nil {
		return ValidationError{"trade.eod_flatten_time", err.Error()}
	}
	if cfg.Bracket.TickSize <= 0 {
		return ValidationError{"execution.tick_size", "must be > 0"}
	}
	switch cfg.Bracket.DefaultOrderType {
	case contracts.OrderTypeMWP, contracts.OrderTypeAggressiveLimit, contracts.OrderTypeLimit:
	default:
		return ValidationError{"execution.default_order_type", fmt.Sprintf("unsupported %q", cfg.Bracket.DefaultOrderType)}
	}

	// === EventBus / Scheduler ===
	if cfg.EventBus.MaxQueueDepth <= 0 {
		return ValidationError{"event_bus.max_queue_depth", "must be > 0"}
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for field, spec := range map[string]string{
		"scheduler.risk_check":       cfg.Scheduler.RiskCheck,
		"scheduler.daily_reset":      cfg.Scheduler.DailyReset,
		"scheduler.snapshot_publish": cfg.Scheduler.SnapshotPublish,
		"scheduler.calendar_refresh": cfg.Scheduler.CalendarRefresh,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return ValidationError{field, err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Shadow.Enabled && cfg.System.LiveMode {
		warnings = append(warnings, Warning{
			Code:    "SHADOW_IN_LIVE",
			Message: "shadow mode in live mode: 게이트 실패 신호도 실주문으로 나감",
		})
	}

	if cfg.Trade.TickSize != cfg.Bracket.TickSize {
		warnings = append(warnings, Warning{
			Code:    "TICK_SIZE_MISMATCH",
			Message: fmt.Sprintf("trade.tick_size=%.4f != execution.tick_size=%.4f", cfg.Trade.TickSize, cfg.Bracket.TickSize),
		})
	}

	if cfg.Risk.MaxDailyDrawdown > cfg.Portfolio.DailyDrawdownLimit {
		warnings = append(warnings, Warning{
			Code:    "OVERLORD_BEFORE_GATE",
			Message: "risk_overlord drawdown is tighter than portfolio P3: nuclear flatten fires before the gate blocks",
		})
	}

	// 알 수 없는 토글 키
	known := make(map[string]bool, len(toggleKeys))
	for _, key := range toggleKeys {
		known[key] = true
	}
	for group, section := range cfg.Toggles {
		for name := range section {
			key := "toggles." + group + "." + name
			if !known[key] {
				warnings = append(warnings, Warning{
					Code:    "UNKNOWN_TOGGLE",
					Message: key + " is not a registered toggle",
				})
			}
		}
	}

	return warnings
}

// === Helper Functions ===

func validateHHMM(s string) error {
	if !hhmmRe.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}

// validatePctRange는 비율 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
