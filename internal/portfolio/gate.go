package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/flof/backend/pkg/logger"
)

// Gate identifiers, in evaluation order
const (
	GateDailyDrawdown  = "P3_daily_drawdown"
	GateLossStreak     = "P4_loss_streak"
	GateNuclearLockout = "P5_nuclear_lockout"
	GateTotalExposure  = "P1_total_exposure"
	GateGroupLimit     = "P2_group_limit"
	ReasonAllPassed    = "all_gates_passed"
)

// LedgerEntry is a position's footprint in the gate
type LedgerEntry struct {
	ID               string  `json:"id"`
	Instrument       string  `json:"instrument"`
	CorrelationGroup string  `json:"correlation_group"` // AddPosition 이 채움
	RiskFraction     float64 `json:"risk_fraction"`
	Contracts        int     `json:"contracts"`
}

// Decision is the outcome of one evaluation
type Decision struct {
	Passed bool   `json:"passed"`
	Gate   string `json:"gate,omitempty"`
	Reason string `json:"reason"`
}

// LedgerSnapshot is a value copy of the ledger aggregates
type LedgerSnapshot struct {
	TotalExposure     float64        `json:"total_exposure"`
	GroupCounts       map[string]int `json:"group_counts"`
	OpenPositions     int            `json:"open_positions"`
	DailyPnLPct       float64        `json:"daily_pnl_pct"`
	ConsecutiveLosses int            `json:"consecutive_losses"`
	LockoutUntilNs    int64          `json:"lockout_until_ns,omitempty"`
}

// Gate is the pre-trade portfolio gate.
// 원장 집계(총 노출, 그룹별 카운트)는 증분으로만 갱신. 전체 스캔 재계산 없음
//
// 동기화 없음: 호스트가 호출을 직렬화
type Gate struct {
	cfg          Constraints
	instrumentTo map[string]string
	log          *logger.Logger

	positions     map[string]LedgerEntry
	totalExposure float64
	groupCounts   map[string]int

	dailyPnLPct       float64
	consecutiveLosses int
	flattenAtNs       int64
	hasFlatten        bool
}

// NewGate creates a gate with an empty ledger
func NewGate(cfg Constraints, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	g := &Gate{
		cfg:          cfg,
		instrumentTo: make(map[string]string),
		log:          log,
		positions:    make(map[string]LedgerEntry),
		groupCounts:  make(map[string]int),
	}
	for group, instruments := range cfg.CorrelationGroups {
		for _, inst := range instruments {
			g.instrumentTo[inst] = group
		}
	}
	return g
}

// GroupOf returns the correlation group for an instrument
func (g *Gate) GroupOf(instrument string) string {
	if group, ok := g.instrumentTo[instrument]; ok {
		return group
	}
	return DefaultGroup
}

// Evaluate checks P3 → P4 → P5 → P1 → P2 and returns the first failure
func (g *Gate) Evaluate(instrument string, riskFraction float64, nowNs int64) Decision {
	// P3: 일일 손실 한도
	if g.dailyPnLPct <= g.cfg.DailyDrawdownLimit {
		return g.fail(GateDailyDrawdown, fmt.Sprintf("%s: %s <= %s",
			GateDailyDrawdown, pct(g.dailyPnLPct), pct(g.cfg.DailyDrawdownLimit)))
	}

	// P4: 연속 손실
	if g.consecutiveLosses >= g.cfg.MaxLossStreak {
		return g.fail(GateLossStreak, fmt.Sprintf("%s: %d >= %d",
			GateLossStreak, g.consecutiveLosses, g.cfg.MaxLossStreak))
	}

	// P5: Nuclear Flatten 이후 잠금
	if g.hasFlatten {
		elapsed := nowNs - g.flattenAtNs
		lockout := g.cfg.Lockout.Nanoseconds()
		if elapsed < lockout {
			remaining := time.Duration(lockout - elapsed).Seconds()
			return g.fail(GateNuclearLockout, fmt.Sprintf("%s: %.0fs remaining", GateNuclearLockout, remaining))
		}
	}

	// P1: 총 노출
	projected := g.totalExposure + riskFraction
	if projected > g.cfg.MaxTotalExposure {
		return g.fail(GateTotalExposure, fmt.Sprintf("%s: %s > %s",
			GateTotalExposure, pct(projected), pct(g.cfg.MaxTotalExposure)))
	}

	// P2: 상관 그룹
	group := g.GroupOf(instrument)
	if count := g.groupCounts[group]; count >= g.cfg.MaxPerGroup {
		return g.fail(GateGroupLimit, fmt.Sprintf("%s: group '%s' has %d >= %d",
			GateGroupLimit, group, count, g.cfg.MaxPerGroup))
	}

	return Decision{Passed: true, Reason: ReasonAllPassed}
}

func (g *Gate) fail(gate, reason string) Decision {
	g.log.WithFields(map[string]interface{}{
		"gate":   gate,
		"reason": reason,
	}).Info("Portfolio gate rejected entry")
	return Decision{Gate: gate, Reason: reason}
}

// AddPosition records an open position. Re-adding an id replaces it.
func (g *Gate) AddPosition(e LedgerEntry) {
	if _, ok := g.positions[e.ID]; ok {
		g.RemovePosition(e.ID)
	}
	e.CorrelationGroup = g.GroupOf(e.Instrument)
	g.positions[e.ID] = e
	g.totalExposure += e.RiskFraction
	g.groupCounts[e.CorrelationGroup]++
}

// RemovePosition drops a position. Unknown ids are ignored; aggregates clamp at 0.
func (g *Gate) RemovePosition(id string) {
	e, ok := g.positions[id]
	if !ok {
		return
	}
	delete(g.positions, id)
	g.totalExposure = math.Max(0, g.totalExposure-e.RiskFraction)
	if n := g.groupCounts[e.CorrelationGroup] - 1; n > 0 {
		g.groupCounts[e.CorrelationGroup] = n
	} else {
		delete(g.groupCounts, e.CorrelationGroup)
	}
}

// UpdateDailyPnL sets the session PnL as a fraction of session-start equity
func (g *Gate) UpdateDailyPnL(pct float64) {
	g.dailyPnLPct = pct
}

// RecordLoss extends the loss streak
func (g *Gate) RecordLoss() {
	g.consecutiveLosses++
}

// RecordWin resets the loss streak
func (g *Gate) RecordWin() {
	g.consecutiveLosses = 0
}

// RecordNuclearFlatten starts the post-flatten lockout
func (g *Gate) RecordNuclearFlatten(nowNs int64) {
	g.flattenAtNs = nowNs
	g.hasFlatten = true
}

// ResetDaily clears drawdown, streak and lockout at a session boundary.
// Open positions stay in the ledger.
func (g *Gate) ResetDaily() {
	g.dailyPnLPct = 0
	g.consecutiveLosses = 0
	g.flattenAtNs = 0
	g.hasFlatten = false
}

// TotalExposure returns the cached total risk fraction
func (g *Gate) TotalExposure() float64 {
	return g.totalExposure
}

// OpenPositions returns the number of ledger entries
func (g *Gate) OpenPositions() int {
	return len(g.positions)
}

// Snapshot returns a value copy of the ledger state
func (g *Gate) Snapshot() LedgerSnapshot {
	counts := make(map[string]int, len(g.groupCounts))
	for k, v := range g.groupCounts {
		counts[k] = v
	}
	s := LedgerSnapshot{
		TotalExposure:     g.totalExposure,
		GroupCounts:       counts,
		OpenPositions:     len(g.positions),
		DailyPnLPct:       g.dailyPnLPct,
		ConsecutiveLosses: g.consecutiveLosses,
	}
	if g.hasFlatten {
		s.LockoutUntilNs = g.flattenAtNs + g.cfg.Lockout.Nanoseconds()
	}
	return s
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
