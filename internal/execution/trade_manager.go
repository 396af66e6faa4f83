package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// =============================================================================
// Config
// =============================================================================

// Trail methods for Phase 2 runners
const (
	TrailStructuralNode = "structural_node"
	TrailFixed          = "fixed"
)

// TradeConfig 포지션 단계 관리 파라미터
// ⭐ SSOT: 부분 청산/트레일/조건부 청산 임계값은 여기서만
type TradeConfig struct {
	TickSize   float64 `yaml:"tick_size" json:"tick_size"`
	PointValue float64 `yaml:"point_value" json:"point_value"` // 1포인트당 통화 가치 (ES=50)

	// Phase 1
	Phase1TargetR     float64 `yaml:"phase1_target_r" json:"phase1_target_r"`
	DefaultPartialPct float64 `yaml:"default_partial_pct" json:"default_partial_pct"`
	APlusPartialPct   float64 `yaml:"a_plus_partial_pct" json:"a_plus_partial_pct"`

	// Micro trail
	MicroTrailActivationR float64 `yaml:"micro_trail_activation_r" json:"micro_trail_activation_r"`

	// Phase 2
	TrailMethod string  `yaml:"trail_method" json:"trail_method"`
	FixedTrailR float64 `yaml:"fixed_trail_r" json:"fixed_trail_r"`

	// Climax
	ClimaxAbsorptionThreshold float64 `yaml:"climax_absorption_threshold" json:"climax_absorption_threshold"`
	ClimaxDeltaStallPct       float64 `yaml:"climax_delta_stall_pct" json:"climax_delta_stall_pct"`
	ClimaxTargetProximityPct  float64 `yaml:"climax_target_proximity_pct" json:"climax_target_proximity_pct"`

	// Conditional exits
	TapeFailureDelta          float64       `yaml:"tape_failure_delta" json:"tape_failure_delta"`
	TapeFailureTightenedDelta float64       `yaml:"tape_failure_tightened_delta" json:"tape_failure_tightened_delta"`
	ToxicityTimer             time.Duration `yaml:"toxicity_timer" json:"toxicity_timer"`
	ToxicityDeltaPct          float64       `yaml:"toxicity_delta_pct" json:"toxicity_delta_pct"`
	EODFlattenTime            string        `yaml:"eod_flatten_time" json:"eod_flatten_time"` // "HH:MM" 세션 시간대
}

// DefaultTradeConfig returns the ES defaults
func DefaultTradeConfig() TradeConfig {
	return TradeConfig{
		TickSize:                  0.25,
		PointValue:                50,
		Phase1TargetR:             2.0,
		DefaultPartialPct:         0.50,
		APlusPartialPct:           0.33,
		MicroTrailActivationR:     1.0,
		TrailMethod:               TrailStructuralNode,
		FixedTrailR:               2.0,
		ClimaxAbsorptionThreshold: 0.75,
		ClimaxDeltaStallPct:       0.30,
		ClimaxTargetProximityPct:  0.75,
		TapeFailureDelta:          0.80,
		TapeFailureTightenedDelta: 0.65,
		ToxicityTimer:             120 * time.Second,
		ToxicityDeltaPct:          0.70,
		EODFlattenTime:            "15:50",
	}
}

// =============================================================================
// Exit reasons
// =============================================================================

// Exit reasons recorded on closed trades
const (
	ExitStopHit        = "stop_hit"
	ExitTargetHit      = "target_hit"
	ExitPhase1Target   = "phase1_target"
	ExitClimax         = "absorption_climax"
	ExitTapeFailure    = "tape_failure_exit"
	ExitToxicity       = "toxicity_exit"
	ExitToxicityTimer  = "toxicity_timer_exit"
	ExitEODFlatten     = "eod_flatten"
	ExitNuclearFlatten = "nuclear_flatten"
	ExitEndOfBacktest  = "end_of_backtest"
)

// =============================================================================
// Position
// =============================================================================

// ManagedPosition 단계 관리 중인 포지션
type ManagedPosition struct {
	ID         string              `json:"id"`
	Instrument string              `json:"instrument"`
	Direction  contracts.Direction `json:"direction"`
	Grade      contracts.Grade     `json:"grade"`

	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`

	TotalContracts     int `json:"total_contracts"`
	RemainingContracts int `json:"remaining_contracts"`

	Phase         contracts.TradePhase `json:"phase"`
	PartialFilled bool                 `json:"partial_filled"`
	BreakevenSet  bool                 `json:"breakeven_set"`

	OriginalRisk     float64 `json:"original_risk"`     // 진입 시점 |entry - stop|, 이후 불변
	HighestFavorable float64 `json:"highest_favorable"` // 숏은 최저가
	EntryNs          int64   `json:"entry_ns"`
	LastMovementNs   int64   `json:"last_movement_ns"`

	PartialPnL float64 `json:"partial_pnl"`

	ExitPrice  float64 `json:"exit_price,omitempty"`
	ExitReason string  `json:"exit_reason,omitempty"`
	ExitNs     int64   `json:"exit_ns,omitempty"`
}

// NewManagedPosition creates a Phase 1 position
func NewManagedPosition(id string, dir contracts.Direction, grade contracts.Grade, entry, stop, target float64, size int, entryNs int64) *ManagedPosition {
	return &ManagedPosition{
		ID:                 id,
		Direction:          dir,
		Grade:              grade,
		EntryPrice:         entry,
		StopPrice:          stop,
		TargetPrice:        target,
		TotalContracts:     size,
		RemainingContracts: size,
		Phase:              contracts.Phase1Initial,
		OriginalRisk:       math.Abs(entry - stop),
		HighestFavorable:   entry,
		EntryNs:            entryNs,
		LastMovementNs:     entryNs,
	}
}

// rMultiple returns favorable movement in units of the original risk
func (p *ManagedPosition) rMultiple(price float64) (float64, bool) {
	if p.OriginalRisk == 0 {
		return 0, false
	}
	return (price - p.EntryPrice) * p.Direction.Sign() / p.OriginalRisk, true
}

// UpdateFavorable records a new best price. Returns true when it moved.
func (p *ManagedPosition) UpdateFavorable(price float64, nowNs int64) bool {
	if (price-p.HighestFavorable)*p.Direction.Sign() > 0 {
		p.HighestFavorable = price
		p.LastMovementNs = nowNs
		return true
	}
	return false
}

// StopHit reports whether the adverse bar extreme reached the stop
func (p *ManagedPosition) StopHit(barHigh, barLow float64) bool {
	if p.Direction == contracts.Long {
		return barLow <= p.StopPrice
	}
	return barHigh >= p.StopPrice
}

// TargetHit reports whether the favorable bar extreme reached the target
func (p *ManagedPosition) TargetHit(barHigh, barLow float64) bool {
	if p.TargetPrice == 0 {
		return false
	}
	if p.Direction == contracts.Long {
		return barHigh >= p.TargetPrice
	}
	return barLow <= p.TargetPrice
}

// =============================================================================
// Actions
// =============================================================================

// MicroTrail moves the stop to breakeven + 1 tick
type MicroTrail struct {
	NewStop float64 `json:"new_stop"`
}

// PartialExit is the Phase 1 fixed partial
type PartialExit struct {
	Contracts      int     `json:"contracts"`
	Price          float64 `json:"price"`
	BreakevenPrice float64 `json:"breakeven_price"`
	// 부분 청산 후 남는 계약이 없으면 전량 청산 (러너 없음)
	ClosesPosition bool    `json:"closes_position,omitempty"`
}

// StopUpdate tightens a runner's stop
type StopUpdate struct {
	NewStop float64 `json:"new_stop"`
	Method  string  `json:"method"`
}

// ExitSignal is a full-close decision
type ExitSignal struct {
	Reason    string  `json:"reason"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// ClosedTrade is the realized result of a full close
type ClosedTrade struct {
	Position  ManagedPosition `json:"position"`
	ExitPrice float64         `json:"exit_price"`
	Reason    string          `json:"reason"`
	ExitNs    int64           `json:"exit_ns"`
	PnL       float64         `json:"pnl"` // 통화 기준, 부분 청산 PnL 포함
	RMultiple float64         `json:"r_multiple"`
}

// =============================================================================
// TradeManager
// =============================================================================

// TradeManager 포지션 단계(Phase1 → Phase2) 및 조건부 청산 관리
// 동기화 없음: 호스트가 호출을 직렬화
type TradeManager struct {
	cfg       TradeConfig
	log       *logger.Logger
	positions map[string]*ManagedPosition
	order     []string
}

// NewTradeManager creates a trade manager
func NewTradeManager(cfg TradeConfig, log *logger.Logger) *TradeManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &TradeManager{
		cfg:       cfg,
		log:       log,
		positions: make(map[string]*ManagedPosition),
	}
}

// Config returns the manager configuration
func (m *TradeManager) Config() TradeConfig {
	return m.cfg
}

// Add registers a position under management
func (m *TradeManager) Add(pos *ManagedPosition) {
	if _, ok := m.positions[pos.ID]; !ok {
		m.order = append(m.order, pos.ID)
	}
	m.positions[pos.ID] = pos
}

// Remove drops a position. Returns nil for unknown ids.
func (m *TradeManager) Remove(id string) *ManagedPosition {
	pos, ok := m.positions[id]
	if !ok {
		return nil
	}
	delete(m.positions, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return pos
}

// Get returns a managed position
func (m *TradeManager) Get(id string) (*ManagedPosition, bool) {
	pos, ok := m.positions[id]
	return pos, ok
}

// Positions returns open positions in entry order
func (m *TradeManager) Positions() []*ManagedPosition {
	out := make([]*ManagedPosition, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.positions[id])
	}
	return out
}

// Count returns the number of open positions
func (m *TradeManager) Count() int {
	return len(m.positions)
}

// -----------------------------------------------------------------------------
// Phase 1
// -----------------------------------------------------------------------------

// CheckMicroTrail fires once, in Phase 1, when price reaches the activation R
func (m *TradeManager) CheckMicroTrail(pos *ManagedPosition, price float64) *MicroTrail {
	if pos.BreakevenSet || pos.Phase != contracts.Phase1Initial {
		return nil
	}
	r, ok := pos.rMultiple(price)
	if !ok || r < m.cfg.MicroTrailActivationR {
		return nil
	}
	return &MicroTrail{NewStop: m.RoundToTick(m.breakeven(pos))}
}

// ApplyMicroTrail moves the stop to breakeven. Phase is unchanged.
func (m *TradeManager) ApplyMicroTrail(pos *ManagedPosition, mt *MicroTrail) {
	pos.StopPrice = mt.NewStop
	pos.BreakevenSet = true
	m.log.WithFields(map[string]interface{}{
		"position_id": pos.ID,
		"new_stop":    mt.NewStop,
	}).Info("Micro trail: stop moved to breakeven")
}

// EvaluatePhase1 returns the fixed partial once price reaches the Phase 1 target R
func (m *TradeManager) EvaluatePhase1(pos *ManagedPosition, price float64) *PartialExit {
	if pos.Phase != contracts.Phase1Initial || pos.PartialFilled {
		return nil
	}
	r, ok := pos.rMultiple(price)
	if !ok || r < m.cfg.Phase1TargetR {
		return nil
	}

	pct := m.cfg.DefaultPartialPct
	if pos.Grade == contracts.GradeAPlus {
		pct = m.cfg.APlusPartialPct
	}
	size := int(float64(pos.TotalContracts) * pct)
	if size < 1 {
		size = 1
	}
	closes := size >= pos.RemainingContracts
	if closes {
		size = pos.RemainingContracts
	}

	return &PartialExit{
		Contracts:      size,
		Price:          price,
		BreakevenPrice: m.breakeven(pos),
		ClosesPosition: closes,
	}
}

// ApplyPhase1 books the partial, sets breakeven and promotes to runner.
// A partial that closes the position is left to Close.
func (m *TradeManager) ApplyPhase1(pos *ManagedPosition, pe *PartialExit) {
	if pe.ClosesPosition {
		return
	}
	pos.PartialPnL += (pe.Price - pos.EntryPrice) * pos.Direction.Sign() * float64(pe.Contracts) * m.cfg.PointValue
	pos.RemainingContracts -= pe.Contracts
	pos.PartialFilled = true
	pos.StopPrice = pe.BreakevenPrice
	pos.BreakevenSet = true
	pos.Phase = contracts.Phase2Runner

	m.log.WithFields(map[string]interface{}{
		"position_id": pos.ID,
		"contracts":   pe.Contracts,
		"price":       pe.Price,
		"remaining":   pos.RemainingContracts,
	}).Info("Phase 1 partial exit, runner at breakeven")
}

// -----------------------------------------------------------------------------
// Phase 2
// -----------------------------------------------------------------------------

// EvaluatePhase2 trails the runner stop. bos and lvn are optional structure levels.
// 스톱은 조이기만 함 (절대 느슨해지지 않음)
func (m *TradeManager) EvaluatePhase2(pos *ManagedPosition, price float64, bos, lvn *float64) *StopUpdate {
	if pos.Phase != contracts.Phase2Runner {
		return nil
	}

	if (price-pos.HighestFavorable)*pos.Direction.Sign() > 0 {
		pos.HighestFavorable = price
	}

	var candidate float64
	method := TrailFixed
	if m.cfg.TrailMethod == TrailStructuralNode && bos != nil {
		method = TrailStructuralNode
		candidate = *bos
		if lvn != nil {
			if pos.Direction == contracts.Long {
				candidate = math.Min(candidate, *lvn)
			} else {
				candidate = math.Max(candidate, *lvn)
			}
		}
	} else {
		risk := pos.OriginalRisk
		if risk <= 0 {
			risk = math.Abs(pos.EntryPrice - pos.StopPrice)
		}
		candidate = pos.HighestFavorable - pos.Direction.Sign()*m.cfg.FixedTrailR*risk
	}

	if (candidate-pos.StopPrice)*pos.Direction.Sign() <= 0 {
		return nil
	}
	return &StopUpdate{NewStop: m.RoundToTick(candidate), Method: method}
}

// ApplyStopUpdate sets the new runner stop
func (m *TradeManager) ApplyStopUpdate(pos *ManagedPosition, su *StopUpdate) {
	pos.StopPrice = su.NewStop
	m.log.WithFields(map[string]interface{}{
		"position_id": pos.ID,
		"new_stop":    su.NewStop,
		"method":      su.Method,
	}).Debug("Runner stop trailed")
}

// EvaluateClimax checks the absorption + delta stall exit for runners.
// price 0 skips the target proximity gate.
func (m *TradeManager) EvaluateClimax(pos *ManagedPosition, absorption, delta, price float64, near200 bool) *ExitSignal {
	if pos.Phase != contracts.Phase2Runner {
		return nil
	}

	if price != 0 && m.cfg.ClimaxTargetProximityPct > 0 {
		total := math.Abs(pos.TargetPrice - pos.EntryPrice)
		if total > 0 {
			progress := (price - pos.EntryPrice) * pos.Direction.Sign() / total
			if progress < m.cfg.ClimaxTargetProximityPct {
				return nil
			}
		}
	}

	absThr := m.cfg.ClimaxAbsorptionThreshold
	deltaThr := m.cfg.ClimaxDeltaStallPct
	if near200 {
		absThr *= 0.8
		deltaThr *= 1.2
	}

	if absorption >= absThr && math.Abs(delta) <= deltaThr {
		return &ExitSignal{
			Reason:    ExitClimax,
			Value:     absorption,
			Threshold: absThr,
			Message:   fmt.Sprintf("absorption %.2f >= %.2f, delta stall %.2f", absorption, absThr, delta),
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Conditional exits
// -----------------------------------------------------------------------------

// CheckTapeFailure exits when sell-side delta overwhelms. Threshold tightens when SMA health fails.
func (m *TradeManager) CheckTapeFailure(pos *ManagedPosition, sellDeltaPct float64, smaHealthOK bool) *ExitSignal {
	thr := m.cfg.TapeFailureDelta
	if !smaHealthOK {
		thr = m.cfg.TapeFailureTightenedDelta
	}
	if sellDeltaPct < thr {
		return nil
	}
	return &ExitSignal{
		Reason:    ExitTapeFailure,
		Value:     sellDeltaPct,
		Threshold: thr,
		Message:   fmt.Sprintf("sell delta %.2f >= %.2f (tightened=%t)", sellDeltaPct, thr, !smaHealthOK),
	}
}

// CheckToxicityTimer exits when there has been no favorable movement for the timer duration
func (m *TradeManager) CheckToxicityTimer(pos *ManagedPosition, nowNs int64) *ExitSignal {
	elapsed := nowNs - pos.LastMovementNs
	if elapsed < m.cfg.ToxicityTimer.Nanoseconds() {
		return nil
	}
	secs := time.Duration(elapsed).Seconds()
	return &ExitSignal{
		Reason:    ExitToxicityTimer,
		Value:     secs,
		Threshold: m.cfg.ToxicityTimer.Seconds(),
		Message:   fmt.Sprintf("no favorable movement for %.0fs", secs),
	}
}

// CheckToxicityExit exits immediately on adverse delta
func (m *TradeManager) CheckToxicityExit(pos *ManagedPosition, adverseDeltaPct float64) *ExitSignal {
	if adverseDeltaPct < m.cfg.ToxicityDeltaPct {
		return nil
	}
	return &ExitSignal{
		Reason:    ExitToxicity,
		Value:     adverseDeltaPct,
		Threshold: m.cfg.ToxicityDeltaPct,
		Message:   fmt.Sprintf("adverse delta %.2f >= %.2f", adverseDeltaPct, m.cfg.ToxicityDeltaPct),
	}
}

// CheckEODFlatten compares a zero-padded "HH:MM" clock against the flatten time
func (m *TradeManager) CheckEODFlatten(clock string) bool {
	return clock >= m.cfg.EODFlattenTime
}

// -----------------------------------------------------------------------------
// Close
// -----------------------------------------------------------------------------

// Close realizes PnL for the remaining contracts plus any booked partial.
// R is measured against the original risk distance.
func (m *TradeManager) Close(pos *ManagedPosition, exitPrice float64, reason string, nowNs int64) ClosedTrade {
	perContract := (exitPrice - pos.EntryPrice) * pos.Direction.Sign()
	pnl := perContract*float64(pos.RemainingContracts)*m.cfg.PointValue + pos.PartialPnL

	var r float64
	if pos.OriginalRisk > 0 {
		r = perContract / pos.OriginalRisk
	}

	pos.ExitPrice = exitPrice
	pos.ExitReason = reason
	pos.ExitNs = nowNs
	m.Remove(pos.ID)

	m.log.WithFields(map[string]interface{}{
		"position_id": pos.ID,
		"reason":      reason,
		"exit_price":  exitPrice,
		"pnl":         pnl,
		"r_multiple":  r,
	}).Info("Position closed")

	return ClosedTrade{
		Position:  *pos,
		ExitPrice: exitPrice,
		Reason:    reason,
		ExitNs:    nowNs,
		PnL:       pnl,
		RMultiple: r,
	}
}

// RoundToTick rounds a price to the nearest tick
func (m *TradeManager) RoundToTick(price float64) float64 {
	return roundToTick(price, m.cfg.TickSize)
}

func (m *TradeManager) breakeven(pos *ManagedPosition) float64 {
	return pos.EntryPrice + pos.Direction.Sign()*m.cfg.TickSize
}
