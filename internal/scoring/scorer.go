package scoring

import (
	"fmt"

	"github.com/wonny/flof/backend/internal/contracts"
)

// =============================================================================
// Config
// =============================================================================

// Points 항목별 배점
type Points struct {
	TrendFull        int `yaml:"trend_full" json:"trend_full"`
	TrendReduced     int `yaml:"trend_reduced" json:"trend_reduced"`
	Sweep            int `yaml:"sweep" json:"sweep"`
	FreshPOI         int `yaml:"fresh_poi" json:"fresh_poi"`
	CHOCH            int `yaml:"choch" json:"choch"`
	OrderFlowFull    int `yaml:"of_full" json:"of_full"`
	OrderFlowPartial int `yaml:"of_partial" json:"of_partial"`
	Killzone         int `yaml:"killzone" json:"killzone"`
	G1Bonus          int `yaml:"g1_bonus" json:"g1_bonus"`
	SMAHalt          int `yaml:"sma_halt" json:"sma_halt"`
	Flat200          int `yaml:"flat_200" json:"flat_200"`
	ElephantBar      int `yaml:"elephant_bar" json:"elephant_bar"`
	MicroTrend       int `yaml:"micro_trend" json:"micro_trend"`
	VWAP             int `yaml:"vwap_sd" json:"vwap_sd"`
	FlipZone         int `yaml:"flip_zone" json:"flip_zone"`
	LiquidityTarget  int `yaml:"liquidity_target" json:"liquidity_target"`
}

// Thresholds 등급 경계
type Thresholds struct {
	Tier1GateMinimum int `yaml:"tier1_gate_minimum" json:"tier1_gate_minimum"`
	APlusMin         int `yaml:"a_plus_min" json:"a_plus_min"`
	AMin             int `yaml:"a_min" json:"a_min"`
	BMin             int `yaml:"b_min" json:"b_min"`
}

// Sizing 등급별 리스크 비율
type Sizing struct {
	APlusRisk          float64 `yaml:"a_plus_risk" json:"a_plus_risk"`
	ARisk              float64 `yaml:"a_risk" json:"a_risk"`
	BRisk              float64 `yaml:"b_risk" json:"b_risk"`
	CascadeMultiplier  float64 `yaml:"cascade_multiplier" json:"cascade_multiplier"`
	ShadowPositionSize float64 `yaml:"shadow_position_size_pct" json:"shadow_position_size_pct"`
}

// Config 컨플루언스 스코어러 설정
type Config struct {
	Points     Points     `yaml:"points" json:"points"`
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	Sizing     Sizing     `yaml:"sizing" json:"sizing"`
}

// DefaultConfig returns the standard scoring model
func DefaultConfig() Config {
	return Config{
		Points: Points{
			TrendFull:        2,
			TrendReduced:     1,
			Sweep:            2,
			FreshPOI:         1,
			CHOCH:            2,
			OrderFlowFull:    2,
			OrderFlowPartial: 1,
			Killzone:         1,
			G1Bonus:          1,
			SMAHalt:          1,
			Flat200:          1,
			ElephantBar:      1,
			MicroTrend:       1,
			VWAP:             1,
			FlipZone:         1,
			LiquidityTarget:  1,
		},
		Thresholds: Thresholds{
			Tier1GateMinimum: 7,
			APlusMin:         14,
			AMin:             12,
			BMin:             9,
		},
		Sizing: Sizing{
			APlusRisk:          0.020,
			ARisk:              0.015,
			BRisk:              0.010,
			CascadeMultiplier:  0.50,
			ShadowPositionSize: 0.005,
		},
	}
}

// Gate identifiers
const (
	GateG1        = "G1_premium_discount"
	GateG2        = "G2_inducement"
	GateG3        = "G3_chop_detector"
	GateT1Minimum = "T1_gate_minimum"
	GateGradeC    = "grade_C"
)

// =============================================================================
// Scorer
// =============================================================================

// Scorer turns a ScoringContext into a TradeSignal or a Rejection.
// ⭐ SSOT: 순수 계산. I/O 없음, 마지막 거절 사유 외 상태 없음
type Scorer struct {
	cfg           Config
	lastRejection *contracts.Rejection
}

// NewScorer creates a scorer
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scoring configuration
func (s *Scorer) Config() Config {
	return s.cfg
}

// LastRejection returns a copy of the most recent rejection (nil after a pass)
func (s *Scorer) LastRejection() *contracts.Rejection {
	if s.lastRejection == nil {
		return nil
	}
	r := *s.lastRejection
	return &r
}

// Score runs G1 → G2 → G3 → Tier1 gate → Tier2 → Tier3 → grade → sizing.
// The first failing stage aborts with a rejection and no signal.
func (s *Scorer) Score(ctx contracts.ScoringContext) (*contracts.TradeSignal, *contracts.Rejection) {
	s.lastRejection = nil

	if ctx.Gates.G1Enabled && !checkG1(ctx) {
		return nil, s.reject(contracts.Rejection{
			Gate:   GateG1,
			Reason: fmt.Sprintf("%s rejected: price in %s zone", ctx.POI.Direction, ctx.Gates.PremiumDiscount),
		})
	}
	if !checkG2(ctx) {
		return nil, s.reject(contracts.Rejection{
			Gate:   GateG2,
			Reason: "No liquidity sweep (inducement) before POI tap",
		})
	}
	if !checkG3(ctx) {
		return nil, s.reject(contracts.Rejection{
			Gate:   GateG3,
			Reason: "Session detected as choppy, no directional entry",
		})
	}

	tier1 := s.tier1(ctx)
	if tier1 < s.cfg.Thresholds.Tier1GateMinimum {
		return nil, s.reject(contracts.Rejection{
			Gate:       GateT1Minimum,
			Reason:     fmt.Sprintf("Tier 1 score %d < minimum %d", tier1, s.cfg.Thresholds.Tier1GateMinimum),
			Tier1Score: tier1,
			TotalScore: tier1,
		})
	}

	tier2 := s.tier2(ctx)
	tier3 := s.tier3(ctx)
	total := tier1 + tier2 + tier3

	grade := s.grade(total, ctx.POI.Type)
	if grade == contracts.GradeC {
		return nil, s.reject(contracts.Rejection{
			Gate: GateGradeC,
			Reason: fmt.Sprintf("Total score %d (T1:%d T2:%d T3:%d) below B minimum %d",
				total, tier1, tier2, tier3, s.cfg.Thresholds.BMin),
			Tier1Score: tier1,
			TotalScore: total,
		})
	}

	return s.signal(ctx, grade, tier1, tier2, tier3, s.size(grade, ctx.CascadeActive)), nil
}

// ScoreShadow never aborts: failed gates are collected, grade C is forced to B
// and any failure drops sizing to the shadow position size.
// G1 is always checked here regardless of G1Enabled.
func (s *Scorer) ScoreShadow(ctx contracts.ScoringContext) (*contracts.TradeSignal, []string) {
	failed := make([]string, 0, 5)

	if !checkG1(ctx) {
		failed = append(failed, GateG1)
	}
	if !checkG2(ctx) {
		failed = append(failed, GateG2)
	}
	if !checkG3(ctx) {
		failed = append(failed, GateG3)
	}

	tier1 := s.tier1(ctx)
	if tier1 < s.cfg.Thresholds.Tier1GateMinimum {
		failed = append(failed, GateT1Minimum)
	}

	tier2 := s.tier2(ctx)
	tier3 := s.tier3(ctx)
	total := tier1 + tier2 + tier3

	grade := s.grade(total, ctx.POI.Type)
	if grade == contracts.GradeC {
		failed = append(failed, GateGradeC)
		grade = contracts.GradeB
	}

	size := s.cfg.Sizing.ShadowPositionSize
	if len(failed) == 0 {
		size = s.size(grade, ctx.CascadeActive)
	}
	return s.signal(ctx, grade, tier1, tier2, tier3, size), failed
}

func (s *Scorer) reject(r contracts.Rejection) *contracts.Rejection {
	s.lastRejection = &r
	out := r
	return &out
}

func (s *Scorer) signal(ctx contracts.ScoringContext, grade contracts.Grade, t1, t2, t3 int, size float64) *contracts.TradeSignal {
	return &contracts.TradeSignal{
		Direction:       ctx.POI.Direction,
		POI:             ctx.POI,
		EntryPrice:      ctx.EntryPrice,
		StopPrice:       ctx.StopPrice,
		TargetPrice:     ctx.TargetPrice,
		Grade:           grade,
		ScoreTotal:      t1 + t2 + t3,
		ScoreTier1:      t1,
		ScoreTier2:      t2,
		ScoreTier3:      t3,
		PositionSizePct: size,
		OrderType:       ctx.OrderType,
	}
}

// =============================================================================
// Gates
// =============================================================================

// checkG1: 롱은 discount, 숏은 premium 에서만
func checkG1(ctx contracts.ScoringContext) bool {
	if ctx.POI.Direction == contracts.Long {
		return ctx.Gates.PremiumDiscount == contracts.ZoneDiscount
	}
	return ctx.Gates.PremiumDiscount == contracts.ZonePremium
}

func checkG2(ctx contracts.ScoringContext) bool {
	if !ctx.Gates.G2Required {
		return true
	}
	return ctx.Gates.HasInducement
}

func checkG3(ctx contracts.ScoringContext) bool {
	return !ctx.Gates.IsChop
}

// =============================================================================
// Tiers
// =============================================================================

func (s *Scorer) tier1(ctx contracts.ScoringContext) int {
	p := s.cfg.Points
	t := ctx.Tier1
	score := 0

	if t.TrendAligned {
		if t.Regime == contracts.RegimeConflicted {
			score += p.TrendReduced
		} else {
			score += p.TrendFull
		}
	}
	if t.HasLiquiditySweep {
		score += p.Sweep
	}
	if t.IsFreshPOI {
		score += p.FreshPOI
	}
	if t.HasCHOCH && t.CHOCHDisplacementATR {
		score += p.CHOCH
	}
	switch {
	case t.OrderFlowScore >= 2:
		score += p.OrderFlowFull
	case t.OrderFlowScore == 1:
		score += p.OrderFlowPartial
	}
	if t.InKillzone {
		score += p.Killzone
	}
	// G1 이 게이트에서 점수 항목으로 강등된 경우
	if !ctx.Gates.G1Enabled && checkG1(ctx) {
		score += p.G1Bonus
	}
	return score
}

func (s *Scorer) tier2(ctx contracts.ScoringContext) int {
	t := ctx.Tier2
	if !t.Enabled {
		return 0
	}
	p := s.cfg.Points
	score := 0
	if t.Has20SMAHalt {
		score += p.SMAHalt
	}
	if t.HasFlat200 {
		score += p.Flat200
	}
	if t.HasElephant {
		score += p.ElephantBar
	}
	if t.HasMicroTrend {
		score += p.MicroTrend
	}
	return score
}

func (s *Scorer) tier3(ctx contracts.ScoringContext) int {
	p := s.cfg.Points
	t := ctx.Tier3
	score := 0
	if t.HasVWAPConfluence {
		score += p.VWAP
	}
	if t.IsFlipZone {
		score += p.FlipZone
	}
	if t.HasLiquidityNearTarget {
		score += p.LiquidityTarget
	}
	return score
}

// grade maps total to A+/A/B/C; synthetic-MA POIs never exceed B
func (s *Scorer) grade(total int, poiType contracts.POIType) contracts.Grade {
	th := s.cfg.Thresholds
	var g contracts.Grade
	switch {
	case total >= th.APlusMin:
		g = contracts.GradeAPlus
	case total >= th.AMin:
		g = contracts.GradeA
	case total >= th.BMin:
		g = contracts.GradeB
	default:
		g = contracts.GradeC
	}
	if poiType == contracts.POISyntheticMA && (g == contracts.GradeAPlus || g == contracts.GradeA) {
		g = contracts.GradeB
	}
	return g
}

func (s *Scorer) size(grade contracts.Grade, cascade bool) float64 {
	var size float64
	switch grade {
	case contracts.GradeAPlus:
		size = s.cfg.Sizing.APlusRisk
	case contracts.GradeA:
		size = s.cfg.Sizing.ARisk
	default:
		size = s.cfg.Sizing.BRisk
	}
	if cascade {
		size *= s.cfg.Sizing.CascadeMultiplier
	}
	return size
}
