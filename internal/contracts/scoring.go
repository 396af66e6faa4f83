package contracts

// =============================================================================
// Scoring Context
// ⭐ SSOT: Brain → Scorer 평가 입력. 평가마다 새로 만들고 제자리 변경 금지
// =============================================================================

// GateInputs feed the G1-G3 hard gates
type GateInputs struct {
	PremiumDiscount string `json:"premium_discount"` // premium, discount, neutral
	HasInducement   bool   `json:"has_inducement"`
	IsChop          bool   `json:"is_chop"`
	G1Enabled       bool   `json:"g1_enabled"`  // false면 G1은 Tier1 보너스로 강등
	G2Required      bool   `json:"g2_required"` // false면 G2 통과
}

// Tier1Inputs feed the core structure + order-flow score (≤10 pts)
type Tier1Inputs struct {
	TrendAligned         bool   `json:"trend_aligned"`
	Regime               Regime `json:"regime"`
	HasLiquiditySweep    bool   `json:"has_liquidity_sweep"`
	IsFreshPOI           bool   `json:"is_fresh_poi"`
	HasCHOCH             bool   `json:"has_choch"`
	CHOCHDisplacementATR bool   `json:"choch_displacement_exceeds_atr"`
	OrderFlowScore       int    `json:"order_flow_score"` // 0, 1, 2
	InKillzone           bool   `json:"in_killzone"`
}

// Tier2Inputs feed the momentum confluence score (≤4 pts)
type Tier2Inputs struct {
	Enabled       bool `json:"enabled"` // master toggle
	Has20SMAHalt  bool `json:"has_20sma_halt"`
	HasFlat200    bool `json:"has_flat_200sma"`
	HasElephant   bool `json:"has_elephant_bar"`
	HasMicroTrend bool `json:"has_micro_trend"`
}

// Tier3Inputs feed the VWAP + liquidity score (≤3 pts)
type Tier3Inputs struct {
	HasVWAPConfluence      bool `json:"has_vwap_confluence"`
	IsFlipZone             bool `json:"is_flip_zone"`
	HasLiquidityNearTarget bool `json:"has_liquidity_near_target"`
}

// ScoringContext holds every input a scoring pass needs
type ScoringContext struct {
	POI           POI         `json:"poi"`
	Gates         GateInputs  `json:"gates"`
	Tier1         Tier1Inputs `json:"tier1"`
	Tier2         Tier2Inputs `json:"tier2"`
	Tier3         Tier3Inputs `json:"tier3"`
	CascadeActive bool        `json:"cascade_active"`
	EntryPrice    float64     `json:"entry_price"`
	StopPrice     float64     `json:"stop_price"`
	TargetPrice   float64     `json:"target_price"`
	OrderType     OrderType   `json:"order_type"`
}

// NewScoringContext starts a context for a POI with gates enabled and MWP entry
func NewScoringContext(poi POI) ScoringContext {
	return ScoringContext{
		POI: poi,
		Gates: GateInputs{
			PremiumDiscount: ZoneNeutral,
			HasInducement:   poi.HasInducement,
			G1Enabled:       true,
			G2Required:      true,
		},
		Tier1: Tier1Inputs{
			Regime:     RegimeNeutral,
			IsFreshPOI: poi.IsFresh,
		},
		Tier3: Tier3Inputs{
			IsFlipZone: poi.IsFlipZone,
		},
		EntryPrice: poi.Price,
		OrderType:  OrderTypeMWP,
	}
}

// WithGates returns a copy with gate inputs replaced
func (c ScoringContext) WithGates(g GateInputs) ScoringContext {
	c.Gates = g
	return c
}

// WithTier1 returns a copy with tier-1 inputs replaced
func (c ScoringContext) WithTier1(t Tier1Inputs) ScoringContext {
	c.Tier1 = t
	return c
}

// WithTier2 returns a copy with tier-2 inputs replaced
func (c ScoringContext) WithTier2(t Tier2Inputs) ScoringContext {
	c.Tier2 = t
	return c
}

// WithTier3 returns a copy with tier-3 inputs replaced
func (c ScoringContext) WithTier3(t Tier3Inputs) ScoringContext {
	c.Tier3 = t
	return c
}

// WithCascade returns a copy with the organic-cascade flag set
func (c ScoringContext) WithCascade(active bool) ScoringContext {
	c.CascadeActive = active
	return c
}

// WithPrices returns a copy with entry/stop/target set
func (c ScoringContext) WithPrices(entry, stop, target float64) ScoringContext {
	c.EntryPrice = entry
	c.StopPrice = stop
	c.TargetPrice = target
	return c
}

// WithTarget returns a copy with only the target price changed
func (c ScoringContext) WithTarget(target float64) ScoringContext {
	c.TargetPrice = target
	return c
}

// WithOrderType returns a copy with the requested entry order type
func (c ScoringContext) WithOrderType(t OrderType) ScoringContext {
	c.OrderType = t
	return c
}

// =============================================================================
// Scoring Output
// =============================================================================

// TradeSignal is the output of a passed scoring pass
type TradeSignal struct {
	Direction       Direction `json:"direction"`
	POI             POI       `json:"poi"`
	EntryPrice      float64   `json:"entry_price"`
	StopPrice       float64   `json:"stop_price"`
	TargetPrice     float64   `json:"target_price"`
	Grade           Grade     `json:"grade"`
	ScoreTotal      int       `json:"score_total"`
	ScoreTier1      int       `json:"score_tier1"`
	ScoreTier2      int       `json:"score_tier2"`
	ScoreTier3      int       `json:"score_tier3"`
	PositionSizePct float64   `json:"position_size_pct"`
	OrderType       OrderType `json:"order_type"`
}

// RiskPoints returns |entry - stop|
func (s TradeSignal) RiskPoints() float64 {
	d := s.EntryPrice - s.StopPrice
	if d < 0 {
		return -d
	}
	return d
}

// Rejection is a structured gate/grade rejection
type Rejection struct {
	Gate       string `json:"gate"`
	Reason     string `json:"reason"`
	Tier1Score int    `json:"tier1_score"`
	TotalScore int    `json:"total_score"`
}
