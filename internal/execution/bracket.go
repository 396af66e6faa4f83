package execution

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// BracketConfig 주문 생성 파라미터
type BracketConfig struct {
	TickSize           float64 `yaml:"tick_size" json:"tick_size"`
	PointValue         float64 `yaml:"point_value" json:"point_value"`
	MWPProtectionTicks int     `yaml:"mwp_protection_ticks" json:"mwp_protection_ticks"`
	// ⭐ market_with_protection 이면 신호의 주문 유형과 무관하게 MWP 강제 (raw market 금지)
	DefaultOrderType contracts.OrderType `yaml:"default_order_type" json:"default_order_type"`
	TargetR          float64             `yaml:"target_r" json:"target_r"`
}

// DefaultBracketConfig returns the ES defaults
func DefaultBracketConfig() BracketConfig {
	return BracketConfig{
		TickSize:           0.25,
		PointValue:         50,
		MWPProtectionTicks: 3,
		DefaultOrderType:   contracts.OrderTypeMWP,
		TargetR:            2.0,
	}
}

// OrderTicket is one leg of a bracket
type OrderTicket struct {
	OrderType       contracts.OrderType `json:"order_type"`
	Direction       contracts.Direction `json:"direction"`
	Price           float64             `json:"price"`
	Size            int                 `json:"size"`
	ProtectionTicks int                 `json:"protection_ticks,omitempty"`
	Label           string              `json:"label"`
}

// OCOBracket is an entry with an exchange-native stop + take-profit pair
type OCOBracket struct {
	Entry      OrderTicket `json:"entry"`
	StopLoss   OrderTicket `json:"stop_loss"`
	TakeProfit OrderTicket `json:"take_profit"`
}

// BracketBuilder sizes signals and builds OCO brackets
type BracketBuilder struct {
	cfg BracketConfig
	log *logger.Logger
}

// NewBracketBuilder creates a bracket builder
func NewBracketBuilder(cfg BracketConfig, log *logger.Logger) *BracketBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &BracketBuilder{cfg: cfg, log: log}
}

// PositionSize returns floor(equity × risk / (stop distance × point value)), never negative
func (b *BracketBuilder) PositionSize(equity, riskPct, entry, stop float64) int {
	dist := math.Abs(entry - stop)
	if dist == 0 || b.cfg.PointValue == 0 {
		return 0
	}
	n := math.Floor(equity * riskPct / (dist * b.cfg.PointValue))
	if n < 0 {
		return 0
	}
	return int(n)
}

// Bracket builds entry + SWP stop + limit take-profit at entry ± risk × targetR
func (b *BracketBuilder) Bracket(sig contracts.TradeSignal, size int, targetR float64) OCOBracket {
	exitDir := sig.Direction.Opposite()
	tp := roundToTick(sig.EntryPrice+sig.Direction.Sign()*sig.RiskPoints()*targetR, b.cfg.TickSize)

	return OCOBracket{
		Entry: OrderTicket{
			OrderType:       b.resolveOrderType(sig.OrderType),
			Direction:       sig.Direction,
			Price:           sig.EntryPrice,
			Size:            size,
			ProtectionTicks: b.cfg.MWPProtectionTicks,
			Label:           fmt.Sprintf("ENTRY_%s", sig.Grade),
		},
		StopLoss: OrderTicket{
			OrderType:       contracts.OrderTypeStopWithProtection,
			Direction:       exitDir,
			Price:           sig.StopPrice,
			Size:            size,
			ProtectionTicks: b.cfg.MWPProtectionTicks,
			Label:           "OCO_STOP",
		},
		TakeProfit: OrderTicket{
			OrderType: contracts.OrderTypeLimit,
			Direction: exitDir,
			Price:     tp,
			Size:      size,
			Label:     "OCO_TP",
		},
	}
}

// Build sizes the signal against equity and returns the bracket.
// Returns false when sizing rounds to zero contracts.
func (b *BracketBuilder) Build(sig contracts.TradeSignal, equity float64) (OCOBracket, bool) {
	size := b.PositionSize(equity, sig.PositionSizePct, sig.EntryPrice, sig.StopPrice)
	if size <= 0 {
		b.log.WithFields(map[string]interface{}{
			"equity":   equity,
			"risk_pct": sig.PositionSizePct,
			"risk_pts": sig.RiskPoints(),
		}).Warn("Position size is 0 contracts, signal dropped")
		return OCOBracket{}, false
	}

	br := b.Bracket(sig, size, b.cfg.TargetR)
	b.log.WithFields(map[string]interface{}{
		"direction": sig.Direction.String(),
		"contracts": size,
		"entry":     sig.EntryPrice,
		"stop":      br.StopLoss.Price,
		"target":    br.TakeProfit.Price,
	}).Info("Bracket created")
	return br, true
}

func (b *BracketBuilder) resolveOrderType(requested contracts.OrderType) contracts.OrderType {
	if b.cfg.DefaultOrderType == contracts.OrderTypeMWP || requested == "" {
		return contracts.OrderTypeMWP
	}
	return requested
}

// roundToTick rounds half away from zero on the tick grid in decimal arithmetic
func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(price).Div(t).Round(0)
	f, _ := steps.Mul(t).Float64()
	return f
}
