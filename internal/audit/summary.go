package audit

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/flof/backend/internal/contracts"
)

// Summary aggregates closed trades from the journal
type Summary struct {
	Total        int     `json:"total"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgR         float64 `json:"avg_r"`
	MaxDrawdown  float64 `json:"max_drawdown"` // 누적 PnL 기준 (달러)

	// R 분포 꼬리 (하위 5%)
	VaR95  float64 `json:"var_95_r"`
	CVaR95 float64 `json:"cvar_95_r"`

	GradeDistribution map[contracts.Grade]int `json:"grade_distribution"`
	ExitReasons       map[string]int          `json:"exit_reasons"`
	ShadowTrades      int                     `json:"shadow_trades"`
	ShadowGateCounts  map[string]int          `json:"shadow_gate_counts"`
}

// Summarize computes performance stats over closed trades. Open trades are ignored.
func Summarize(trades []TradeRecord) Summary {
	s := Summary{
		GradeDistribution: make(map[contracts.Grade]int),
		ExitReasons:       make(map[string]int),
		ShadowGateCounts:  make(map[string]int),
	}

	// 금액 합산은 decimal로 (부동소수 누적 오차 방지)
	total := decimal.Zero
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	sumR := 0.0
	var rs []float64

	peak := decimal.Zero
	maxDD := decimal.Zero

	for _, t := range trades {
		if !t.Closed {
			continue
		}
		s.Total++
		s.GradeDistribution[t.Grade]++
		s.ExitReasons[t.ExitReason]++
		if t.Shadow {
			s.ShadowTrades++
			for _, g := range t.ShadowGatesFailed {
				s.ShadowGateCounts[g]++
			}
		}

		pnl := decimal.NewFromFloat(t.PnL)
		total = total.Add(pnl)
		switch {
		case pnl.IsPositive():
			s.Wins++
			grossWin = grossWin.Add(pnl)
		case pnl.IsNegative():
			s.Losses++
			grossLoss = grossLoss.Add(pnl.Abs())
		}

		if total.GreaterThan(peak) {
			peak = total
		}
		if dd := peak.Sub(total); dd.GreaterThan(maxDD) {
			maxDD = dd
		}

		sumR += t.RMultiple
		rs = append(rs, t.RMultiple)
	}

	if s.Total == 0 {
		return s
	}

	s.TotalPnL = total.InexactFloat64()
	s.MaxDrawdown = maxDD.InexactFloat64()
	s.WinRate = float64(s.Wins) / float64(s.Total)
	s.AvgR = sumR / float64(s.Total)

	if s.Wins > 0 {
		s.AvgWin = grossWin.Div(decimal.NewFromInt(int64(s.Wins))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
	}
	// 손실 거래가 없으면 0 (JSON은 +Inf를 표현할 수 없음)
	if grossLoss.IsPositive() {
		s.ProfitFactor = grossWin.Div(grossLoss).InexactFloat64()
	}

	s.VaR95, s.CVaR95 = tailRisk(rs, 0.95)
	return s
}

// tailRisk returns the historical VaR and CVaR (expected shortfall) of the
// given outcomes at confidence level conf. Both are reported as losses (>= 0).
func tailRisk(values []float64, conf float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * (1 - conf)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	varValue := -sorted[idx]

	sum := 0.0
	for i := 0; i <= idx; i++ {
		sum += sorted[i]
	}
	cvar := -sum / float64(idx+1)

	if varValue < 0 {
		varValue = 0
	}
	if cvar < 0 {
		cvar = 0
	}
	return varValue, cvar
}
