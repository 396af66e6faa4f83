package market

import (
	"math"

	"github.com/wonny/flof/backend/internal/contracts"
)

// =============================================================================
// Velez 20/200 SMA layer (2분봉 종가 기준)
// =============================================================================

const (
	flat200SlopeMax     = 0.001
	flat200SlopeLag     = 10
	microTrendSlopeMin  = 0.0005
	microTrendSlopeLag  = 5
	elephantBodyPct     = 0.70
	elephantRangeMult   = 1.3
	elephantLookback    = 10
)

// VelezFlags are the Tier 2 confluence flags
type VelezFlags struct {
	SMAHalt    bool `json:"sma_halt"`
	Flat200    bool `json:"flat_200"`
	Elephant   bool `json:"elephant"`
	MicroTrend bool `json:"micro_trend"`
}

// SMAHalt reports the 20 SMA sitting inside the POI zone on the supportive side of price
func SMAHalt(sma20 float64, poi contracts.POI, price float64) bool {
	if sma20 < poi.ZoneLow || sma20 > poi.ZoneHigh {
		return false
	}
	return sidedOf(price, sma20, poi.Direction)
}

// Flat200 reports a flat 200 SMA (slope over 10 periods < 0.1%) inside the POI zone
func Flat200(closes []float64, period int, poi contracts.POI, price float64) bool {
	if period <= 0 || len(closes) < period+flat200SlopeLag {
		return false
	}
	recent, _ := SMA(closes, period)
	prior, _ := SMA(closes[:len(closes)-flat200SlopeLag], period)
	if prior == 0 {
		return false
	}
	if math.Abs(recent-prior)/prior >= flat200SlopeMax {
		return false
	}
	if recent < poi.ZoneLow || recent > poi.ZoneHigh {
		return false
	}
	return sidedOf(price, recent, poi.Direction)
}

// MicroTrend reports a 20 SMA slope and price position aligned with dir
func MicroTrend(closes []float64, period int, dir contracts.Direction) bool {
	if period <= 0 || len(closes) < period+microTrendSlopeLag {
		return false
	}
	now, _ := SMA(closes, period)
	ago, _ := SMA(closes[:len(closes)-microTrendSlopeLag], period)
	if ago == 0 {
		return false
	}
	slope := (now - ago) / ago
	price := closes[len(closes)-1]
	if dir == contracts.Long {
		return slope > microTrendSlopeMin && price > now
	}
	return slope < -microTrendSlopeMin && price < now
}

// ElephantBar reports a last bar with body > 70% of range, range > 1.3× the
// mean of the prior 10 bars, and a colour matching dir
func ElephantBar(bars []contracts.Bar, dir contracts.Direction) bool {
	if len(bars) < elephantLookback+2 {
		return false
	}
	last := bars[len(bars)-1]
	prior := bars[len(bars)-1-elephantLookback : len(bars)-1]

	avg := 0.0
	for _, b := range prior {
		avg += b.Range()
	}
	avg /= float64(len(prior))

	rng := last.Range()
	if avg <= 0 || rng <= 0 {
		return false
	}
	body := math.Abs(last.Close - last.Open)
	if body <= elephantBodyPct*rng || rng <= elephantRangeMult*avg {
		return false
	}
	if dir == contracts.Long {
		return last.Close > last.Open
	}
	return last.Close < last.Open
}

// SMAHealthy reports price on the healthy side of the 20 SMA (T21).
// Too few closes counts as healthy.
func SMAHealthy(closes []float64, period int, price float64, dir contracts.Direction) bool {
	sma, ok := SMA(closes, period)
	if !ok {
		return true
	}
	if dir == contracts.Long {
		return price >= sma
	}
	return price <= sma
}

// Near200 reports price within pct of the 200 SMA
func Near200(closes []float64, period int, price, pct float64) bool {
	sma, ok := SMA(closes, period)
	if !ok || sma == 0 {
		return false
	}
	return math.Abs(price-sma)/sma <= pct
}

// sidedOf: 롱은 가격이 SMA 위, 숏은 아래
func sidedOf(price, level float64, dir contracts.Direction) bool {
	if dir == contracts.Long {
		return price > level
	}
	return price < level
}
