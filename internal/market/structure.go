package market

import (
	"math"

	"github.com/wonny/flof/backend/internal/contracts"
)

// =============================================================================
// Premium / Discount (G1 입력)
// =============================================================================

// PremiumDiscount classifies price against the dealing range midpoint.
// Flat range is neutral. Price exactly at the midpoint is discount.
func PremiumDiscount(price, rangeHigh, rangeLow float64) string {
	if rangeHigh == rangeLow {
		return contracts.ZoneNeutral
	}
	if price > (rangeHigh+rangeLow)/2 {
		return contracts.ZonePremium
	}
	return contracts.ZoneDiscount
}

// =============================================================================
// Bar analytics
// =============================================================================

// ATR returns the mean true range over the last period bars.
// Returns (0, false) with fewer than 2 bars.
func ATR(bars []contracts.Bar, period int) (float64, bool) {
	if period < 1 {
		period = 14
	}
	if len(bars) > period+1 {
		bars = bars[len(bars)-(period+1):]
	}
	if len(bars) < 2 {
		return 0, false
	}

	sum := 0.0
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
		sum += tr
	}
	return sum / float64(len(bars)-1), true
}

// DetectCHOCH looks for a change of character in the last 10 bars:
// a swing high whose following lows are broken by the last close (or the mirror)
// with displacement beyond half an ATR.
func DetectCHOCH(bars []contracts.Bar, atr float64) bool {
	const lookback = 10
	if len(bars) < lookback {
		return false
	}
	recent := bars[len(bars)-lookback:]
	last := recent[lookback-1].Close

	for i := 2; i < lookback-2; i++ {
		// 스윙 고점 이후 저점 이탈 (약세 CHOCH)
		if recent[i].High > recent[i-1].High && recent[i].High > recent[i+1].High {
			swingLow := math.Min(recent[i].Low, math.Min(recent[i+1].Low, recent[i+2].Low))
			if last < swingLow && swingLow-last > atr*0.5 {
				return true
			}
		}
		// 스윙 저점 이후 고점 돌파 (강세 CHOCH)
		if recent[i].Low < recent[i-1].Low && recent[i].Low < recent[i+1].Low {
			swingHigh := math.Max(recent[i].High, math.Max(recent[i+1].High, recent[i+2].High))
			if last > swingHigh && last-swingHigh > atr*0.5 {
				return true
			}
		}
	}
	return false
}

// IntradayBias compares the two halves of the last 30 bars.
// Higher highs and higher lows is long, lower highs and lower lows is short.
func IntradayBias(bars []contracts.Bar) (contracts.Direction, bool) {
	const lookback = 30
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	if len(bars) < 2 {
		return 0, false
	}

	mid := len(bars) / 2
	fh, fl := extremes(bars[:mid])
	sh, sl := extremes(bars[mid:])

	switch {
	case sh > fh && sl > fl:
		return contracts.Long, true
	case sh < fh && sl < fl:
		return contracts.Short, true
	default:
		return 0, false
	}
}

func extremes(bars []contracts.Bar) (high, low float64) {
	high, low = math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}

// SMA returns the mean of the last n values
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// Closes extracts close prices
func Closes(bars []contracts.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// AggregateBars folds 1m bars into period-minute bars. Trailing partial groups are dropped.
func AggregateBars(bars []contracts.Bar, period int) []contracts.Bar {
	if period <= 1 {
		return bars
	}
	n := len(bars) / period
	out := make([]contracts.Bar, 0, n)
	for i := 0; i < n; i++ {
		chunk := bars[i*period : (i+1)*period]
		agg := contracts.Bar{
			TimestampNs: chunk[0].TimestampNs,
			Open:        chunk[0].Open,
			High:        chunk[0].High,
			Low:         chunk[0].Low,
			Close:       chunk[len(chunk)-1].Close,
		}
		for _, b := range chunk {
			agg.High = math.Max(agg.High, b.High)
			agg.Low = math.Min(agg.Low, b.Low)
			agg.Volume += b.Volume
		}
		out = append(out, agg)
	}
	return out
}

// SyntheticPOI builds a higher-timeframe moving-average zone of ±width×dailyATR
func SyntheticPOI(ma, dailyATR float64, dir contracts.Direction, width float64) contracts.POI {
	half := width * dailyATR
	return contracts.NewPOI(contracts.POISyntheticMA, dir, ma, ma-half, ma+half, "W")
}
