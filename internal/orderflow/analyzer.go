package orderflow

import (
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
)

// =============================================================================
// Config
// =============================================================================

// Config 오더플로우 분석 파라미터
type Config struct {
	CVDLookback               time.Duration `yaml:"cvd_lookback" json:"cvd_lookback"`
	AbsorptionVolumeThreshold float64       `yaml:"absorption_volume_threshold" json:"absorption_volume_threshold"` // 기대 거래량 배수
	AbsorptionDisplacementMax float64       `yaml:"absorption_displacement_max" json:"absorption_displacement_max"` // ATR 대비 최대 변위
	AbsorptionMinDuration     time.Duration `yaml:"absorption_min_duration" json:"absorption_min_duration"`
	AbsorptionWindow          time.Duration `yaml:"absorption_window" json:"absorption_window"`
	WhaleMultiplier           float64       `yaml:"whale_print_multiplier" json:"whale_print_multiplier"`
	WhaleMinPrints            int           `yaml:"whale_block_min_prints" json:"whale_block_min_prints"`
	WhaleClusterGap           time.Duration `yaml:"whale_cluster_gap" json:"whale_cluster_gap"`
	WhaleWindow               time.Duration `yaml:"whale_window" json:"whale_window"`
	ImbalanceMinLevels        int           `yaml:"stacked_imbalance_min_levels" json:"stacked_imbalance_min_levels"`
	ImbalanceRatio            float64       `yaml:"stacked_imbalance_ratio" json:"stacked_imbalance_ratio"`
	ImbalanceTickSize         float64       `yaml:"imbalance_tick_size" json:"imbalance_tick_size"`
	ImbalanceWindow           time.Duration `yaml:"imbalance_window" json:"imbalance_window"`
}

// DefaultConfig returns the ES defaults
func DefaultConfig() Config {
	return Config{
		CVDLookback:               30 * time.Second,
		AbsorptionVolumeThreshold: 2.0,
		AbsorptionDisplacementMax: 0.3,
		AbsorptionMinDuration:     3 * time.Second,
		AbsorptionWindow:          5 * time.Second,
		WhaleMultiplier:           5.0,
		WhaleMinPrints:            3,
		WhaleClusterGap:           5 * time.Second,
		WhaleWindow:               30 * time.Second,
		ImbalanceMinLevels:        3,
		ImbalanceRatio:            3.0,
		ImbalanceTickSize:         0.25,
		ImbalanceWindow:           30 * time.Second,
	}
}

const (
	minDivergenceTicks = 10
	maxImbalanceBucket = 200
)

// =============================================================================
// Analyzer
// =============================================================================

// Analyzer computes order-flow analytics over ring-buffer windows.
// 세션 평균과 ATR은 호출자가 주기적으로 갱신해야 함
type Analyzer struct {
	rb  *ringbuffer.RingBuffer
	cfg Config

	avgVolPerSec float64
	avgTradeSize float64
	atr          float64
}

// WhaleCluster summarizes a group of outsized prints
type WhaleCluster struct {
	Count        int     `json:"count"`
	TotalVolume  float64 `json:"total_volume"`
	AvgPrice     float64 `json:"avg_price"`
	NetDirection int     `json:"net_direction"` // +1 buy, -1 sell, 0 flat
}

// Details explains an order-flow score
type Details struct {
	CVD           float64 `json:"cvd"`
	HasDivergence bool    `json:"has_divergence"`
	HasImbalance  bool    `json:"has_imbalance"`
	HasAbsorption bool    `json:"has_absorption"`
	WhaleBlocks   int     `json:"whale_blocks"`
	Directional   bool    `json:"directional"`
}

// NewAnalyzer creates an analyzer reading rb
func NewAnalyzer(rb *ringbuffer.RingBuffer, cfg Config) *Analyzer {
	return &Analyzer{rb: rb, cfg: cfg, atr: 1.0}
}

// SetATR updates the volatility proxy (floored at 0.01)
func (a *Analyzer) SetATR(atr float64) {
	a.atr = math.Max(atr, 0.01)
}

// ATR returns the current volatility proxy
func (a *Analyzer) ATR() float64 {
	return a.atr
}

// SetSessionAverages updates expected volume per second and average trade size
func (a *Analyzer) SetSessionAverages(avgVolPerSec, avgTradeSize float64) {
	a.avgVolPerSec = avgVolPerSec
	a.avgTradeSize = avgTradeSize
}

// CVD returns the signed sum of size*side over the window (0 when empty)
func (a *Analyzer) CVD(window time.Duration) float64 {
	return cvd(a.rb.Window(window))
}

// DetectDivergence compares the two halves of the window.
// priceDirection > 0: price rose while CVD fell (bearish). < 0: mirror (bullish).
func (a *Analyzer) DetectDivergence(window time.Duration, priceDirection int) bool {
	data := a.rb.Window(window)
	if len(data) < minDivergenceTicks {
		return false
	}

	mid := len(data) / 2
	first, second := data[:mid], data[mid:]

	cvdFirst, cvdSecond := cvd(first), cvd(second)
	priceFirst, priceSecond := meanPrice(first), meanPrice(second)

	if priceDirection > 0 {
		return priceSecond > priceFirst && cvdSecond < cvdFirst
	}
	return priceSecond < priceFirst && cvdSecond > cvdFirst
}

// DetectStackedImbalance looks for a run of consecutive tick buckets where one
// side's volume exceeds the other by the configured ratio
func (a *Analyzer) DetectStackedImbalance(window time.Duration) bool {
	data := a.rb.Window(window)
	if len(data) < minDivergenceTicks {
		return false
	}

	lo, hi := priceRange(data)
	if hi == lo {
		return false
	}

	tickSize := a.cfg.ImbalanceTickSize
	if tickSize <= 0 {
		tickSize = 0.25
	}
	n := int((hi-lo)/tickSize) + 1
	if n > maxImbalanceBucket {
		n = maxImbalanceBucket
	}
	if n < 1 {
		n = 1
	}
	bucketSize := (hi - lo) / float64(n)

	buy := make([]float64, n)
	sell := make([]float64, n)
	for _, t := range data {
		idx := int((t.Price - lo) / bucketSize)
		if idx >= n {
			idx = n - 1
		}
		if t.Side > 0 {
			buy[idx] += t.Size
		} else {
			sell[idx] += t.Size
		}
	}

	run := 0
	for i := 0; i < n; i++ {
		switch {
		case sell[i] > 0 && buy[i]/sell[i] > a.cfg.ImbalanceRatio:
			run++
		case buy[i] > 0 && sell[i]/buy[i] > a.cfg.ImbalanceRatio:
			run++
		default:
			run = 0
		}
		if run >= a.cfg.ImbalanceMinLevels {
			return true
		}
	}
	return false
}

// DetectAbsorption is true only when volume, duration and displacement
// conditions all hold at once
func (a *Analyzer) DetectAbsorption(window time.Duration) bool {
	data := a.rb.Window(window)
	if len(data) < 2 || a.avgVolPerSec <= 0 {
		return false
	}

	var total float64
	for _, t := range data {
		total += t.Size
	}
	expected := a.avgVolPerSec * window.Seconds()
	volumeOK := total >= a.cfg.AbsorptionVolumeThreshold*expected

	span := time.Duration(data[len(data)-1].TimestampNs - data[0].TimestampNs)
	durationOK := span >= a.cfg.AbsorptionMinDuration

	lo, hi := priceRange(data)
	displacementOK := hi-lo < a.cfg.AbsorptionDisplacementMax*a.atr

	return volumeOK && durationOK && displacementOK
}

// WhaleBlocks finds clusters of outsized prints separated by at most the cluster gap
func (a *Analyzer) WhaleBlocks(window time.Duration) []WhaleCluster {
	data := a.rb.Window(window)
	if len(data) == 0 {
		return nil
	}

	avgSize := a.avgTradeSize
	if avgSize <= 0 {
		var sum float64
		for _, t := range data {
			sum += t.Size
		}
		avgSize = sum / float64(len(data))
	}
	threshold := avgSize * a.cfg.WhaleMultiplier

	whales := make([]contracts.Tick, 0, 16)
	for _, t := range data {
		if t.Size >= threshold {
			whales = append(whales, t)
		}
	}
	if len(whales) < a.cfg.WhaleMinPrints {
		return nil
	}

	gap := a.cfg.WhaleClusterGap.Nanoseconds()
	var clusters []WhaleCluster
	start := 0
	for i := 1; i <= len(whales); i++ {
		if i < len(whales) && whales[i].TimestampNs-whales[i-1].TimestampNs <= gap {
			continue
		}
		if i-start >= a.cfg.WhaleMinPrints {
			clusters = append(clusters, summarize(whales[start:i]))
		}
		start = i
	}
	return clusters
}

// SellDeltaPct returns the sell-side share of volume (0.5 neutral when data is thin)
func (a *Analyzer) SellDeltaPct(window time.Duration, minTicks int) float64 {
	data := a.rb.Window(window)
	if len(data) < minTicks {
		return 0.5
	}
	var buy, sell float64
	for _, t := range data {
		switch {
		case t.Side > 0:
			buy += t.Size
		case t.Side < 0:
			sell += t.Size
		}
	}
	if buy+sell == 0 {
		return 0.5
	}
	return sell / (buy + sell)
}

// AdverseDeltaPct returns the share of volume against the position direction
func (a *Analyzer) AdverseDeltaPct(dir contracts.Direction, window time.Duration, minTicks int) float64 {
	sellPct := a.SellDeltaPct(window, minTicks)
	if dir == contracts.Long {
		return sellPct
	}
	return 1.0 - sellPct
}

// Evaluate scores order flow without a trade direction: divergence+imbalance → 2, divergence → 1
func (a *Analyzer) Evaluate() (int, Details) {
	c := a.CVD(a.cfg.CVDLookback)
	priceDir := -1
	if c > 0 {
		priceDir = 1
	}
	return a.score(c, priceDir, false)
}

// EvaluateDirectional scores order flow for an intended trade.
// A short needs bearish divergence (price up, CVD weak), a long the mirror.
func (a *Analyzer) EvaluateDirectional(trade contracts.Direction) (int, Details) {
	return a.score(a.CVD(a.cfg.CVDLookback), -int(trade), true)
}

func (a *Analyzer) score(c float64, priceDir int, directional bool) (int, Details) {
	d := Details{
		CVD:           c,
		HasDivergence: a.DetectDivergence(a.cfg.CVDLookback, priceDir),
		HasImbalance:  a.DetectStackedImbalance(a.cfg.ImbalanceWindow),
		HasAbsorption: a.DetectAbsorption(a.cfg.AbsorptionWindow),
		WhaleBlocks:   len(a.WhaleBlocks(a.cfg.WhaleWindow)),
		Directional:   directional,
	}

	switch {
	case d.HasDivergence && d.HasImbalance:
		return 2, d
	case d.HasDivergence:
		return 1, d
	default:
		return 0, d
	}
}

// =============================================================================
// helpers
// =============================================================================

func cvd(data []contracts.Tick) float64 {
	var sum float64
	for _, t := range data {
		sum += t.Size * float64(t.Side)
	}
	return sum
}

func meanPrice(data []contracts.Tick) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, t := range data {
		sum += t.Price
	}
	return sum / float64(len(data))
}

func priceRange(data []contracts.Tick) (lo, hi float64) {
	lo, hi = data[0].Price, data[0].Price
	for _, t := range data[1:] {
		if t.Price < lo {
			lo = t.Price
		}
		if t.Price > hi {
			hi = t.Price
		}
	}
	return lo, hi
}

func summarize(group []contracts.Tick) WhaleCluster {
	var vol, px, side float64
	for _, t := range group {
		vol += t.Size
		px += t.Price
		side += float64(t.Side)
	}
	dir := 0
	switch {
	case side > 0:
		dir = 1
	case side < 0:
		dir = -1
	}
	return WhaleCluster{
		Count:        len(group),
		TotalVolume:  vol,
		AvgPrice:     px / float64(len(group)),
		NetDirection: dir,
	}
}
