package market

import (
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
)

// ChopConfig G3 횡보 판정 파라미터
type ChopConfig struct {
	VAATRRatio     float64 `yaml:"va_atr_ratio" json:"va_atr_ratio"`
	SlopeThreshold float64 `yaml:"slope_threshold" json:"slope_threshold"`
}

// DefaultChopConfig returns the default chop thresholds
func DefaultChopConfig() ChopConfig {
	return ChopConfig{VAATRRatio: 1.5, SlopeThreshold: 0.01}
}

// SessionID returns the trading session a timestamp belongs to ("2006-01-02").
// roll 시각(HH:MM) 이후는 다음 거래일 세션. roll이 비어 있거나 잘못되면 달력 날짜.
func SessionID(t time.Time, roll string) string {
	r, err := time.Parse("15:04", roll)
	if err != nil || (r.Hour() == 0 && r.Minute() == 0) {
		return t.Format("2006-01-02")
	}
	if t.Hour()*60+t.Minute() >= r.Hour()*60+r.Minute() {
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Format("2006-01-02")
	}
	return t.Format("2006-01-02")
}

// VWAPBands are the session VWAP and its standard deviation bands
type VWAPBands struct {
	VWAP   float64 `json:"vwap"`
	Upper1 float64 `json:"upper_1sd"`
	Lower1 float64 `json:"lower_1sd"`
	Upper2 float64 `json:"upper_2sd"`
	Lower2 float64 `json:"lower_2sd"`
	StdDev float64 `json:"sd"`
}

// SessionProfile 세션 단위 누적치 (고가/저가, 거래량, VWAP)
type SessionProfile struct {
	chop ChopConfig

	bars   int
	high   float64
	low    float64
	volume float64

	cumVol, cumPV, cumPV2 float64
	bands                 VWAPBands
}

// NewSessionProfile creates an empty session profile
func NewSessionProfile(chop ChopConfig) *SessionProfile {
	s := &SessionProfile{chop: chop}
	s.Reset()
	return s
}

// Reset clears all session accumulators
func (s *SessionProfile) Reset() {
	s.bars = 0
	s.high = math.Inf(-1)
	s.low = math.Inf(1)
	s.volume = 0
	s.cumVol, s.cumPV, s.cumPV2 = 0, 0, 0
	s.bands = VWAPBands{}
}

// Update folds one bar into the session
func (s *SessionProfile) Update(b contracts.Bar) {
	s.bars++
	s.high = math.Max(s.high, b.High)
	s.low = math.Min(s.low, b.Low)
	s.volume += b.Volume

	if b.Volume <= 0 {
		return
	}
	tp := (b.High + b.Low + b.Close) / 3
	s.cumVol += b.Volume
	s.cumPV += tp * b.Volume
	s.cumPV2 += tp * tp * b.Volume

	vwap := s.cumPV / s.cumVol
	sd := 0.0
	if v := s.cumPV2/s.cumVol - vwap*vwap; v > 0 {
		sd = math.Sqrt(v)
	}
	s.bands = VWAPBands{
		VWAP:   vwap,
		Upper1: vwap + sd,
		Lower1: vwap - sd,
		Upper2: vwap + 2*sd,
		Lower2: vwap - 2*sd,
		StdDev: sd,
	}
}

// Bars returns the number of bars in the session
func (s *SessionProfile) Bars() int {
	return s.bars
}

// Range returns session high and low. ok is false before the first bar.
func (s *SessionProfile) Range() (high, low float64, ok bool) {
	if s.bars == 0 {
		return 0, 0, false
	}
	return s.high, s.low, true
}

// AvgBarVolume returns the mean bar volume
func (s *SessionProfile) AvgBarVolume() float64 {
	if s.bars == 0 {
		return 0
	}
	return s.volume / float64(s.bars)
}

// VWAP returns the current bands
func (s *SessionProfile) VWAP() VWAPBands {
	return s.bands
}

// VWAPConfluence reports whether price sits within half a standard deviation of any band
func (s *SessionProfile) VWAPConfluence(price float64) bool {
	sd := s.bands.StdDev
	if s.bands.VWAP <= 0 || sd <= 0 {
		return false
	}
	for _, band := range []float64{s.bands.Upper1, s.bands.Lower1, s.bands.Upper2, s.bands.Lower2} {
		if math.Abs(price-band) <= 0.5*sd {
			return true
		}
	}
	return false
}

// IsChop reports a narrow session range relative to ATR with a flat slope
func (s *SessionProfile) IsChop(atr, slope float64) bool {
	if atr <= 0 || s.bars == 0 {
		return false
	}
	return (s.high-s.low)/atr < s.chop.VAATRRatio && math.Abs(slope) < s.chop.SlopeThreshold
}
