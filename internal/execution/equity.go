package execution

// EquityPoint is one point on the equity curve
type EquityPoint struct {
	TimestampNs int64   `json:"ts"`
	Equity      float64 `json:"equity"`
}

// EquitySnapshot is a value copy of the tracker
type EquitySnapshot struct {
	Equity         float64 `json:"equity"`
	Peak           float64 `json:"peak"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SessionStart   float64 `json:"session_start"`
	DailyPnLPct    float64 `json:"daily_pnl_pct"`
}

// DefaultStartingEquity 기본 시작 자본
const DefaultStartingEquity = 100_000.0

// EquityTracker 실현 손익 기반 자본 곡선 및 최대 낙폭
type EquityTracker struct {
	equity         float64
	peak           float64
	maxDrawdown    float64
	maxDrawdownPct float64
	sessionStart   float64
	curve          []EquityPoint
}

// NewEquityTracker creates a tracker. Non-positive starting equity uses the default.
func NewEquityTracker(starting float64) *EquityTracker {
	if starting <= 0 {
		starting = DefaultStartingEquity
	}
	return &EquityTracker{
		equity:       starting,
		peak:         starting,
		sessionStart: starting,
		curve:        []EquityPoint{},
	}
}

// Apply books realized PnL and updates peak / drawdown
func (e *EquityTracker) Apply(pnl float64, nowNs int64) {
	e.equity += pnl
	e.curve = append(e.curve, EquityPoint{TimestampNs: nowNs, Equity: e.equity})
	if e.equity > e.peak {
		e.peak = e.equity
	}
	if dd := e.peak - e.equity; dd > e.maxDrawdown {
		e.maxDrawdown = dd
		if e.peak > 0 {
			e.maxDrawdownPct = dd / e.peak
		}
	}
}

// Equity returns current equity
func (e *EquityTracker) Equity() float64 {
	return e.equity
}

// Drawdown returns the current drawdown from peak as a signed fraction (<= 0)
func (e *EquityTracker) Drawdown() float64 {
	if e.peak <= 0 {
		return 0
	}
	return (e.equity - e.peak) / e.peak
}

// DailyPnLPct returns session PnL as a fraction of session-start equity
func (e *EquityTracker) DailyPnLPct() float64 {
	if e.sessionStart <= 0 {
		return 0
	}
	return (e.equity - e.sessionStart) / e.sessionStart
}

// StartSession marks the session-start equity
func (e *EquityTracker) StartSession() {
	e.sessionStart = e.equity
}

// Curve returns a copy of the equity curve
func (e *EquityTracker) Curve() []EquityPoint {
	out := make([]EquityPoint, len(e.curve))
	copy(out, e.curve)
	return out
}

// Snapshot returns a value copy
func (e *EquityTracker) Snapshot() EquitySnapshot {
	return EquitySnapshot{
		Equity:         e.equity,
		Peak:           e.peak,
		MaxDrawdown:    e.maxDrawdown,
		MaxDrawdownPct: e.maxDrawdownPct,
		SessionStart:   e.sessionStart,
		DailyPnLPct:    e.DailyPnLPct(),
	}
}
