package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/portfolio"
	"github.com/wonny/flof/backend/internal/realtime/feed"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/internal/strategyconfig"
)

// MarketContext is structure supplied from outside the tick/bar stream
// (POI mapper, higher-timeframe bias, cross-asset monitors).
// nil 포인터 필드는 "제공 안 함" → 엔진이 바 데이터로 직접 계산
type MarketContext struct {
	// POIs are the active points of interest, most relevant first
	POIs []contracts.POI `json:"pois"`

	MacroBias *contracts.Direction `json:"macro_bias,omitempty"`
	Regime    contracts.Regime     `json:"regime,omitempty"`
	Chop      *bool                `json:"chop,omitempty"`
	Velez     *market.VelezFlags   `json:"velez,omitempty"`
	Near200   *bool                `json:"near_200,omitempty"`

	// Runner trail levels
	BOS *float64 `json:"bos,omitempty"`
	LVN *float64 `json:"lvn,omitempty"`

	SpreadCurrent  float64 `json:"spread_current,omitempty"`
	SpreadBaseline float64 `json:"spread_baseline,omitempty"`

	PrevDayHigh float64 `json:"prev_day_high,omitempty"`
	PrevDayLow  float64 `json:"prev_day_low,omitempty"`

	MacroDump bool `json:"macro_dump,omitempty"`
}

// ActivePOI returns the first POI
func (m MarketContext) ActivePOI() (contracts.POI, bool) {
	if len(m.POIs) == 0 {
		return contracts.POI{}, false
	}
	return m.POIs[0], true
}

// hasSweep reports any active POI flagged as a sweep zone
func (m MarketContext) hasSweep() bool {
	for _, p := range m.POIs {
		if p.IsSweepZone {
			return true
		}
	}
	return false
}

// HandleRecord routes one feed record (live websocket or replay) into the loop
func (o *Orchestrator) HandleRecord(ctx context.Context, rec feed.Record) error {
	switch rec.Type {
	case feed.RecordTick:
		o.OnTick(rec.Tick)
	case feed.RecordBar:
		o.OnBar(ctx, rec.Bar)
	case feed.RecordContext:
		var mc MarketContext
		if err := json.Unmarshal(rec.Context, &mc); err != nil {
			return fmt.Errorf("line %d: decode context: %w", rec.Line, err)
		}
		o.UpdateContext(mc)
	}
	return nil
}

// EngineSnapshot is a read-only copy of engine state for the API and scheduler
type EngineSnapshot struct {
	Instrument  string                      `json:"instrument"`
	Profile     string                      `json:"profile"`
	Shadow      bool                        `json:"shadow"`
	ConfigHash  string                      `json:"config_hash"`
	State       contracts.PredatorState     `json:"state"`
	LastPrice   float64                     `json:"last_price"`
	LastNs      int64                       `json:"last_ns"`
	ATR         float64                     `json:"atr"`
	TickCount   int                         `json:"tick_count"`
	TradeCount  int                         `json:"trade_count"`
	Positions   []execution.ManagedPosition `json:"positions"`
	Ledger      portfolio.LedgerSnapshot    `json:"ledger"`
	Risk        risk.Snapshot               `json:"risk"`
	Equity      execution.EquitySnapshot    `json:"equity"`
	Toggles     []strategyconfig.Toggle     `json:"toggles,omitempty"`
	FeedStale   bool                        `json:"feed_stale"`
	SessionDate string                      `json:"session_date"`
}
