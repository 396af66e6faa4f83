package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/config"
	"github.com/wonny/flof/backend/pkg/database"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Journal drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// ErrUnknownDriver is returned for an unsupported journal driver
var ErrUnknownDriver = errors.New("unknown journal driver")

// TradeRecord is one journaled trade. Saved at entry, then upserted at close.
type TradeRecord struct {
	PositionID string              `json:"position_id"`
	Instrument string              `json:"instrument"`
	Profile    string              `json:"profile"`
	Direction  contracts.Direction `json:"direction"`
	Grade      contracts.Grade     `json:"grade"`
	POIType    contracts.POIType   `json:"poi_type"`

	ScoreTotal int `json:"score_total"`
	ScoreTier1 int `json:"score_tier1"`
	ScoreTier2 int `json:"score_tier2"`
	ScoreTier3 int `json:"score_tier3"`

	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
	RiskPct     float64 `json:"risk_pct"`
	Contracts   int     `json:"contracts"`
	EntryNs     int64   `json:"entry_ns"`

	Closed     bool    `json:"closed"`
	ExitPrice  float64 `json:"exit_price"`
	ExitReason string  `json:"exit_reason"`
	ExitNs     int64   `json:"exit_ns"`
	PnL        float64 `json:"pnl"`
	RMultiple  float64 `json:"r_multiple"`

	Shadow            bool     `json:"shadow"`
	ShadowGatesFailed []string `json:"shadow_gates_failed"`
	ConfigHash        string   `json:"config_hash"`
}

// RejectionRecord is one journaled entry rejection
type RejectionRecord struct {
	TimestampNs     int64                  `json:"ts"`
	Instrument      string                 `json:"instrument"`
	POIType         contracts.POIType      `json:"poi_type"`
	POIPrice        float64                `json:"poi_price"`
	Direction       contracts.Direction    `json:"direction"`
	PremiumDiscount string                 `json:"premium_discount"`
	HasInducement   bool                   `json:"has_inducement"`
	IsChop          bool                   `json:"is_chop"`
	Gate            string                 `json:"gate"`
	Reason          string                 `json:"reason"`
	Score           *int                   `json:"score,omitempty"` // 점수 단계 이전 거절은 nil
	Context         map[string]interface{} `json:"context,omitempty"`
}

// Store persists the trade/rejection journal
// ⭐ SSOT: 매매 일지 저장/조회는 이 인터페이스로만
type Store interface {
	// SaveTrade inserts or replaces the record with the same PositionID
	SaveTrade(ctx context.Context, t TradeRecord) error
	SaveRejection(ctx context.Context, r RejectionRecord) error
	// ListTrades returns trades in entry order
	ListTrades(ctx context.Context) ([]TradeRecord, error)
	// ListRejections returns rejections in insertion order
	ListRejections(ctx context.Context) ([]RejectionRecord, error)
	Close() error
}

// Open creates the journal configured by cfg.Journal.Driver and applies migrations
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.Journal.Driver {
	case DriverPostgres:
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		store := NewPostgresStore(db, log)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.Journal.SQLitePath, log)
	case DriverMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Journal.Driver)
	}
}
