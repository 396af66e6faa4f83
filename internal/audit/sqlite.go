package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	position_id         TEXT PRIMARY KEY,
	instrument          TEXT NOT NULL,
	profile             TEXT NOT NULL,
	direction           INTEGER NOT NULL,
	grade               TEXT NOT NULL,
	poi_type            TEXT NOT NULL,
	score_total         INTEGER NOT NULL,
	score_tier1         INTEGER NOT NULL,
	score_tier2         INTEGER NOT NULL,
	score_tier3         INTEGER NOT NULL,
	entry_price         REAL NOT NULL,
	stop_price          REAL NOT NULL,
	target_price        REAL NOT NULL,
	risk_pct            REAL NOT NULL,
	contracts           INTEGER NOT NULL,
	entry_ns            INTEGER NOT NULL,
	closed              INTEGER NOT NULL DEFAULT 0,
	exit_price          REAL NOT NULL DEFAULT 0,
	exit_reason         TEXT NOT NULL DEFAULT '',
	exit_ns             INTEGER NOT NULL DEFAULT 0,
	pnl                 REAL NOT NULL DEFAULT 0,
	r_multiple          REAL NOT NULL DEFAULT 0,
	shadow              INTEGER NOT NULL DEFAULT 0,
	shadow_gates_failed TEXT NOT NULL DEFAULT '[]',
	config_hash         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_entry_ns ON trades (entry_ns);
CREATE TABLE IF NOT EXISTS rejections (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	ts               INTEGER NOT NULL,
	instrument       TEXT NOT NULL,
	poi_type         TEXT NOT NULL,
	poi_price        REAL NOT NULL,
	direction        INTEGER NOT NULL,
	premium_discount TEXT NOT NULL DEFAULT '',
	has_inducement   INTEGER NOT NULL DEFAULT 0,
	is_chop          INTEGER NOT NULL DEFAULT 0,
	gate             TEXT NOT NULL,
	reason           TEXT NOT NULL,
	score            INTEGER,
	context          TEXT
);
`

// SQLiteStore journals to a local SQLite file (offline backtests)
type SQLiteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenSQLite opens (or creates) the journal file and its tables
func OpenSQLite(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	// 단일 writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite journal schema: %w", err)
	}

	log.WithField("path", path).Debug("SQLite journal opened")
	return &SQLiteStore{db: db, logger: log}, nil
}

// SaveTrade upserts a trade by position id
func (s *SQLiteStore) SaveTrade(ctx context.Context, t TradeRecord) error {
	gates, err := marshalGates(t.ShadowGatesFailed)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trades (
			position_id, instrument, profile, direction, grade, poi_type,
			score_total, score_tier1, score_tier2, score_tier3,
			entry_price, stop_price, target_price, risk_pct, contracts, entry_ns,
			closed, exit_price, exit_reason, exit_ns, pnl, r_multiple,
			shadow, shadow_gates_failed, config_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (position_id) DO UPDATE SET
			stop_price = excluded.stop_price,
			target_price = excluded.target_price,
			closed = excluded.closed,
			exit_price = excluded.exit_price,
			exit_reason = excluded.exit_reason,
			exit_ns = excluded.exit_ns,
			pnl = excluded.pnl,
			r_multiple = excluded.r_multiple,
			shadow_gates_failed = excluded.shadow_gates_failed
	`

	_, err = s.db.ExecContext(ctx, query,
		t.PositionID, t.Instrument, t.Profile, int(t.Direction), string(t.Grade), string(t.POIType),
		t.ScoreTotal, t.ScoreTier1, t.ScoreTier2, t.ScoreTier3,
		t.EntryPrice, t.StopPrice, t.TargetPrice, t.RiskPct, t.Contracts, t.EntryNs,
		t.Closed, t.ExitPrice, t.ExitReason, t.ExitNs, t.PnL, t.RMultiple,
		t.Shadow, string(gates), t.ConfigHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.PositionID, err)
	}
	return nil
}

// SaveRejection inserts a rejection
func (s *SQLiteStore) SaveRejection(ctx context.Context, r RejectionRecord) error {
	ctxJSON, err := marshalContext(r.Context)
	if err != nil {
		return err
	}

	var score sql.NullInt64
	if r.Score != nil {
		score = sql.NullInt64{Int64: int64(*r.Score), Valid: true}
	}
	var ctxText sql.NullString
	if ctxJSON != nil {
		ctxText = sql.NullString{String: string(ctxJSON), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rejections (
			ts, instrument, poi_type, poi_price, direction, premium_discount,
			has_inducement, is_chop, gate, reason, score, context
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TimestampNs, r.Instrument, string(r.POIType), r.POIPrice, int(r.Direction), r.PremiumDiscount,
		r.HasInducement, r.IsChop, r.Gate, r.Reason, score, ctxText,
	)
	if err != nil {
		return fmt.Errorf("failed to save rejection: %w", err)
	}
	return nil
}

// ListTrades returns every trade ordered by entry time
func (s *SQLiteStore) ListTrades(ctx context.Context) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, instrument, profile, direction, grade, poi_type,
			score_total, score_tier1, score_tier2, score_tier3,
			entry_price, stop_price, target_price, risk_pct, contracts, entry_ns,
			closed, exit_price, exit_reason, exit_ns, pnl, r_multiple,
			shadow, shadow_gates_failed, config_hash
		FROM trades
		ORDER BY entry_ns, position_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var dir int
		var grade, poiType, gates string
		if err := rows.Scan(
			&t.PositionID, &t.Instrument, &t.Profile, &dir, &grade, &poiType,
			&t.ScoreTotal, &t.ScoreTier1, &t.ScoreTier2, &t.ScoreTier3,
			&t.EntryPrice, &t.StopPrice, &t.TargetPrice, &t.RiskPct, &t.Contracts, &t.EntryNs,
			&t.Closed, &t.ExitPrice, &t.ExitReason, &t.ExitNs, &t.PnL, &t.RMultiple,
			&t.Shadow, &gates, &t.ConfigHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Direction = contracts.Direction(dir)
		t.Grade = contracts.Grade(grade)
		t.POIType = contracts.POIType(poiType)
		if err := json.Unmarshal([]byte(gates), &t.ShadowGatesFailed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shadow gates: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRejections returns every rejection in insertion order
func (s *SQLiteStore) ListRejections(ctx context.Context) ([]RejectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, instrument, poi_type, poi_price, direction, premium_discount,
			has_inducement, is_chop, gate, reason, score, context
		FROM rejections
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var out []RejectionRecord
	for rows.Next() {
		var r RejectionRecord
		var dir int
		var poiType string
		var score sql.NullInt64
		var ctxText sql.NullString
		if err := rows.Scan(
			&r.TimestampNs, &r.Instrument, &poiType, &r.POIPrice, &dir, &r.PremiumDiscount,
			&r.HasInducement, &r.IsChop, &r.Gate, &r.Reason, &score, &ctxText,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}
		r.Direction = contracts.Direction(dir)
		r.POIType = contracts.POIType(poiType)
		if score.Valid {
			v := int(score.Int64)
			r.Score = &v
		}
		if ctxText.Valid {
			if err := json.Unmarshal([]byte(ctxText.String), &r.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rejection context: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
