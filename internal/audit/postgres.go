package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/database"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Migrations creates the journal schema (PostgreSQL)
var Migrations = []database.Migration{
	{
		Version: 1,
		Name:    "journal_trades",
		SQL: `
			CREATE SCHEMA IF NOT EXISTS journal;
			CREATE TABLE IF NOT EXISTS journal.trades (
				position_id         TEXT PRIMARY KEY,
				instrument          TEXT NOT NULL,
				profile             TEXT NOT NULL,
				direction           SMALLINT NOT NULL,
				grade               TEXT NOT NULL,
				poi_type            TEXT NOT NULL,
				score_total         INTEGER NOT NULL,
				score_tier1         INTEGER NOT NULL,
				score_tier2         INTEGER NOT NULL,
				score_tier3         INTEGER NOT NULL,
				entry_price         DOUBLE PRECISION NOT NULL,
				stop_price          DOUBLE PRECISION NOT NULL,
				target_price        DOUBLE PRECISION NOT NULL,
				risk_pct            DOUBLE PRECISION NOT NULL,
				contracts           INTEGER NOT NULL,
				entry_ns            BIGINT NOT NULL,
				closed              BOOLEAN NOT NULL DEFAULT FALSE,
				exit_price          DOUBLE PRECISION NOT NULL DEFAULT 0,
				exit_reason         TEXT NOT NULL DEFAULT '',
				exit_ns             BIGINT NOT NULL DEFAULT 0,
				pnl                 DOUBLE PRECISION NOT NULL DEFAULT 0,
				r_multiple          DOUBLE PRECISION NOT NULL DEFAULT 0,
				shadow              BOOLEAN NOT NULL DEFAULT FALSE,
				shadow_gates_failed JSONB NOT NULL DEFAULT '[]',
				config_hash         TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_trades_entry_ns ON journal.trades (entry_ns);`,
	},
	{
		Version: 2,
		Name:    "journal_rejections",
		SQL: `
			CREATE TABLE IF NOT EXISTS journal.rejections (
				id               BIGSERIAL PRIMARY KEY,
				ts               BIGINT NOT NULL,
				instrument       TEXT NOT NULL,
				poi_type         TEXT NOT NULL,
				poi_price        DOUBLE PRECISION NOT NULL,
				direction        SMALLINT NOT NULL,
				premium_discount TEXT NOT NULL DEFAULT '',
				has_inducement   BOOLEAN NOT NULL DEFAULT FALSE,
				is_chop          BOOLEAN NOT NULL DEFAULT FALSE,
				gate             TEXT NOT NULL,
				reason           TEXT NOT NULL,
				score            INTEGER,
				context          JSONB
			);
			CREATE INDEX IF NOT EXISTS idx_rejections_gate ON journal.rejections (gate);`,
	},
}

// PostgresStore journals to PostgreSQL via pgxpool
type PostgresStore struct {
	db     *database.DB
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresStore creates a store on an open database
func NewPostgresStore(db *database.DB, log *logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &PostgresStore{db: db, pool: db.Pool, logger: log}
}

// Migrate applies the journal migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	n, err := s.db.Migrate(ctx, Migrations)
	if err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	if n > 0 {
		s.logger.WithField("applied", n).Info("Journal migrations applied")
	}
	return nil
}

// SaveTrade upserts a trade by position id
func (s *PostgresStore) SaveTrade(ctx context.Context, t TradeRecord) error {
	gates, err := marshalGates(t.ShadowGatesFailed)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO journal.trades (
			position_id, instrument, profile, direction, grade, poi_type,
			score_total, score_tier1, score_tier2, score_tier3,
			entry_price, stop_price, target_price, risk_pct, contracts, entry_ns,
			closed, exit_price, exit_reason, exit_ns, pnl, r_multiple,
			shadow, shadow_gates_failed, config_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (position_id) DO UPDATE SET
			stop_price = EXCLUDED.stop_price,
			target_price = EXCLUDED.target_price,
			closed = EXCLUDED.closed,
			exit_price = EXCLUDED.exit_price,
			exit_reason = EXCLUDED.exit_reason,
			exit_ns = EXCLUDED.exit_ns,
			pnl = EXCLUDED.pnl,
			r_multiple = EXCLUDED.r_multiple,
			shadow_gates_failed = EXCLUDED.shadow_gates_failed
	`

	_, err = s.pool.Exec(ctx, query,
		t.PositionID, t.Instrument, t.Profile, int16(t.Direction), string(t.Grade), string(t.POIType),
		t.ScoreTotal, t.ScoreTier1, t.ScoreTier2, t.ScoreTier3,
		t.EntryPrice, t.StopPrice, t.TargetPrice, t.RiskPct, t.Contracts, t.EntryNs,
		t.Closed, t.ExitPrice, t.ExitReason, t.ExitNs, t.PnL, t.RMultiple,
		t.Shadow, gates, t.ConfigHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.PositionID, err)
	}
	return nil
}

// SaveRejection inserts a rejection
func (s *PostgresStore) SaveRejection(ctx context.Context, r RejectionRecord) error {
	ctxJSON, err := marshalContext(r.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO journal.rejections (
			ts, instrument, poi_type, poi_price, direction, premium_discount,
			has_inducement, is_chop, gate, reason, score, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		r.TimestampNs, r.Instrument, string(r.POIType), r.POIPrice, int16(r.Direction), r.PremiumDiscount,
		r.HasInducement, r.IsChop, r.Gate, r.Reason, r.Score, ctxJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save rejection: %w", err)
	}
	return nil
}

// ListTrades returns every trade ordered by entry time
func (s *PostgresStore) ListTrades(ctx context.Context) ([]TradeRecord, error) {
	query := `
		SELECT position_id, instrument, profile, direction, grade, poi_type,
			score_total, score_tier1, score_tier2, score_tier3,
			entry_price, stop_price, target_price, risk_pct, contracts, entry_ns,
			closed, exit_price, exit_reason, exit_ns, pnl, r_multiple,
			shadow, shadow_gates_failed, config_hash
		FROM journal.trades
		ORDER BY entry_ns, position_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var dir int16
		var grade, poiType string
		var gates []byte
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
		if err := json.Unmarshal(gates, &t.ShadowGatesFailed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shadow gates: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRejections returns every rejection in insertion order
func (s *PostgresStore) ListRejections(ctx context.Context) ([]RejectionRecord, error) {
	query := `
		SELECT ts, instrument, poi_type, poi_price, direction, premium_discount,
			has_inducement, is_chop, gate, reason, score, context
		FROM journal.rejections
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var out []RejectionRecord
	for rows.Next() {
		var r RejectionRecord
		var dir int16
		var poiType string
		var ctxJSON []byte
		if err := rows.Scan(
			&r.TimestampNs, &r.Instrument, &poiType, &r.POIPrice, &dir, &r.PremiumDiscount,
			&r.HasInducement, &r.IsChop, &r.Gate, &r.Reason, &r.Score, &ctxJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}
		r.Direction = contracts.Direction(dir)
		r.POIType = contracts.POIType(poiType)
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &r.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rejection context: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func marshalGates(gates []string) ([]byte, error) {
	if gates == nil {
		gates = []string{}
	}
	b, err := json.Marshal(gates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shadow gates: %w", err)
	}
	return b, nil
}

func marshalContext(c map[string]interface{}) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rejection context: %w", err)
	}
	return b, nil
}
