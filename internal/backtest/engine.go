package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/realtime/feed"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/internal/strategyconfig"
	"github.com/wonny/flof/backend/pkg/logger"
)

// tradingDaysPerYear annualizes daily return statistics
const tradingDaysPerYear = 252

// Engine runs backtesting simulations over recorded JSONL sessions
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	provider *strategyconfig.Manager
	journal  audit.Store
	config   Config
	logger   *logger.Logger
}

// Config holds backtest configuration
type Config struct {
	Costs Costs
	// ReplayRate paces records per second. 0 replays as fast as possible.
	ReplayRate float64
}

// Result holds backtest results
type Result struct {
	ConfigHash string        `json:"config_hash"`
	Duration   time.Duration `json:"duration"`

	Records  int `json:"records"`
	Ticks    int `json:"ticks"`
	Bars     int `json:"bars"`
	Contexts int `json:"contexts"`

	// Performance metrics
	StartingEquity float64 `json:"starting_equity"`
	FinalEquity    float64 `json:"final_equity"` // 수수료 차감 전
	NetPnL         float64 `json:"net_pnl"`      // 수수료 차감 후
	TotalReturn    float64 `json:"total_return"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradingDays    int     `json:"trading_days"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`

	// Trading metrics
	Summary    audit.Summary           `json:"summary"`
	Trades     []audit.TradeRecord     `json:"trades"`
	Rejections []audit.RejectionRecord `json:"rejections"`
	Execution  Stats                   `json:"execution"`

	// Equity curve
	EquityCurve []execution.EquityPoint `json:"equity_curve"`
}

// NewEngine creates a backtest engine. A nil journal keeps the run in memory.
func NewEngine(provider *strategyconfig.Manager, journal audit.Store, config Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if journal == nil {
		journal = audit.NewMemoryStore()
	}
	return &Engine{
		provider: provider,
		journal:  journal,
		config:   config,
		logger:   log,
	}
}

// Run replays src through a fresh decision loop and returns the result.
// Positions still open at the end are closed at the last price.
func (e *Engine) Run(ctx context.Context, src io.Reader) (*Result, error) {
	if e.provider == nil {
		return nil, errors.New("backtest: nil config provider")
	}
	cfg := e.provider.Config()

	sim := NewSimulator(cfg.Bracket.TickSize, e.config.Costs, e.logger)
	orch, err := brain.New(e.provider, brain.Deps{
		Broker:  sim,
		Journal: e.journal,
	}, e.logger, risk.WithExit(func(code int) {
		e.logger.WithField("code", code).Warn("Process exit suppressed during backtest")
	}))
	if err != nil {
		return nil, fmt.Errorf("create decision loop: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"instrument":      cfg.System.Instrument,
		"profile":         cfg.System.Profile,
		"shadow":          cfg.Shadow.Enabled,
		"starting_equity": cfg.System.StartingEquity,
		"commission":      e.config.Costs.CommissionPerContract,
		"slippage_ticks":  e.config.Costs.SlippageTicks,
	}).Info("Starting backtest")

	var firstNs, lastNs int64
	replayer := feed.NewReplayer(e.config.ReplayRate, e.logger.WithComponent("replay"))
	stats, err := replayer.Replay(ctx, src, func(rec feed.Record) error {
		if ts := rec.TimestampNs(); ts > 0 {
			if firstNs == 0 {
				firstNs = ts
			}
			lastNs = ts
		}

		return orch.HandleRecord(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	if n := orch.CloseAll(ctx, execution.ExitEndOfBacktest); n > 0 {
		e.logger.WithField("positions", n).Info("Closed open positions at end of data")
	}

	result, err := e.collect(ctx, orch, sim, firstNs, lastNs)
	if err != nil {
		return nil, err
	}
	result.Records = stats.Records
	result.Ticks = stats.Ticks
	result.Bars = stats.Bars
	result.Contexts = stats.Contexts
	result.Duration = stats.Duration

	e.logger.WithFields(map[string]interface{}{
		"duration":     result.Duration.String(),
		"trades":       result.Summary.Total,
		"rejections":   len(result.Rejections),
		"win_rate":     fmt.Sprintf("%.2f%%", result.Summary.WinRate*100),
		"net_pnl":      fmt.Sprintf("%.2f", result.NetPnL),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.MaxDrawdownPct*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", result.SharpeRatio),
	}).Info("Backtest completed")

	return result, nil
}

// collect gathers this run's journal records and computes performance metrics
func (e *Engine) collect(ctx context.Context, orch *brain.Orchestrator, sim *Simulator, firstNs, lastNs int64) (*Result, error) {
	snap := orch.Snapshot()

	// 저널은 여러 실행이 공유할 수 있으므로 이번 실행의 레코드만 추림
	ids := make(map[string]bool)
	for _, ct := range orch.ClosedTrades() {
		ids[ct.Position.ID] = true
	}

	allTrades, err := e.journal.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	trades := make([]audit.TradeRecord, 0, len(ids))
	for _, t := range allTrades {
		if ids[t.PositionID] && t.EntryNs >= firstNs && t.EntryNs <= lastNs {
			trades = append(trades, t)
		}
	}

	allRejections, err := e.journal.ListRejections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	rejections := make([]audit.RejectionRecord, 0)
	for _, r := range allRejections {
		if r.TimestampNs >= firstNs && r.TimestampNs <= lastNs {
			rejections = append(rejections, r)
		}
	}

	exec := sim.GetStats()
	starting := e.provider.Config().System.StartingEquity
	if starting <= 0 {
		starting = execution.DefaultStartingEquity
	}

	result := &Result{
		ConfigHash:     snap.ConfigHash,
		StartingEquity: starting,
		FinalEquity:    snap.Equity.Equity,
		NetPnL:         snap.Equity.Equity - starting - exec.TotalCommission,
		MaxDrawdown:    snap.Equity.MaxDrawdown,
		MaxDrawdownPct: snap.Equity.MaxDrawdownPct,
		Summary:        audit.Summarize(trades),
		Trades:         trades,
		Rejections:     rejections,
		Execution:      exec,
		EquityCurve:    orch.EquityCurve(),
	}
	result.TotalReturn = result.NetPnL / starting

	e.calculateMetrics(result)
	return result, nil
}

// calculateMetrics derives daily return statistics from the equity curve
func (e *Engine) calculateMetrics(result *Result) {
	cfg := e.provider.Config()
	daily := dailyReturns(result.StartingEquity, result.EquityCurve, cfg.Location())
	result.TradingDays = len(daily)
	if len(daily) < 2 {
		return
	}

	mean := 0.0
	for _, r := range daily {
		mean += r
	}
	mean /= float64(len(daily))

	result.Volatility = calculateVolatility(daily) * math.Sqrt(tradingDaysPerYear)
	annualized := mean * tradingDaysPerYear

	// Sharpe Ratio (assuming 0% risk-free rate)
	if result.Volatility > 0 {
		result.SharpeRatio = annualized / result.Volatility
	}

	// Sortino Ratio (downside deviation)
	downside := make([]float64, 0)
	for _, r := range daily {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := calculateVolatility(downside) * math.Sqrt(tradingDaysPerYear); dd > 0 {
		result.SortinoRatio = annualized / dd
	}
}

// dailyReturns groups realized equity by session date and returns day-over-day returns
func dailyReturns(starting float64, curve []execution.EquityPoint, loc *time.Location) []float64 {
	if len(curve) == 0 || starting <= 0 {
		return nil
	}

	var closes []float64
	lastDay := ""
	for _, p := range curve {
		day := time.Unix(0, p.TimestampNs).In(loc).Format("2006-01-02")
		if day != lastDay {
			closes = append(closes, p.Equity)
			lastDay = day
			continue
		}
		closes[len(closes)-1] = p.Equity
	}

	out := make([]float64, 0, len(closes))
	prev := starting
	for _, c := range closes {
		out = append(out, (c-prev)/prev)
		prev = c
	}
	return out
}

// calculateVolatility calculates the population standard deviation
func calculateVolatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	// Mean
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Variance
	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}
