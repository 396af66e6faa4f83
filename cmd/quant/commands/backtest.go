package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/backtest"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "기록된 세션 리플레이 백테스트",
	Long: `JSONL 세션 파일(틱/바/컨텍스트)을 의사결정 루프에 리플레이합니다.

백테스팅은 다음을 검증합니다:
- 진입/청산 결과 및 R 배수
- 게이트 거절 분포
- 리스크 지표 (Sharpe, Sortino, MDD)
- 섀도 모드 게이트 실패 통계

Flags:
  --data        세션 JSONL 파일 (필수, "-" = stdin)
  --shadow      섀도 모드 (게이트 실패도 기록용 체결)
  --journal     결과를 JOURNAL_DRIVER 저장소에 기록
  --commission  계약당 편도 수수료 (달러)
  --slippage    불리한 방향 체결 틱
  --json        결과를 JSON으로 출력

Example:
  go run ./cmd/quant backtest --data sessions/2026-03-02.jsonl
  go run ./cmd/quant backtest --data sessions/nq.jsonl --instrument NQ --shadow
  go run ./cmd/quant backtest --data - --json < session.jsonl`,
	RunE: runBacktest,
}

var (
	// Flags
	backtestData       string
	backtestShadow     bool
	backtestJournal    bool
	backtestCommission float64
	backtestSlippage   int
	backtestRate       float64
	backtestJSON       bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	defaults := backtest.DefaultCosts()
	backtestCmd.Flags().StringVar(&backtestData, "data", "", "세션 JSONL 파일 (필수)")
	backtestCmd.Flags().BoolVar(&backtestShadow, "shadow", false, "섀도 모드")
	backtestCmd.Flags().BoolVar(&backtestJournal, "journal", false, "설정된 저널에 기록")
	backtestCmd.Flags().Float64Var(&backtestCommission, "commission", defaults.CommissionPerContract, "계약당 편도 수수료")
	backtestCmd.Flags().IntVar(&backtestSlippage, "slippage", defaults.SlippageTicks, "슬리피지 틱")
	backtestCmd.Flags().Float64Var(&backtestRate, "rate", 0, "초당 레코드 수 (0 = 최대 속도)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "JSON 출력")

	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	overrides := map[string]interface{}{
		"system.live_mode": false,
	}
	if backtestShadow {
		overrides["shadow.enabled"] = true
	}

	rt, err := loadRuntime(overrides)
	if err != nil {
		return err
	}
	if rt.provider.LiveMode() {
		return fmt.Errorf("backtest refuses to run with LIVE_MODE=true")
	}

	ctx := context.Background()

	// Journal (memory unless --journal)
	var journal audit.Store
	if backtestJournal {
		journal, err = audit.Open(ctx, rt.cfg, rt.log)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
	}

	// Input
	src := os.Stdin
	if backtestData != "-" {
		f, err := os.Open(backtestData)
		if err != nil {
			return fmt.Errorf("open data: %w", err)
		}
		defer f.Close()
		src = f
	}

	engine := backtest.NewEngine(rt.provider, journal, backtest.Config{
		Costs: backtest.Costs{
			CommissionPerContract: backtestCommission,
			SlippageTicks:         backtestSlippage,
		},
		ReplayRate: backtestRate,
	}, rt.log.WithComponent("backtest"))

	result, err := engine.Run(ctx, src)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printBacktestResult(result)
	return nil
}

func printBacktestResult(r *backtest.Result) {
	s := r.Summary

	PrintHeader("FLOF Backtest Result")
	PrintKeyValue("Config hash", shortHash(r.ConfigHash), 16)
	PrintKeyValue("Records", fmt.Sprintf("%d (ticks %d, bars %d, contexts %d)", r.Records, r.Ticks, r.Bars, r.Contexts), 16)
	PrintKeyValue("Duration", r.Duration.String(), 16)
	PrintKeyValue("Trading days", fmt.Sprintf("%d", r.TradingDays), 16)
	PrintSeparator()

	fmt.Println("💰 Performance")
	PrintKeyValue("Starting equity", formatMoney(r.StartingEquity), 16)
	PrintKeyValue("Final equity", formatMoney(r.FinalEquity), 16)
	PrintKeyValue("Commission", formatMoney(r.Execution.TotalCommission), 16)
	PrintKeyValue("Net P&L", formatMoney(r.NetPnL), 16)
	PrintKeyValue("Total return", formatPct(r.TotalReturn), 16)
	PrintKeyValue("Max drawdown", fmt.Sprintf("%s (%s)", formatMoney(r.MaxDrawdown), formatPct(r.MaxDrawdownPct)), 16)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", r.SharpeRatio), 16)
	PrintKeyValue("Sortino", fmt.Sprintf("%.2f", r.SortinoRatio), 16)
	PrintSeparator()

	fmt.Println("📊 Trades")
	PrintKeyValue("Trades", fmt.Sprintf("%d (W %d / L %d)", s.Total, s.Wins, s.Losses), 16)
	PrintKeyValue("Win rate", formatPct(s.WinRate), 16)
	PrintKeyValue("Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor), 16)
	PrintKeyValue("Avg R", fmt.Sprintf("%.2f", s.AvgR), 16)
	PrintKeyValue("VaR95 / CVaR95", fmt.Sprintf("%.2fR / %.2fR", s.VaR95, s.CVaR95), 16)
	if s.ShadowTrades > 0 {
		PrintKeyValue("Shadow trades", fmt.Sprintf("%d", s.ShadowTrades), 16)
	}

	if len(r.Trades) > 0 {
		fmt.Println()
		printTradesTable(r.Trades)
	}

	if len(r.Rejections) > 0 {
		fmt.Println()
		fmt.Println("🚫 Rejections by gate")
		printRejectionsByGate(r.Rejections)
	}

	PrintDoubleSeparator()
}
