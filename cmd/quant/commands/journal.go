package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/audit"
)

// journalCmd represents the journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "트레이드 저널 조회",
	Long: `JOURNAL_DRIVER 로 설정된 트레이드 저널을 조회합니다.

Subcommands:
  summary     - 승률, Profit factor, R 분포, 등급 분포
  trades      - 최근 트레이드 목록
  rejections  - 게이트별 거절 통계
  migrate     - 저널 스키마 마이그레이션 (postgres)

Example:
  go run ./cmd/quant journal summary
  go run ./cmd/quant journal trades --limit 20`,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "저널 통계 요약",
	RunE:  runJournalSummary,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "최근 트레이드 목록",
	RunE:  runJournalTrades,
}

var journalRejectionsCmd = &cobra.Command{
	Use:   "rejections",
	Short: "게이트별 거절 통계",
	RunE:  runJournalRejections,
}

var journalMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "저널 스키마 마이그레이션",
	RunE:  runJournalMigrate,
}

var (
	journalLimit          int
	journalRejectionLimit int
	journalJSON           bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSummaryCmd, journalTradesCmd, journalRejectionsCmd, journalMigrateCmd)

	journalCmd.PersistentFlags().BoolVar(&journalJSON, "json", false, "JSON 출력")
	journalTradesCmd.Flags().IntVar(&journalLimit, "limit", 50, "최근 N건 (0 = 전체)")
	journalRejectionsCmd.Flags().IntVar(&journalRejectionLimit, "limit", 0, "최근 N건 상세 출력")
}

// openJournal opens the configured journal store
func openJournal(ctx context.Context) (*runtimeEnv, audit.Store, error) {
	rt, err := loadRuntime(nil)
	if err != nil {
		return nil, nil, err
	}
	store, err := audit.Open(ctx, rt.cfg, rt.log.WithComponent("journal"))
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	return rt, store, nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, store, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	trades, err := store.ListTrades(ctx)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	s := audit.Summarize(trades)

	if journalJSON {
		return printJSON(s)
	}

	PrintHeader("FLOF Journal Summary")
	PrintKeyValue("Driver", rt.cfg.Journal.Driver, 16)
	PrintKeyValue("Trades", fmt.Sprintf("%d (W %d / L %d)", s.Total, s.Wins, s.Losses), 16)
	PrintKeyValue("Win rate", formatPct(s.WinRate), 16)
	PrintKeyValue("Total P&L", formatMoney(s.TotalPnL), 16)
	PrintKeyValue("Avg win", formatMoney(s.AvgWin), 16)
	PrintKeyValue("Avg loss", formatMoney(s.AvgLoss), 16)
	PrintKeyValue("Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor), 16)
	PrintKeyValue("Avg R", fmt.Sprintf("%.2f", s.AvgR), 16)
	PrintKeyValue("Max drawdown", formatMoney(s.MaxDrawdown), 16)
	PrintKeyValue("VaR95 / CVaR95", fmt.Sprintf("%.2fR / %.2fR", s.VaR95, s.CVaR95), 16)
	PrintSeparator()

	if len(s.GradeDistribution) > 0 {
		fmt.Println("🏷️  Grades")
		for _, g := range sortedKeys(s.GradeDistribution) {
			PrintKeyValue(string(g), fmt.Sprintf("%d", s.GradeDistribution[g]), 16)
		}
	}
	if len(s.ExitReasons) > 0 {
		fmt.Println("🚪 Exit reasons")
		for _, r := range sortedKeys(s.ExitReasons) {
			PrintKeyValue(r, fmt.Sprintf("%d", s.ExitReasons[r]), 24)
		}
	}
	if s.ShadowTrades > 0 {
		fmt.Println("👻 Shadow trades (bypassed gates)")
		for _, g := range sortedKeys(s.ShadowGateCounts) {
			PrintKeyValue(g, fmt.Sprintf("%d", s.ShadowGateCounts[g]), 24)
		}
	}

	PrintDoubleSeparator()
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, store, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	trades, err := store.ListTrades(ctx)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	trades = lastN(trades, journalLimit)

	if journalJSON {
		return printJSON(trades)
	}
	if len(trades) == 0 {
		PrintInfo("No trades in journal")
		return nil
	}
	printTradesTable(trades)
	return nil
}

func runJournalRejections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, store, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rejections, err := store.ListRejections(ctx)
	if err != nil {
		return fmt.Errorf("list rejections: %w", err)
	}

	if journalJSON {
		return printJSON(lastN(rejections, journalRejectionLimit))
	}
	if len(rejections) == 0 {
		PrintInfo("No rejections in journal")
		return nil
	}

	PrintHeader(fmt.Sprintf("Rejections (%d)", len(rejections)))
	printRejectionsByGate(rejections)

	if journalRejectionLimit > 0 {
		fmt.Println()
		widths := []int{20, 16, 10, 18, 30}
		PrintTableHeader([]string{"Time", "POI", "Price", "Gate", "Reason"}, widths)
		for _, r := range lastN(rejections, journalRejectionLimit) {
			PrintTableRow([]string{
				time.Unix(0, r.TimestampNs).UTC().Format("01-02 15:04:05"),
				string(r.POIType),
				fmt.Sprintf("%.2f", r.POIPrice),
				r.Gate,
				r.Reason,
			}, widths)
		}
	}
	return nil
}

func runJournalMigrate(cmd *cobra.Command, args []string) error {
	// audit.Open applies pending migrations for the configured driver
	_, store, err := openJournal(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	PrintSuccess("Journal schema is up to date")
	return nil
}

// printTradesTable prints one row per trade record
func printTradesTable(trades []audit.TradeRecord) {
	widths := []int{10, 6, 5, 9, 9, 18, 12, 6}
	PrintTableHeader([]string{"ID", "Dir", "Grd", "Entry", "Exit", "Reason", "P&L", "R"}, widths)
	for _, t := range trades {
		exit, reason := "-", "open"
		if t.Closed {
			exit = fmt.Sprintf("%.2f", t.ExitPrice)
			reason = t.ExitReason
		}
		PrintTableRow([]string{
			t.PositionID,
			t.Direction.String(),
			string(t.Grade),
			fmt.Sprintf("%.2f", t.EntryPrice),
			exit,
			reason,
			formatMoney(t.PnL),
			fmt.Sprintf("%.2f", t.RMultiple),
		}, widths)
	}
}

// printRejectionsByGate prints rejection counts per gate in gate order
func printRejectionsByGate(rejections []audit.RejectionRecord) {
	counts := make(map[string]int)
	for _, rej := range rejections {
		counts[rej.Gate]++
	}
	for _, g := range sortedKeys(counts) {
		PrintKeyValue(g, fmt.Sprintf("%d", counts[g]), 24)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
