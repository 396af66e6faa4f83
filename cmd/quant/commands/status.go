package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "실행 중인 엔진 상태 조회",
	Long: `실행 중인 엔진의 최신 스냅샷을 조회합니다.

조회 순서:
1. Redis (snapshot_publish 잡이 게시한 스냅샷)
2. HTTP API (GET /api/state)

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --watch --refresh 2s`,
	RunE: runStatus,
}

var (
	statusAPI     string
	statusWatch   bool
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAPI, "api", "", "엔진 API 주소 (기본: http://localhost:PORT)")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "주기적으로 갱신")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 5*time.Second, "갱신 주기")
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(nil)
	if err != nil {
		return err
	}
	instrument := rt.provider.Config().System.Instrument

	redisClient, err := redis.New(rt.cfg)
	if err != nil {
		rt.log.WithError(err).Warn("Redis unavailable, using HTTP API only")
		redisClient = redis.Disabled()
	}
	defer redisClient.Close()
	src := &snapshotSource{
		cache:      redis.NewCache(redisClient, "flof"),
		client:     httputil.NewWithTimeout(rt.log, 3*time.Second).DisableRetry(),
		apiURL:     statusAPI,
		instrument: instrument,
	}
	if src.apiURL == "" {
		src.apiURL = "http://localhost:" + rt.cfg.Port
	}

	if !statusWatch {
		snap, from, err := src.fetch(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(snap, from)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	for {
		fmt.Print("\033[H\033[2J")
		if snap, from, err := src.fetch(ctx); err != nil {
			PrintError(err.Error())
		} else {
			printStatus(snap, from)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// snapshotSource reads the engine snapshot from redis, then from the HTTP API
type snapshotSource struct {
	cache      *redis.Cache
	client     *httputil.Client
	apiURL     string
	instrument string
}

func (s *snapshotSource) fetch(ctx context.Context) (brain.EngineSnapshot, string, error) {
	var snap brain.EngineSnapshot
	if found, err := s.cache.Get(ctx, redis.SnapshotKey(s.instrument), &snap); err == nil && found {
		return snap, "redis", nil
	}

	body, err := s.client.GetBody(ctx, s.apiURL+"/api/state")
	if err != nil {
		return snap, "", fmt.Errorf("engine not reachable at %s: %w", s.apiURL, err)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, "", fmt.Errorf("decode engine state: %w", err)
	}
	return snap, "api", nil
}

func printStatus(s brain.EngineSnapshot, from string) {
	PrintHeader(fmt.Sprintf("FLOF Engine Status (%s)", s.Instrument))
	PrintKeyValue("Source", from, 16)
	PrintKeyValue("Profile", s.Profile, 16)
	PrintKeyValue("Config hash", shortHash(s.ConfigHash), 16)
	PrintKeyValue("Session", s.SessionDate, 16)
	if s.LastNs > 0 {
		PrintKeyValue("Last tick", time.Unix(0, s.LastNs).UTC().Format("15:04:05.000 MST"), 16)
	}
	PrintKeyValue("State", s.State.String(), 16)
	PrintKeyValue("Last price", fmt.Sprintf("%.2f", s.LastPrice), 16)
	PrintKeyValue("ATR", fmt.Sprintf("%.2f", s.ATR), 16)
	if s.Shadow {
		PrintWarning("Shadow mode: gate failures are bypassed and tagged")
	}
	if s.FeedStale {
		PrintWarning("Feed is stale")
	}
	PrintSeparator()

	fmt.Println("💰 Equity")
	PrintKeyValue("Equity", formatMoney(s.Equity.Equity), 16)
	PrintKeyValue("Daily P&L", formatPct(s.Equity.DailyPnLPct), 16)
	PrintKeyValue("Max drawdown", fmt.Sprintf("%s (%s)", formatMoney(s.Equity.MaxDrawdown), formatPct(s.Equity.MaxDrawdownPct)), 16)
	PrintKeyValue("Exposure", formatPct(s.Ledger.TotalExposure), 16)
	PrintKeyValue("Loss streak", fmt.Sprintf("%d", s.Ledger.ConsecutiveLosses), 16)
	PrintSeparator()

	fmt.Println("🛡️  Risk")
	if s.Risk.Flattened {
		PrintError("NUCLEAR FLATTEN: " + s.Risk.FlattenReason)
	} else {
		PrintSuccess("Armed")
	}
	PrintKeyValue("Orders/min", fmt.Sprintf("%d", s.Risk.RecentOrders), 16)

	if len(s.Positions) > 0 {
		fmt.Println()
		widths := []int{10, 6, 5, 9, 9, 9, 7, 15}
		PrintTableHeader([]string{"ID", "Dir", "Grd", "Entry", "Stop", "Target", "Qty", "Phase"}, widths)
		for _, p := range s.Positions {
			PrintTableRow([]string{
				p.ID,
				p.Direction.String(),
				string(p.Grade),
				fmt.Sprintf("%.2f", p.EntryPrice),
				fmt.Sprintf("%.2f", p.StopPrice),
				fmt.Sprintf("%.2f", p.TargetPrice),
				fmt.Sprintf("%d/%d", p.RemainingContracts, p.TotalContracts),
				p.Phase.String(),
			}, widths)
		}
	}
	PrintDoubleSeparator()
}
