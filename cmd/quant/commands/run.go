package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/api"
	"github.com/wonny/flof/backend/internal/api/handlers"
	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/eventbus"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/realtime/cache"
	"github.com/wonny/flof/backend/internal/realtime/feed"
	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/internal/realtime/queue"
	"github.com/wonny/flof/backend/internal/scheduler"
	"github.com/wonny/flof/backend/internal/scheduler/jobs"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/redis"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "실시간 의사결정 루프 실행",
	Long: `실시간 피드에 연결하여 의사결정 루프를 실행합니다.

이 명령어는:
- FEED_URL 웹소켓 피드 구독 (틱/바/컨텍스트)
- 하트비트 감시 (stale → Nuclear Flatten 카운트다운)
- 스케줄러 (risk_check, daily_reset, eod_warning, snapshot_publish, calendar_refresh)
- HTTP API + /ws/events + /metrics

Endpoints:
  GET  /health                 - Feed/broker health
  GET  /api/state              - Engine snapshot
  GET  /api/positions          - Open positions
  GET  /api/ledger             - Portfolio ledger
  GET  /api/risk               - Risk overlord state
  GET  /api/toggles            - Toggle states
  GET  /api/journal/summary    - Journal statistics
  GET  /api/jobs               - Scheduler statistics
  POST /api/kill               - Manual kill switch
  GET  /ws/events              - Event stream

Example:
  go run ./cmd/quant run
  go run ./cmd/quant run --port 9090 --profile shadow`,
	RunE: runEngine,
}

var (
	runPort string
)

func init() {
	rootCmd.AddCommand(runCmd)

	// Flags
	runCmd.Flags().StringVar(&runPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	fmt.Println("=== FLOF Decision Engine ===")

	// 1. Load config
	rt, err := loadRuntime(nil)
	if err != nil {
		return err
	}
	if runPort != "" {
		rt.cfg.Port = runPort
	}
	if rt.cfg.Feed.URL == "" {
		return fmt.Errorf("FEED_URL is required for run")
	}
	log := rt.log
	strat := rt.provider.Config()
	loc := strat.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Redis (optional)
	redisClient, err := redis.New(rt.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	redisCache := redis.NewCache(redisClient, "flof")
	limiter := redis.NewRateLimiter(redisClient, "flof")

	// 3. Journal (async writes off the decision loop)
	store, err := audit.Open(ctx, rt.cfg, log.WithComponent("journal"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	journal := queue.NewJournalWriter(store, strat.EventBus.MaxQueueDepth, log.WithComponent("journal_writer"))
	defer journal.Close()

	// 4. Infrastructure shared with the decision loop
	healthCfg := strat.Health
	if rt.cfg.Feed.HeartbeatTimeout > 0 {
		healthCfg.HeartbeatTimeout = rt.cfg.Feed.HeartbeatTimeout
	}
	monitor := health.NewMonitor(healthCfg, log.WithComponent("health"))
	calendar := market.NewEventCalendar(strat.Calendar, loc, log.WithComponent("calendar"))
	bus := eventbus.New(strat.EventBus.MaxQueueDepth, log.WithComponent("eventbus"))
	events := handlers.NewEventStream(bus, 5, log.WithComponent("ws"))
	bus.Start(ctx)
	defer bus.Stop()

	// 5. Decision loop
	orch, err := brain.New(rt.provider, brain.Deps{
		Journal:  journal,
		Bus:      bus,
		Health:   monitor,
		Calendar: calendar,
	}, log)
	if err != nil {
		return fmt.Errorf("create decision loop: %w", err)
	}

	// 6. Feed + heartbeat watchdog
	client := feed.NewClient(feed.ClientConfig{
		URL:        rt.cfg.Feed.URL,
		Instrument: strat.System.Instrument,
	}, func(rec feed.Record) error {
		return orch.HandleRecord(ctx, rec)
	}, monitor, log.WithComponent("feed"))

	feedManager := feed.NewManager(client, monitor, feed.StaleHandlers{
		OnStale:   orch.OnStaleData,
		OnRecover: orch.OnFeedRecovered,
	}, log.WithComponent("feed_manager"))

	// 7. Scheduler
	snapshots := cache.NewSnapshotCache(redis.TTLSnapshot, log.WithComponent("snapshot_cache"))
	sched, err := buildScheduler(rt, orch, calendar, snapshots, redisCache, limiter)
	if err != nil {
		return err
	}

	// 8. API
	router := api.NewRouter(api.Handlers{
		Health:  handlers.NewHealthHandler(monitor, "flof-engine"),
		Engine:  handlers.NewEngineHandler(orch, snapshots, rt.provider, log),
		Journal: handlers.NewJournalHandler(journal, redisCache, strat.System.Instrument, loc, log),
		Jobs:    handlers.NewJobsHandler(sched, log),
		Events:  events,
	}, log)
	server := api.New(rt.cfg, log, router)
	if err := server.Listen(); err != nil {
		return err
	}

	// 9. Start everything
	if err := feedManager.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	sched.Start()

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("API server stopped with error")
			stop()
		}
	}()

	log.WithFields(map[string]interface{}{
		"instrument":  strat.System.Instrument,
		"profile":     strat.System.Profile,
		"live_mode":   rt.provider.LiveMode(),
		"shadow":      strat.Shadow.Enabled,
		"config_hash": rt.provider.Hash(),
	}).Info("Decision engine started")
	fmt.Printf("\n✅ Engine running, API on http://localhost:%s\n", rt.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()
	log.Info("Shutting down engine...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API server shutdown failed")
	}
	events.Close()
	sched.Stop()
	feedManager.Stop()

	if snap := orch.Snapshot(); len(snap.Positions) > 0 {
		log.WithField("positions", len(snap.Positions)).Warn("Flattening open positions on shutdown")
		if err := orch.FlattenAllPositions(); err != nil {
			log.WithError(err).Error("Shutdown flatten failed")
		}
	}

	log.Info("Engine stopped")
	return nil
}

// buildScheduler registers the engine's periodic jobs
func buildScheduler(
	rt *runtimeEnv,
	orch *brain.Orchestrator,
	calendar *market.EventCalendar,
	snapshots *cache.SnapshotCache,
	redisCache *redis.Cache,
	limiter *redis.RateLimiter,
) (*scheduler.Scheduler, error) {
	strat := rt.provider.Config()
	log := rt.log.WithComponent("scheduler")

	sched := scheduler.New(scheduler.Options{
		Location:   strat.Location(),
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}, log)

	eodJob, err := jobs.NewEODWarningJob(orch, strat.Trade.EODFlattenTime, strat.Scheduler.EODWarningLead, log)
	if err != nil {
		return nil, err
	}

	calendarClient := httputil.New(log).
		WithRetry(2, time.Second).
		WithRateLimiter(limiter, redis.CalendarRateLimit)

	for _, job := range []scheduler.Job{
		jobs.NewRiskCheckJob(orch, strat.Scheduler.RiskCheck, log),
		jobs.NewDailyResetJob(orch, strat.Scheduler.DailyReset, log),
		eodJob,
		jobs.NewSnapshotPublishJob(orch, snapshots, redisCache, strat.Scheduler.SnapshotPublish, log),
		jobs.NewCalendarRefreshJob(calendar, calendarClient, redisCache, rt.cfg.CalendarURL, strat.Scheduler.CalendarRefresh, strat.Location(), log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("register job: %w", err)
		}
	}

	// 기동 직후 캘린더 1회 로드 (Type A 감지)
	if rt.cfg.CalendarURL != "" {
		if _, err := sched.RunJobSync(context.Background(), "calendar_refresh"); err != nil {
			return nil, err
		}
	}

	return sched, nil
}
