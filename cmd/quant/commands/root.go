package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/strategyconfig"
	"github.com/wonny/flof/backend/pkg/config"
	"github.com/wonny/flof/backend/pkg/logger"
)

var (
	// Global flags
	strategyFile string
	profile      string
	instrument   string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "FLOF - 선물 오더플로우 의사결정 엔진",
	Long: `FLOF Unified CLI

틱 오더플로우 + 구조적 POI 기반 선물 의사결정 엔진.
Predator 상태머신 → Confluence 채점 → Portfolio 게이트 → Risk Overlord.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest --data sessions/2026-03-02.jsonl
  go run ./cmd/quant run
  go run ./cmd/quant toggles list
  go run ./cmd/quant status`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "config", "", "전략 설정 base.yaml (기본: STRATEGY_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "프로파일 레이어 (기본: PROFILE)")
	rootCmd.PersistentFlags().StringVar(&instrument, "instrument", "", "종목 레이어 (기본: INSTRUMENT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// runtimeEnv is what every command needs before doing work
type runtimeEnv struct {
	cfg      *config.Config
	log      *logger.Logger
	provider *strategyconfig.Manager
}

// loadRuntime reads .env, builds the logger and loads the layered strategy config.
// Flag values win over environment values.
func loadRuntime(overrides map[string]interface{}) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if instrument != "" {
		cfg.Instrument = instrument
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if strategyFile != "" {
		cfg.StrategyConfig = strategyFile
	}

	log := logger.New(cfg)

	merged := cfg.StrategyOverrides()
	for k, v := range overrides {
		merged[k] = v
	}

	provider := strategyconfig.NewManager(cfg.LiveMode, log.WithComponent("strategyconfig"))
	if err := provider.Load(strategyconfig.Layers{
		Base:       cfg.StrategyConfig,
		Profile:    cfg.Profile,
		Instrument: cfg.Instrument,
		Overrides:  merged,
	}); err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}

	return &runtimeEnv{cfg: cfg, log: log, provider: provider}, nil
}
