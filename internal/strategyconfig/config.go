package strategyconfig

import (
	"time"
	_ "time/tzdata" // 세션 시간대 (tzdata 없는 컨테이너 대비)

	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/orderflow"
	"github.com/wonny/flof/backend/internal/portfolio"
	"github.com/wonny/flof/backend/internal/predator"
	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/internal/scoring"
)

// Config는 선물 의사결정 엔진의 전체 설정
// ⭐ SSOT: 컴포넌트 설정은 각 패키지의 Config를 그대로 임베드
type Config struct {
	System        System                   `yaml:"system" json:"system"`
	Predator      predator.Config          `yaml:"predator" json:"predator"`
	OrderFlow     orderflow.Config         `yaml:"order_flow" json:"order_flow"`
	VolumeProfile orderflow.ProfileConfig  `yaml:"volume_profile" json:"volume_profile"`
	Scoring       scoring.Config           `yaml:"scoring" json:"scoring"`
	Gates         Gates                    `yaml:"gates" json:"gates"`
	Portfolio     portfolio.Constraints    `yaml:"portfolio" json:"portfolio"`
	Risk          risk.Config              `yaml:"risk_overlord" json:"risk_overlord"`
	Trade         execution.TradeConfig    `yaml:"trade" json:"trade"`
	Bracket       execution.BracketConfig  `yaml:"execution" json:"execution"`
	SuddenMove    market.SuddenMoveConfig  `yaml:"sudden_move" json:"sudden_move"`
	Calendar      market.CalendarConfig    `yaml:"calendar" json:"calendar"`
	Chop          market.ChopConfig        `yaml:"chop" json:"chop"`
	Health        health.Config            `yaml:"health" json:"health"`
	Shadow        Shadow                   `yaml:"shadow" json:"shadow"`
	Stops         Stops                    `yaml:"stops" json:"stops"`
	Velez         Velez                    `yaml:"velez" json:"velez"`
	EventBus      EventBus                 `yaml:"event_bus" json:"event_bus"`
	Scheduler     Scheduler                `yaml:"scheduler" json:"scheduler"`
	Toggles       map[string]ToggleSection `yaml:"toggles" json:"toggles"`
}

// ToggleSection 토글 그룹 (structure, execution, velez ...). 값 타입 검증은 Registry.Validate에서
type ToggleSection map[string]interface{}

// System 엔진 기본 정보
type System struct {
	Instrument         string  `yaml:"instrument" json:"instrument"`
	Profile            string  `yaml:"profile" json:"profile"`
	LiveMode           bool    `yaml:"live_mode" json:"live_mode"`
	Timezone           string  `yaml:"timezone" json:"timezone"`
	SessionRollTime    string  `yaml:"session_roll_time" json:"session_roll_time"` // 세션 경계 (거래소 시각, HH:MM)
	RingBufferCapacity int     `yaml:"ring_buffer_capacity" json:"ring_buffer_capacity"`
	StartingEquity     float64 `yaml:"starting_equity" json:"starting_equity"`
}

// Gates G1-G3 하드 게이트 설정
type Gates struct {
	G1PremiumDiscountEnabled bool `yaml:"g1_premium_discount_enabled" json:"g1_premium_discount_enabled"`
	G2InducementRequired     bool `yaml:"g2_inducement_required" json:"g2_inducement_required"`
}

// Shadow 섀도 모드: 게이트 실패도 기록용으로 체결
type Shadow struct {
	Enabled              bool    `yaml:"enabled" json:"enabled"`
	SafetyMaxDrawdownPct float64 `yaml:"safety_max_drawdown_pct" json:"safety_max_drawdown_pct"` // 음수
}

// Stops 조건부 청산 보조 설정
type Stops struct {
	T18VolumeThresholdPct float64 `yaml:"t18_volume_threshold_pct" json:"t18_volume_threshold_pct"` // 세션 평균 대비
	ATRPeriod             int     `yaml:"atr_period" json:"atr_period"`
}

// Velez 20/200 SMA 파라미터
type Velez struct {
	SMA20Period         int     `yaml:"sma_20_period" json:"sma_20_period"`
	SMA200Period        int     `yaml:"sma_200_period" json:"sma_200_period"`
	Near200Pct          float64 `yaml:"near_200_pct" json:"near_200_pct"`
	SyntheticPOIATRMult float64 `yaml:"synthetic_poi_atr_mult" json:"synthetic_poi_atr_mult"`
}

// EventBus 알림 채널 설정
type EventBus struct {
	MaxQueueDepth int `yaml:"max_queue_depth" json:"max_queue_depth"`
}

// Scheduler 주기 작업 스펙 (robfig/cron 표현식)
type Scheduler struct {
	RiskCheck       string        `yaml:"risk_check" json:"risk_check"`
	DailyReset      string        `yaml:"daily_reset" json:"daily_reset"`
	EODWarningLead  time.Duration `yaml:"eod_warning_lead" json:"eod_warning_lead"`
	SnapshotPublish string        `yaml:"snapshot_publish" json:"snapshot_publish"`
	CalendarRefresh string        `yaml:"calendar_refresh" json:"calendar_refresh"`
}

// DefaultConfig returns the ES futures defaults every layer is merged over
func DefaultConfig() Config {
	return Config{
		System: System{
			Instrument:         "ES",
			Profile:            "futures",
			Timezone:           "America/New_York",
			SessionRollTime:    "18:00",
			RingBufferCapacity: 500_000,
			StartingEquity:     execution.DefaultStartingEquity,
		},
		Predator:      predator.DefaultConfig(),
		OrderFlow:     orderflow.DefaultConfig(),
		VolumeProfile: orderflow.DefaultProfileConfig(),
		Scoring:       scoring.DefaultConfig(),
		Gates: Gates{
			G1PremiumDiscountEnabled: true,
			G2InducementRequired:     true,
		},
		Portfolio:  portfolio.DefaultConstraints(),
		Risk:       risk.DefaultConfig(),
		Trade:      execution.DefaultTradeConfig(),
		Bracket:    execution.DefaultBracketConfig(),
		SuddenMove: market.DefaultSuddenMoveConfig(),
		Calendar:   market.DefaultCalendarConfig(),
		Chop:       market.DefaultChopConfig(),
		Health:     health.DefaultConfig(),
		Shadow: Shadow{
			SafetyMaxDrawdownPct: -0.20,
		},
		Stops: Stops{
			T18VolumeThresholdPct: 0.50,
			ATRPeriod:             14,
		},
		Velez: Velez{
			SMA20Period:         20,
			SMA200Period:        200,
			Near200Pct:          0.005,
			SyntheticPOIATRMult: 0.5,
		},
		EventBus: EventBus{MaxQueueDepth: 1000},
		Scheduler: Scheduler{
			RiskCheck:       "@every 1s",
			DailyReset:      "0 18 * * 0-4",
			EODWarningLead:  5 * time.Minute,
			SnapshotPublish: "@every 5s",
			CalendarRefresh: "0 6 * * 1-5",
		},
		Toggles: DefaultToggles(),
	}
}

// Location resolves System.Timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.System.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DecisionSnapshot 설정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	Profile    string    `json:"profile"`
	Instrument string    `json:"instrument"`
	GitCommit  string    `json:"git_commit"`
	CreatedAt  time.Time `json:"created_at"`
}
