package portfolio

import "time"

// Constraints 진입 전 포트폴리오 게이트 한도
// ⭐ SSOT: 포트폴리오 한도는 여기서만
type Constraints struct {
	MaxTotalExposure   float64             `yaml:"p1_max_total_exposure" json:"p1_max_total_exposure"` // 자본 대비 총 리스크 비율
	MaxPerGroup        int                 `yaml:"p2_max_per_group" json:"p2_max_per_group"`
	DailyDrawdownLimit float64             `yaml:"p3_daily_drawdown_limit" json:"p3_daily_drawdown_limit"` // 음수 (예: -0.02)
	MaxLossStreak      int                 `yaml:"p4_max_loss_streak" json:"p4_max_loss_streak"`
	Lockout            time.Duration       `yaml:"p5_lockout" json:"p5_lockout"`
	CorrelationGroups  map[string][]string `yaml:"correlation_groups" json:"correlation_groups"`
}

// DefaultConstraints returns the default gate limits
func DefaultConstraints() Constraints {
	return Constraints{
		MaxTotalExposure:   0.06,
		MaxPerGroup:        2,
		DailyDrawdownLimit: -0.02,
		MaxLossStreak:      3,
		Lockout:            300 * time.Second,
		CorrelationGroups: map[string][]string{
			"equity_index": {"ES", "NQ", "YM", "RTY", "MES", "MNQ"},
			"rates":        {"ZN", "ZB", "ZF"},
			"energy":       {"CL", "NG"},
			"metals":       {"GC", "SI"},
		},
	}
}

// DefaultGroup is assigned to instruments without a correlation group
const DefaultGroup = "default"
