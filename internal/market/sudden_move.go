package market

import (
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
)

// SuddenMoveConfig 급변 분류 임계값
type SuddenMoveConfig struct {
	TickVelocityThresholdPct float64 `yaml:"tick_velocity_threshold_pct" json:"tick_velocity_threshold_pct"`
	RangeExpansionThreshold  float64 `yaml:"range_expansion_threshold" json:"range_expansion_threshold"`
	SpreadQuarantineTicks    float64 `yaml:"spread_quarantine_ticks" json:"spread_quarantine_ticks"` // 기준 스프레드 대비 배수
}

// DefaultSuddenMoveConfig returns the ES thresholds
func DefaultSuddenMoveConfig() SuddenMoveConfig {
	return SuddenMoveConfig{
		TickVelocityThresholdPct: 400,
		RangeExpansionThreshold:  3.0,
		SpreadQuarantineTicks:    3,
	}
}

// SuddenMoveInput is the per-update classifier input
type SuddenMoveInput struct {
	Health           *contracts.HealthReport // nil = 정보 없음 (정상으로 간주)
	HasCalendarEvent bool
	TapeVelocityPct  float64
	SpreadCurrent    float64
	SpreadBaseline   float64
}

// SuddenMoveClassifier classifies abrupt moves.
// 우선순위: Type C (인프라) → Type A (일정 이벤트) → Type B (캐스케이드) → NONE
type SuddenMoveClassifier struct {
	cfg SuddenMoveConfig
}

// NewSuddenMoveClassifier creates a classifier
func NewSuddenMoveClassifier(cfg SuddenMoveConfig) *SuddenMoveClassifier {
	return &SuddenMoveClassifier{cfg: cfg}
}

// Classify returns the sudden move type for the current conditions
func (c *SuddenMoveClassifier) Classify(in SuddenMoveInput) contracts.SuddenMoveType {
	if in.Health != nil && !in.Health.Healthy {
		return contracts.SuddenMoveTypeC
	}

	fast := in.TapeVelocityPct > c.cfg.TickVelocityThresholdPct
	if in.HasCalendarEvent && fast {
		return contracts.SuddenMoveTypeA
	}
	if fast && in.SpreadBaseline > 0 && in.SpreadCurrent > c.cfg.SpreadQuarantineTicks*in.SpreadBaseline {
		return contracts.SuddenMoveTypeB
	}
	return contracts.SuddenMoveNone
}

// Response is the protocol reaction to a sudden move
type Response struct {
	Action          string        `json:"action"`
	Cooldown        time.Duration `json:"cooldown"`
	SizeMultiplier  float64       `json:"size_multiplier"`
	MinBufferWindow time.Duration `json:"min_buffer_window,omitempty"`
	Description     string        `json:"description"`
}

// ResponseFor returns the response table entry for a move type
func ResponseFor(t contracts.SuddenMoveType) Response {
	switch t {
	case contracts.SuddenMoveTypeA:
		return Response{
			Action:         "cooldown",
			Cooldown:       180 * time.Second,
			SizeMultiplier: 1.0,
			Description:    "Scheduled event, 3-min cooldown after event",
		}
	case contracts.SuddenMoveTypeB:
		return Response{
			Action:          "reduce_size",
			Cooldown:        300 * time.Second,
			SizeMultiplier:  0.5,
			MinBufferWindow: 30 * time.Second,
			Description:     "Organic cascade, 50% size with 5-min cooldown",
		}
	case contracts.SuddenMoveTypeC:
		return Response{
			Action:         "full_shutdown",
			Cooldown:       60 * time.Second,
			SizeMultiplier: 0,
			Description:    "Infrastructure degradation, full shutdown",
		}
	default:
		return Response{
			Action:         "none",
			SizeMultiplier: 1.0,
			Description:    "Normal conditions",
		}
	}
}
