package predator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// =============================================================================
// Config
// =============================================================================

// Killzone is a time-of-day window ("HH:MM", session timezone, both ends inclusive)
type Killzone struct {
	Name  string `yaml:"name" json:"name"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config 프레데터 상태머신 파라미터
type Config struct {
	ProximityHaloATRMult    float64       `yaml:"proximity_halo_atr_mult" json:"proximity_halo_atr_mult"`
	TapeVelocityStalkingPct float64       `yaml:"tape_velocity_stalking_pct" json:"tape_velocity_stalking_pct"`
	KillModeBufferMin       time.Duration `yaml:"kill_mode_ring_buffer_min" json:"kill_mode_ring_buffer_min"`
	POITapATRMult           float64       `yaml:"poi_tap_atr_mult" json:"poi_tap_atr_mult"`
	Killzones               []Killzone    `yaml:"killzones" json:"killzones"`
}

// DefaultConfig returns NY session defaults
func DefaultConfig() Config {
	return Config{
		ProximityHaloATRMult:    1.5,
		TapeVelocityStalkingPct: 300,
		KillModeBufferMin:       30 * time.Second,
		POITapATRMult:           0.5,
		Killzones: []Killzone{
			{Name: "ny_am", Start: "09:30", End: "11:00"},
			{Name: "ny_pm", Start: "13:30", End: "15:00"},
		},
	}
}

// =============================================================================
// Machine
// =============================================================================

// Input is everything one evaluation needs. Now must already be in session time.
type Input struct {
	Now             time.Time
	Price           float64
	ATR             float64
	POIPrice        *float64
	HasCHOCH        bool
	BufferReady     bool
	TapeVelocityPct float64
	SuddenMove      contracts.SuddenMoveType
	TradeAttempted  bool // 이번 바에서 체결 또는 거절된 진입 시도
}

// Transition is emitted on every state change
type Transition struct {
	From contracts.PredatorState `json:"from"`
	To   contracts.PredatorState `json:"to"`
	At   time.Time               `json:"at"`
}

const transitionBuffer = 64

type window struct {
	start, end int // seconds of day
}

// Machine is the DORMANT → SCOUTING → STALKING → KILL readiness gate.
// 동기화 없음: 결정 루프에서만 호출
type Machine struct {
	cfg   Config
	zones []window
	log   *logger.Logger

	state       contracts.PredatorState
	transitions chan Transition
	dropped     int
	lastNow     time.Time
}

// New creates a machine in DORMANT. Malformed killzones are an error.
func New(cfg Config, log *logger.Logger) (*Machine, error) {
	if log == nil {
		log = logger.NewNop()
	}
	zones, err := parseKillzones(cfg.Killzones)
	if err != nil {
		return nil, err
	}
	if cfg.POITapATRMult <= 0 {
		cfg.POITapATRMult = 0.5
	}
	return &Machine{
		cfg:         cfg,
		zones:       zones,
		log:         log,
		state:       contracts.StateDormant,
		transitions: make(chan Transition, transitionBuffer),
	}, nil
}

// State returns the current state
func (m *Machine) State() contracts.PredatorState {
	return m.state
}

// Transitions streams state changes. Sends never block; a full channel drops.
func (m *Machine) Transitions() <-chan Transition {
	return m.transitions
}

// Dropped returns the number of transitions lost to a full channel
func (m *Machine) Dropped() int {
	return m.dropped
}

// Evaluate applies one update and returns the resulting state.
//
// 우선순위:
//  1. Type C (인프라 저하) → DORMANT
//  2. 킬존 종료 → DORMANT
//  3. 상태별 전이
func (m *Machine) Evaluate(in Input) contracts.PredatorState {
	m.lastNow = in.Now

	if in.SuddenMove == contracts.SuddenMoveTypeC {
		m.TransitionTo(contracts.StateDormant)
		return m.state
	}

	inZone := m.InKillzone(in.Now)
	if !inZone && m.state != contracts.StateDormant {
		m.TransitionTo(contracts.StateDormant)
		return m.state
	}

	switch m.state {
	case contracts.StateDormant:
		if inZone {
			m.TransitionTo(contracts.StateScouting)
		}

	case contracts.StateScouting:
		if in.POIPrice != nil && math.Abs(in.Price-*in.POIPrice) <= m.cfg.ProximityHaloATRMult*in.ATR {
			m.TransitionTo(contracts.StateStalking)
			return m.state
		}
		if in.TapeVelocityPct >= m.cfg.TapeVelocityStalkingPct {
			m.TransitionTo(contracts.StateStalking)
		}

	case contracts.StateStalking:
		if in.POIPrice != nil && in.HasCHOCH && in.BufferReady {
			if math.Abs(in.Price-*in.POIPrice) <= m.cfg.POITapATRMult*in.ATR {
				m.TransitionTo(contracts.StateKill)
			}
		}

	case contracts.StateKill:
		if in.TradeAttempted {
			m.TransitionTo(contracts.StateDormant)
		}
	}

	return m.state
}

// InKillzone reports whether t's time of day is inside any killzone.
// No killzones configured means always active.
func (m *Machine) InKillzone(t time.Time) bool {
	if len(m.zones) == 0 {
		return true
	}
	// 초 미만도 비교 (11:00:00.5는 11:00 종료 이후)
	tod := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	for _, z := range m.zones {
		if tod >= time.Duration(z.start)*time.Second && tod <= time.Duration(z.end)*time.Second {
			return true
		}
	}
	return false
}

// ForceDormant unconditionally returns to DORMANT
func (m *Machine) ForceDormant() {
	m.TransitionTo(contracts.StateDormant)
}

// TransitionTo moves to s and emits a Transition. No-op when already in s.
func (m *Machine) TransitionTo(s contracts.PredatorState) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s

	m.log.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   s.String(),
	}).Info("Predator state transition")

	at := m.lastNow
	if at.IsZero() {
		at = time.Now()
	}
	select {
	case m.transitions <- Transition{From: from, To: s, At: at}:
	default:
		m.dropped++
		m.log.WithField("dropped", m.dropped).Warn("Transition channel full, dropping")
	}
}

// =============================================================================
// helpers
// =============================================================================

func parseKillzones(zones []Killzone) ([]window, error) {
	out := make([]window, 0, len(zones))
	for i, z := range zones {
		start, err := ParseClock(z.Start)
		if err != nil {
			return nil, fmt.Errorf("killzone[%d] start: %w", i, err)
		}
		end, err := ParseClock(z.End)
		if err != nil {
			return nil, fmt.Errorf("killzone[%d] end: %w", i, err)
		}
		if end < start {
			return nil, fmt.Errorf("killzone[%d]: end %s before start %s", i, z.End, z.Start)
		}
		out = append(out, window{start: start, end: end})
	}
	return out, nil
}

// ParseClock parses "HH:MM" into seconds of day
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*3600 + m*60, nil
}
