package contracts

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Enums
// ⭐ SSOT: 엔진 전역 열거형은 여기서만 정의
// =============================================================================

// Direction is the trade direction
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

// Sign returns +1 for long, -1 for short
func (d Direction) Sign() float64 {
	return float64(d)
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	return -d
}

func (d Direction) String() string {
	if d == Long {
		return "LONG"
	}
	return "SHORT"
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts "LONG"/"SHORT" (any case) or 1/-1
func (d *Direction) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToUpper(s) {
	case "LONG", "1":
		*d = Long
		return nil
	case "SHORT", "-1":
		*d = Short
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil && n == 0 {
		*d = 0
		return nil
	}
	return fmt.Errorf("invalid direction %s", data)
}

// Grade is the confluence grade
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C" // NO TRADE
)

// OrderType is the order kind requested for an entry or exit leg
type OrderType string

const (
	OrderTypeMWP                OrderType = "market_with_protection"
	OrderTypeAggressiveLimit    OrderType = "aggressive_limit"
	OrderTypeLimit              OrderType = "limit"
	OrderTypeStopWithProtection OrderType = "stop_with_protection"
)

// PredatorState is the engine-wide readiness phase
type PredatorState int

const (
	StateDormant PredatorState = iota
	StateScouting
	StateStalking
	StateKill
)

func (s PredatorState) String() string {
	switch s {
	case StateDormant:
		return "DORMANT"
	case StateScouting:
		return "SCOUTING"
	case StateStalking:
		return "STALKING"
	case StateKill:
		return "KILL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s PredatorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *PredatorState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "DORMANT":
		*s = StateDormant
	case "SCOUTING":
		*s = StateScouting
	case "STALKING":
		*s = StateStalking
	case "KILL":
		*s = StateKill
	default:
		return fmt.Errorf("unknown predator state %q", string(b))
	}
	return nil
}

// SuddenMoveType classifies abrupt market moves
type SuddenMoveType string

const (
	SuddenMoveNone  SuddenMoveType = "NONE"
	SuddenMoveTypeA SuddenMoveType = "TYPE_A" // 예정된 이벤트 (CPI, FOMC, NFP)
	SuddenMoveTypeB SuddenMoveType = "TYPE_B" // 유기적 캐스케이드 (flash crash, 청산)
	SuddenMoveTypeC SuddenMoveType = "TYPE_C" // 인프라 저하
)

// TradePhase is the stored phase of a managed position
// 클라이맥스는 Phase2에서 평가되는 청산 조건이며 저장되는 phase가 아님
type TradePhase int

const (
	Phase1Initial TradePhase = 1
	Phase2Runner  TradePhase = 2
)

func (p TradePhase) String() string {
	switch p {
	case Phase1Initial:
		return "PHASE1_INITIAL"
	case Phase2Runner:
		return "PHASE2_RUNNER"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p TradePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *TradePhase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PHASE1_INITIAL":
		*p = Phase1Initial
	case "PHASE2_RUNNER":
		*p = Phase2Runner
	default:
		return fmt.Errorf("unknown trade phase %q", string(b))
	}
	return nil
}

// Regime is the higher-timeframe regime classification
type Regime string

const (
	RegimeAligned    Regime = "aligned"
	RegimeConflicted Regime = "conflicted"
	RegimeNeutral    Regime = "neutral"
)

// Premium/discount zone labels
const (
	ZonePremium  = "premium"
	ZoneDiscount = "discount"
	ZoneNeutral  = "neutral"
)
