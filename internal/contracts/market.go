package contracts

import "time"

// Tick represents one trade print
// ⭐ SSOT: Feed → RingBuffer → OrderFlow 체결 데이터 전달
type Tick struct {
	TimestampNs int64   `json:"ts"`
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	Side        int8    `json:"side"`  // 1 = buy, -1 = sell, 0 = unknown
	Flags       uint8   `json:"flags"` // 피드별 플래그 (해석하지 않음)
}

// Tick sides
const (
	SideBuy     int8 = 1
	SideSell    int8 = -1
	SideUnknown int8 = 0
)

// Time returns the tick timestamp as time.Time (UTC)
func (t Tick) Time() time.Time {
	return time.Unix(0, t.TimestampNs).UTC()
}

// Bar represents a 1-minute OHLCV bar
type Bar struct {
	TimestampNs int64   `json:"ts"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// Time returns the bar timestamp as time.Time (UTC)
func (b Bar) Time() time.Time {
	return time.Unix(0, b.TimestampNs).UTC()
}

// Range returns high - low
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// HealthReport is an infrastructure health snapshot
type HealthReport struct {
	FeedLatencyMs   float64 `json:"feed_latency_ms"`
	BrokerLatencyMs float64 `json:"broker_latency_ms"`
	HeartbeatAgeMs  float64 `json:"heartbeat_age_ms"`
	Healthy         bool    `json:"healthy"`
}
