package contracts

// POIType is the structural origin of a point of interest
type POIType string

const (
	POIOrderBlock     POIType = "ORDER_BLOCK"
	POIFVG            POIType = "FVG"
	POILiquidityPool  POIType = "LIQUIDITY_POOL"
	POISyntheticMA    POIType = "SYNTHETIC_MA"
	POIRejectionBlock POIType = "REJECTION_BLOCK"
	POIBreakerBlock   POIType = "BREAKER_BLOCK"
	POIGapFVG         POIType = "GAP_FVG"
)

// POI is a structural price zone where a reaction is expected.
// 값 타입: 변경은 With* 메서드로 새 값을 만들어서만 수행
type POI struct {
	Type          POIType   `json:"type"`
	Price         float64   `json:"price"`
	ZoneHigh      float64   `json:"zone_high"`
	ZoneLow       float64   `json:"zone_low"`
	Timeframe     string    `json:"timeframe"`
	Direction     Direction `json:"direction"`
	IsExtreme     bool      `json:"is_extreme"`
	IsDecisional  bool      `json:"is_decisional"`
	IsFlipZone    bool      `json:"is_flip_zone"`
	IsSweepZone   bool      `json:"is_sweep_zone"`
	IsUnicorn     bool      `json:"is_unicorn"`
	HasInducement bool      `json:"has_inducement"`
	IsFresh       bool      `json:"is_fresh"`
}

// NewPOI creates a fresh POI
func NewPOI(typ POIType, dir Direction, price, zoneLow, zoneHigh float64, timeframe string) POI {
	return POI{
		Type:      typ,
		Price:     price,
		ZoneHigh:  zoneHigh,
		ZoneLow:   zoneLow,
		Timeframe: timeframe,
		Direction: dir,
		IsFresh:   true,
	}
}

// WithFresh returns a copy with freshness set
func (p POI) WithFresh(fresh bool) POI {
	p.IsFresh = fresh
	return p
}

// WithFlipZone returns a copy with the flip-zone flag set
func (p POI) WithFlipZone(flip bool) POI {
	p.IsFlipZone = flip
	return p
}

// WithInducement returns a copy with the inducement flag set
func (p POI) WithInducement(ind bool) POI {
	p.HasInducement = ind
	return p
}

// WithSweepZone returns a copy with the sweep-zone flag set
func (p POI) WithSweepZone(sweep bool) POI {
	p.IsSweepZone = sweep
	return p
}

// Contains reports whether price is inside the zone (inclusive)
func (p POI) Contains(price float64) bool {
	return price >= p.ZoneLow && price <= p.ZoneHigh
}
