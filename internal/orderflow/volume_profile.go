package orderflow

import (
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
)

// ProfileConfig 마이크로 볼륨 프로파일 파라미터
type ProfileConfig struct {
	BucketCount     int           `yaml:"bucket_count" json:"bucket_count"`
	Window          time.Duration `yaml:"window" json:"window"`
	HVNMultiplier   float64       `yaml:"hvn_multiplier" json:"hvn_multiplier"`
	LVNMultiplier   float64       `yaml:"lvn_multiplier" json:"lvn_multiplier"`
	LVNBufferATR    float64       `yaml:"lvn_atr_buffer" json:"lvn_atr_buffer"`
	ATRFallbackMult float64       `yaml:"atr_fallback_mult" json:"atr_fallback_mult"`
	MinStopATRMult  float64       `yaml:"min_stop_atr_mult" json:"min_stop_atr_mult"`
	MinStopPoints   float64       `yaml:"min_stop_absolute_pts" json:"min_stop_absolute_pts"`
}

// DefaultProfileConfig returns the defaults
func DefaultProfileConfig() ProfileConfig {
	return ProfileConfig{
		BucketCount:     50,
		Window:          60 * time.Second,
		HVNMultiplier:   1.5,
		LVNMultiplier:   0.5,
		LVNBufferATR:    0.5,
		ATRFallbackMult: 2.0,
		MinStopATRMult:  1.5,
		MinStopPoints:   0,
	}
}

// Bucket is one price level of the histogram
type Bucket struct {
	Price  float64 `json:"price"` // bucket centre
	Volume float64 `json:"volume"`
}

// Profile is a volume-by-price histogram
type Profile struct {
	Buckets    []Bucket `json:"buckets"`
	PriceMin   float64  `json:"price_min"`
	PriceMax   float64  `json:"price_max"`
	BucketSize float64  `json:"bucket_size"`
}

// VolumeProfile builds micro profiles from the ring buffer for stop placement
// and entry refinement
type VolumeProfile struct {
	rb  *ringbuffer.RingBuffer
	cfg ProfileConfig
}

// NewVolumeProfile creates a profile engine reading rb
func NewVolumeProfile(rb *ringbuffer.RingBuffer, cfg ProfileConfig) *VolumeProfile {
	if cfg.BucketCount <= 0 {
		cfg.BucketCount = 50
	}
	return &VolumeProfile{rb: rb, cfg: cfg}
}

// Build buckets the window by price. A zero price range yields one bucket.
func (v *VolumeProfile) Build(window time.Duration) Profile {
	data := v.rb.Window(window)
	if len(data) == 0 {
		return Profile{}
	}

	lo, hi := priceRange(data)
	if hi == lo {
		var total float64
		for _, t := range data {
			total += t.Size
		}
		return Profile{
			Buckets:  []Bucket{{Price: lo, Volume: total}},
			PriceMin: lo,
			PriceMax: hi,
		}
	}

	n := v.cfg.BucketCount
	size := (hi - lo) / float64(n)
	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Price = lo + (float64(i)+0.5)*size
	}
	for _, t := range data {
		idx := int((t.Price - lo) / size)
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Volume += t.Size
	}

	return Profile{Buckets: buckets, PriceMin: lo, PriceMax: hi, BucketSize: size}
}

// Nodes classifies buckets into high-volume (> HVN mult × avg) and
// low-volume (< LVN mult × avg, non-empty) price levels
func (v *VolumeProfile) Nodes(p Profile) (hvn, lvn []float64) {
	if len(p.Buckets) == 0 {
		return nil, nil
	}
	var sum float64
	for _, b := range p.Buckets {
		sum += b.Volume
	}
	avg := sum / float64(len(p.Buckets))
	if avg == 0 {
		return nil, nil
	}

	for _, b := range p.Buckets {
		switch {
		case b.Volume > v.cfg.HVNMultiplier*avg:
			hvn = append(hvn, b.Price)
		case b.Volume < v.cfg.LVNMultiplier*avg && b.Volume > 0:
			lvn = append(lvn, b.Price)
		}
	}
	return hvn, lvn
}

// StopPrice places a stop beyond the nearest LVN on the losing side of entry
// with an ATR buffer, falling back to a fixed ATR multiple. The result is
// never closer to entry than max(MinStopATRMult×ATR, MinStopPoints).
func (v *VolumeProfile) StopPrice(entry float64, dir contracts.Direction, atr float64, useVP bool) float64 {
	sign := dir.Sign()
	stop := entry - sign*v.cfg.ATRFallbackMult*atr

	if useVP {
		_, lvn := v.Nodes(v.Build(v.cfg.Window))
		if dir == contracts.Long {
			nearest, found := math.Inf(-1), false
			for _, p := range lvn {
				if p < entry && p > nearest {
					nearest, found = p, true
				}
			}
			if found {
				stop = nearest - v.cfg.LVNBufferATR*atr
			}
		} else {
			nearest, found := math.Inf(1), false
			for _, p := range lvn {
				if p > entry && p < nearest {
					nearest, found = p, true
				}
			}
			if found {
				stop = nearest + v.cfg.LVNBufferATR*atr
			}
		}
	}

	minDist := math.Max(v.cfg.MinStopATRMult*atr, v.cfg.MinStopPoints)
	if math.Abs(stop-entry) < minDist {
		stop = entry - sign*minDist
	}
	return stop
}

// RefineEntry returns the highest-volume bucket inside the POI zone,
// or the POI price when no bucket falls inside
func (v *VolumeProfile) RefineEntry(poi contracts.POI) float64 {
	p := v.Build(v.cfg.Window)
	best, bestVol, found := poi.Price, math.Inf(-1), false
	for _, b := range p.Buckets {
		if !poi.Contains(b.Price) {
			continue
		}
		if b.Volume > bestVol {
			best, bestVol, found = b.Price, b.Volume, true
		}
	}
	if !found {
		return poi.Price
	}
	return best
}
