package orderflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
)

func newProfile(cfg ProfileConfig, ticks ...contracts.Tick) *VolumeProfile {
	rb := ringbuffer.New(1024)
	rb.PushBatch(ticks)
	return NewVolumeProfile(rb, cfg)
}

// lvnTicks: heavy edges at 4990/5010, thin prints near 4995 and 5005
func lvnTicks() []contracts.Tick {
	return []contracts.Tick{
		tk(0, 4990, 100, 1),
		tk(1, 4995.1, 1, -1),
		tk(2, 5005.1, 1, 1),
		tk(3, 5010, 100, -1),
	}
}

func TestBuildZeroRangeSingleBucket(t *testing.T) {
	vp := newProfile(DefaultProfileConfig(), tk(0, 5000, 3, 1), tk(1, 5000, 4, -1))

	p := vp.Build(DefaultProfileConfig().Window)
	require.Len(t, p.Buckets, 1)
	assert.Equal(t, 5000.0, p.Buckets[0].Price)
	assert.Equal(t, 7.0, p.Buckets[0].Volume)
}

func TestBuildEmpty(t *testing.T) {
	vp := newProfile(DefaultProfileConfig())
	assert.Empty(t, vp.Build(DefaultProfileConfig().Window).Buckets)
}

func TestBuildBuckets(t *testing.T) {
	vp := newProfile(DefaultProfileConfig(), lvnTicks()...)

	p := vp.Build(DefaultProfileConfig().Window)
	require.Len(t, p.Buckets, 50)
	assert.InDelta(t, 0.4, p.BucketSize, 1e-9)

	var total float64
	for _, b := range p.Buckets {
		total += b.Volume
	}
	assert.Equal(t, 202.0, total)
	assert.Equal(t, 100.0, p.Buckets[0].Volume)
	assert.Equal(t, 100.0, p.Buckets[49].Volume, "max price lands in the last bucket")
}

func TestNodes(t *testing.T) {
	vp := newProfile(DefaultProfileConfig(), lvnTicks()...)

	hvn, lvn := vp.Nodes(vp.Build(DefaultProfileConfig().Window))
	require.Len(t, hvn, 2)
	require.Len(t, lvn, 2)
	assert.InDelta(t, 4990.2, hvn[0], 1e-6)
	assert.InDelta(t, 5009.8, hvn[1], 1e-6)
	assert.InDelta(t, 4995.0, lvn[0], 1e-6)
	assert.InDelta(t, 5005.0, lvn[1], 1e-6)
}

func TestStopPrice(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(*ProfileConfig)
		ticks []contracts.Tick
		dir   contracts.Direction
		atr   float64
		useVP bool
		want  float64
	}{
		{
			name: "long fallback without data",
			dir:  contracts.Long, atr: 4, useVP: true,
			want: 4992,
		},
		{
			name: "short fallback without data",
			dir:  contracts.Short, atr: 4, useVP: true,
			want: 5008,
		},
		{
			name:  "long beyond nearest LVN",
			ticks: lvnTicks(),
			dir:   contracts.Long, atr: 2, useVP: true,
			want: 4994,
		},
		{
			name:  "short beyond nearest LVN",
			ticks: lvnTicks(),
			dir:   contracts.Short, atr: 2, useVP: true,
			want: 5006,
		},
		{
			name:  "profile ignored when disabled",
			ticks: lvnTicks(),
			dir:   contracts.Long, atr: 2, useVP: false,
			want: 4996,
		},
		{
			name: "absolute floor widens stop",
			cfg:  func(c *ProfileConfig) { c.MinStopPoints = 10 },
			dir:  contracts.Long, atr: 2, useVP: true,
			want: 4990,
		},
		{
			name: "atr floor widens stop",
			cfg:  func(c *ProfileConfig) { c.ATRFallbackMult = 0.5 },
			dir:  contracts.Short, atr: 2, useVP: false,
			want: 5003,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultProfileConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			vp := newProfile(cfg, tt.ticks...)
			assert.InDelta(t, tt.want, vp.StopPrice(5000, tt.dir, tt.atr, tt.useVP), 1e-6)
		})
	}
}

func TestRefineEntry(t *testing.T) {
	vp := newProfile(DefaultProfileConfig(), lvnTicks()...)

	inside := contracts.NewPOI(contracts.POIOrderBlock, contracts.Long, 4994.5, 4994, 4996, "1m")
	assert.InDelta(t, 4995.0, vp.RefineEntry(inside), 1e-6)

	outside := contracts.NewPOI(contracts.POIOrderBlock, contracts.Long, 6000.5, 6000, 6001, "1m")
	assert.Equal(t, 6000.5, vp.RefineEntry(outside))
}
