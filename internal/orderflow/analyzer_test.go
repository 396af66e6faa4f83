package orderflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
)

func ms(v float64) int64 { return int64(v * float64(time.Second)) }

func tk(atSec, price, size float64, side int8) contracts.Tick {
	return contracts.Tick{TimestampNs: ms(atSec), Price: price, Size: size, Side: side}
}

func newAnalyzer(ticks ...contracts.Tick) *Analyzer {
	rb := ringbuffer.New(1024)
	rb.PushBatch(ticks)
	return NewAnalyzer(rb, DefaultConfig())
}

func TestCVDSign(t *testing.T) {
	tests := []struct {
		name  string
		ticks []contracts.Tick
		check func(t *testing.T, v float64)
	}{
		{
			name:  "all buys positive",
			ticks: []contracts.Tick{tk(0, 5000, 2, 1), tk(1, 5000, 3, 1)},
			check: func(t *testing.T, v float64) { assert.Greater(t, v, 0.0) },
		},
		{
			name:  "all sells negative",
			ticks: []contracts.Tick{tk(0, 5000, 2, -1), tk(1, 5000, 3, -1)},
			check: func(t *testing.T, v float64) { assert.Less(t, v, 0.0) },
		},
		{
			name:  "empty zero",
			check: func(t *testing.T, v float64) { assert.Equal(t, 0.0, v) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newAnalyzer(tt.ticks...).CVD(30*time.Second))
		})
	}
}

// absorptionTicks spans `span` seconds with 6 evenly spaced prints
func absorptionTicks(span, size, priceStep float64) []contracts.Tick {
	out := make([]contracts.Tick, 0, 6)
	for i := 0; i < 6; i++ {
		out = append(out, tk(float64(i)*span/5, 5000+float64(i%2)*priceStep, size, 1))
	}
	return out
}

func TestDetectAbsorptionRequiresAllThree(t *testing.T) {
	tests := []struct {
		name  string
		ticks []contracts.Tick
		want  bool
	}{
		{"all conditions hold", absorptionTicks(5, 2, 0.25), true},
		{"volume fails", absorptionTicks(5, 1, 0.25), false},
		{"duration fails", absorptionTicks(2, 2, 0.25), false},
		{"displacement fails", absorptionTicks(5, 2, 1.0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyzer(tt.ticks...)
			a.SetATR(1.0)
			a.SetSessionAverages(1.0, 1.0) // expected 5 contracts over 5s, threshold 10
			assert.Equal(t, tt.want, a.DetectAbsorption(5*time.Second))
		})
	}
}

func TestDetectAbsorptionWithoutSessionAverage(t *testing.T) {
	a := newAnalyzer(absorptionTicks(5, 2, 0.25)...)
	assert.False(t, a.DetectAbsorption(5*time.Second))
}

func divergenceTicks(firstPrice float64, firstSide int8, secondPrice float64, secondSide int8) []contracts.Tick {
	out := make([]contracts.Tick, 0, 20)
	for i := 0; i < 10; i++ {
		out = append(out, tk(float64(i), firstPrice, 5, firstSide))
	}
	for i := 10; i < 20; i++ {
		out = append(out, tk(float64(i), secondPrice, 5, secondSide))
	}
	return out
}

func TestDetectDivergence(t *testing.T) {
	// price up while buyers turn into sellers
	a := newAnalyzer(divergenceTicks(5000, 1, 5002, -1)...)
	assert.True(t, a.DetectDivergence(30*time.Second, 1))
	assert.False(t, a.DetectDivergence(30*time.Second, -1))

	// price down while sellers turn into buyers
	b := newAnalyzer(divergenceTicks(5002, -1, 5000, 1)...)
	assert.True(t, b.DetectDivergence(30*time.Second, -1))
	assert.False(t, b.DetectDivergence(30*time.Second, 1))

	// not enough ticks
	c := newAnalyzer(divergenceTicks(5000, 1, 5002, -1)[:9]...)
	assert.False(t, c.DetectDivergence(30*time.Second, 1))
}

func TestDetectStackedImbalance(t *testing.T) {
	levels := []float64{5000, 5000.25, 5000.5, 5000.75, 5001}

	build := func(buySize, sellSize float64) []contracts.Tick {
		out := make([]contracts.Tick, 0, 10)
		for i, p := range levels {
			out = append(out, tk(float64(i), p, buySize, 1), tk(float64(i)+0.5, p, sellSize, -1))
		}
		return out
	}

	assert.True(t, newAnalyzer(build(8, 1)...).DetectStackedImbalance(30*time.Second))
	assert.False(t, newAnalyzer(build(1, 1)...).DetectStackedImbalance(30*time.Second))
}

func TestWhaleBlocks(t *testing.T) {
	ticks := []contracts.Tick{
		tk(0, 5000, 10, 1),
		tk(1, 5001, 10, 1),
		tk(2, 5002, 10, -1),
		tk(3, 5002, 1, 1),
		tk(20, 5003, 10, -1),
		tk(21, 5003, 10, -1),
		tk(25, 5003, 1, 1),
	}
	a := newAnalyzer(ticks...)
	a.SetSessionAverages(1, 1)

	clusters := a.WhaleBlocks(30 * time.Second)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Count)
	assert.Equal(t, 30.0, clusters[0].TotalVolume)
	assert.InDelta(t, 5001.0, clusters[0].AvgPrice, 1e-9)
	assert.Equal(t, 1, clusters[0].NetDirection)
}

func TestWhaleBlocksEmpty(t *testing.T) {
	assert.Empty(t, newAnalyzer().WhaleBlocks(30*time.Second))
}

func TestSellAndAdverseDelta(t *testing.T) {
	a := newAnalyzer(tk(0, 1, 1, -1), tk(1, 1, 1, -1), tk(2, 1, 1, -1), tk(3, 1, 1, 1))

	assert.Equal(t, 0.5, a.SellDeltaPct(30*time.Second, 100), "thin data is neutral")
	assert.InDelta(t, 0.75, a.SellDeltaPct(30*time.Second, 1), 1e-9)
	assert.InDelta(t, 0.75, a.AdverseDeltaPct(contracts.Long, 30*time.Second, 1), 1e-9)
	assert.InDelta(t, 0.25, a.AdverseDeltaPct(contracts.Short, 30*time.Second, 1), 1e-9)
}

func TestEvaluateDirectional(t *testing.T) {
	// bullish divergence: price falls while CVD rises
	a := newAnalyzer(divergenceTicks(5002, -1, 5000, 1)...)

	score, details := a.EvaluateDirectional(contracts.Long)
	assert.Equal(t, 1, score)
	assert.True(t, details.HasDivergence)
	assert.True(t, details.Directional)

	score, _ = a.EvaluateDirectional(contracts.Short)
	assert.Equal(t, 0, score)
}

func TestEvaluateEmptyIsNeutral(t *testing.T) {
	score, details := newAnalyzer().Evaluate()
	assert.Equal(t, 0, score)
	assert.Equal(t, Details{}, details)
}

func TestSetATRFloor(t *testing.T) {
	a := newAnalyzer()
	a.SetATR(0)
	assert.Equal(t, 0.01, a.ATR())
}
