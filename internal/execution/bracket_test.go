package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/internal/contracts"
)

func signal(dir contracts.Direction, entry, stop, risk float64) contracts.TradeSignal {
	return contracts.TradeSignal{
		Direction:       dir,
		EntryPrice:      entry,
		StopPrice:       stop,
		Grade:           contracts.GradeAPlus,
		PositionSizePct: risk,
		OrderType:       contracts.OrderTypeAggressiveLimit,
	}
}

func TestPositionSize(t *testing.T) {
	b := NewBracketBuilder(DefaultBracketConfig(), nil)

	tests := []struct {
		name        string
		equity      float64
		risk        float64
		entry, stop float64
		want        int
	}{
		{"a plus", 100_000, 0.02, 5000, 4990, 4},
		{"shadow", 100_000, 0.005, 5000, 4990, 1},
		{"floors", 100_000, 0.02, 5000, 4985, 2},
		{"too small", 1_000, 0.01, 5000, 4990, 0},
		{"zero distance", 100_000, 0.02, 5000, 5000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.PositionSize(tt.equity, tt.risk, tt.entry, tt.stop))
		})
	}
}

func TestBracketLegs(t *testing.T) {
	b := NewBracketBuilder(DefaultBracketConfig(), nil)
	br := b.Bracket(signal(contracts.Long, 5000, 4990, 0.02), 4, 2)

	assert.Equal(t, contracts.OrderTypeMWP, br.Entry.OrderType, "raw entry types are forced to MWP")
	assert.Equal(t, contracts.Long, br.Entry.Direction)
	assert.Equal(t, "ENTRY_A+", br.Entry.Label)
	assert.Equal(t, 3, br.Entry.ProtectionTicks)

	assert.Equal(t, contracts.OrderTypeStopWithProtection, br.StopLoss.OrderType)
	assert.Equal(t, contracts.Short, br.StopLoss.Direction)
	assert.Equal(t, 4990.0, br.StopLoss.Price)

	assert.Equal(t, contracts.OrderTypeLimit, br.TakeProfit.OrderType)
	assert.Equal(t, 5020.0, br.TakeProfit.Price)
	assert.Equal(t, 4, br.TakeProfit.Size)
}

func TestBracketShortTakeProfitRounded(t *testing.T) {
	b := NewBracketBuilder(DefaultBracketConfig(), nil)
	br := b.Bracket(signal(contracts.Short, 5000, 5003.3, 0.01), 1, 2)
	assert.Equal(t, 4993.5, br.TakeProfit.Price, "5000 - 6.6 rounds to the tick grid")
	assert.Equal(t, contracts.Long, br.TakeProfit.Direction)
}

func TestBracketKeepsRequestedTypeWhenNotForced(t *testing.T) {
	cfg := DefaultBracketConfig()
	cfg.DefaultOrderType = contracts.OrderTypeLimit
	b := NewBracketBuilder(cfg, nil)

	br := b.Bracket(signal(contracts.Long, 5000, 4990, 0.02), 1, 2)
	assert.Equal(t, contracts.OrderTypeAggressiveLimit, br.Entry.OrderType)
}

func TestBuildDropsZeroSize(t *testing.T) {
	b := NewBracketBuilder(DefaultBracketConfig(), nil)

	_, ok := b.Build(signal(contracts.Long, 5000, 4990, 0.01), 1_000)
	assert.False(t, ok)

	br, ok := b.Build(signal(contracts.Long, 5000, 4990, 0.02), 100_000)
	require.True(t, ok)
	assert.Equal(t, 4, br.Entry.Size)
}

func TestRoundToTick(t *testing.T) {
	assert.Equal(t, 5000.25, roundToTick(5000.2, 0.25))
	assert.Equal(t, 5000.5, roundToTick(5000.375, 0.25), "half rounds away from zero")
	assert.Equal(t, 1.2345, roundToTick(1.2345, 0))
}

func TestEquityTracker(t *testing.T) {
	e := NewEquityTracker(0)
	assert.Equal(t, DefaultStartingEquity, e.Equity())

	e.Apply(1000, 1)
	e.Apply(-3000, 2)

	s := e.Snapshot()
	assert.Equal(t, 98_000.0, s.Equity)
	assert.Equal(t, 101_000.0, s.Peak)
	assert.Equal(t, 3000.0, s.MaxDrawdown)
	assert.InDelta(t, 3000.0/101_000.0, s.MaxDrawdownPct, 1e-12)
	assert.InDelta(t, -0.02, s.DailyPnLPct, 1e-12)
	assert.Len(t, e.Curve(), 2)

	e.StartSession()
	assert.Zero(t, e.DailyPnLPct())
	assert.InDelta(t, -3000.0/101_000.0, e.Drawdown(), 1e-12)
}

func TestSimBroker(t *testing.T) {
	ctx := context.Background()
	b := NewSimBroker(0.25, 1, nil)
	br := NewBracketBuilder(DefaultBracketConfig(), nil).Bracket(signal(contracts.Long, 5000, 4990, 0.02), 2, 2)

	fill, err := b.Submit(ctx, "p1", br)
	require.NoError(t, err)
	assert.Equal(t, 5000.25, fill.Price, "one tick adverse slippage")
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, 1, b.Working())

	exit, err := b.ClosePosition(ctx, "p1", 2, 5010)
	require.NoError(t, err)
	assert.Equal(t, contracts.Short, exit.Direction)
	assert.Equal(t, 5009.75, exit.Price)
	assert.Equal(t, 0, b.Working())

	_, err = b.ClosePosition(ctx, "p1", 2, 5010)
	assert.ErrorIs(t, err, ErrUnknownPosition)

	_, err = b.Submit(ctx, "p2", br)
	require.NoError(t, err)
	require.NoError(t, b.CancelAll(ctx))
	assert.Equal(t, 0, b.Working())
	assert.Len(t, b.Fills(), 3)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.Submit(cancelled, "p3", br)
	assert.Error(t, err)
}
