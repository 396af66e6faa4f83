package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, 1.0, Long.Sign())
	assert.Equal(t, -1.0, Short.Sign())
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, "LONG", Long.String())
	assert.Equal(t, "SHORT", Short.String())
}

func TestPredatorStateString(t *testing.T) {
	tests := []struct {
		state PredatorState
		want  string
	}{
		{StateDormant, "DORMANT"},
		{StateScouting, "SCOUTING"},
		{StateStalking, "STALKING"},
		{StateKill, "KILL"},
		{PredatorState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestPredatorStateJSON(t *testing.T) {
	data, err := json.Marshal(map[string]PredatorState{"state": StateStalking})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"STALKING"}`, string(data))

	var out map[string]PredatorState
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, StateStalking, out["state"])

	var bad PredatorState
	assert.Error(t, bad.UnmarshalText([]byte("HUNTING")))
}

func TestTradePhaseJSON(t *testing.T) {
	data, err := json.Marshal([]TradePhase{Phase1Initial, Phase2Runner})
	require.NoError(t, err)
	assert.JSONEq(t, `["PHASE1_INITIAL","PHASE2_RUNNER"]`, string(data))

	var out []TradePhase
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, []TradePhase{Phase1Initial, Phase2Runner}, out)

	var bad TradePhase
	assert.Error(t, bad.UnmarshalText([]byte("PHASE3")))
}

func TestPOIWithMethodsDoNotMutate(t *testing.T) {
	poi := NewPOI(POIOrderBlock, Long, 5000, 4995, 5005, "1H")
	stale := poi.WithFresh(false).WithFlipZone(true)

	assert.True(t, poi.IsFresh)
	assert.False(t, poi.IsFlipZone)
	assert.False(t, stale.IsFresh)
	assert.True(t, stale.IsFlipZone)
	assert.True(t, poi.Contains(5000))
	assert.False(t, poi.Contains(5006))
}

func TestScoringContextCopyOnChange(t *testing.T) {
	poi := NewPOI(POIFVG, Short, 5100, 5095, 5105, "4H").WithInducement(true)
	base := NewScoringContext(poi).WithPrices(5100, 5110, 5080)

	retargeted := base.WithTarget(5070)

	assert.Equal(t, 5080.0, base.TargetPrice)
	assert.Equal(t, 5070.0, retargeted.TargetPrice)
	assert.Equal(t, base.StopPrice, retargeted.StopPrice)
	assert.True(t, base.Gates.HasInducement)
	assert.True(t, base.Tier1.IsFreshPOI)
	assert.Equal(t, OrderTypeMWP, base.OrderType)
}

func TestTradeSignalRiskPoints(t *testing.T) {
	sig := TradeSignal{EntryPrice: 5000, StopPrice: 5012.5}
	assert.Equal(t, 12.5, sig.RiskPoints())
}

func TestEnumJSON(t *testing.T) {
	payload := struct {
		State     PredatorState `json:"state"`
		Phase     TradePhase    `json:"phase"`
		Direction Direction     `json:"direction"`
	}{StateKill, Phase2Runner, Short}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"KILL","phase":"PHASE2_RUNNER","direction":"SHORT"}`, string(data))
}

func TestSafetyCriticalEvents(t *testing.T) {
	for _, et := range AllEventTypes {
		assert.Equal(t, et == EventRiskLimitBreached, et.IsSafetyCritical(), string(et))
	}
}

func TestDirectionUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{`"LONG"`, Long, false},
		{`"short"`, Short, false},
		{`1`, Long, false},
		{`-1`, Short, false},
		{`0`, 0, false},
		{`"SIDEWAYS"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Direction
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}

	var poi POI
	require.NoError(t, json.Unmarshal([]byte(`{"type":"FVG","price":10,"direction":"SHORT"}`), &poi))
	assert.Equal(t, Short, poi.Direction)
}
