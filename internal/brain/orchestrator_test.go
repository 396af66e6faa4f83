package brain

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/internal/scoring"
	"github.com/wonny/flof/backend/internal/strategyconfig"
)

// 2026-03-02 (월) 10:00 UTC
var sessionStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const (
	warmupBars = 20
	killBar    = warmupBars + 1 // warmup 이후: +0 Stalking, +1 Kill
)

// recorder collects every published event
type recorder struct {
	mu     sync.Mutex
	events []contracts.Event
}

func (r *recorder) handle(evt contracts.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) of(t contracts.EventType) []contracts.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contracts.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func setToggle(t *testing.T, cfg *strategyconfig.Config, id string, on bool) {
	t.Helper()
	key, ok := strategyconfig.ToggleKey(id)
	require.True(t, ok, id)
	parts := strings.SplitN(key, ".", 3)
	cfg.Toggles[parts[1]][parts[2]] = on
}

// testConfig: always-on killzone, T06 off (CHOCH treated as confirmed), T07 off (no OF points),
// T17 off (stop = entry - 2 ATR)
func testConfig(t *testing.T) strategyconfig.Config {
	t.Helper()
	cfg := strategyconfig.DefaultConfig()
	cfg.System.Timezone = "UTC"
	cfg.System.RingBufferCapacity = 10_000
	cfg.Predator.Killzones = nil
	setToggle(t, &cfg, strategyconfig.ToggleCHOCH, false)
	setToggle(t, &cfg, strategyconfig.ToggleOrderFlow, false)
	setToggle(t, &cfg, strategyconfig.ToggleVPStops, false)
	return cfg
}

type harness struct {
	o      *Orchestrator
	events *recorder
	exits  []int
}

func newHarness(t *testing.T, cfg strategyconfig.Config) *harness {
	t.Helper()
	provider, err := strategyconfig.NewManagerFromConfig(cfg, nil)
	require.NoError(t, err)

	h := &harness{events: &recorder{}}
	o, err := New(provider, Deps{}, nil, risk.WithExit(func(code int) { h.exits = append(h.exits, code) }))
	require.NoError(t, err)
	o.Bus().SubscribeAll(h.events.handle)
	h.o = o
	return h
}

func barAt(i int, o, hi, lo, c float64) contracts.Bar {
	return contracts.Bar{
		TimestampNs: sessionStart.Add(time.Duration(i) * time.Minute).UnixNano(),
		Open:        o,
		High:        hi,
		Low:         lo,
		Close:       c,
		Volume:      100,
	}
}

func flatBar(i int) contracts.Bar {
	return barAt(i, 5000, 5001, 4999, 5000)
}

func longPOI() contracts.POI {
	return contracts.NewPOI(contracts.POIOrderBlock, contracts.Long, 5000, 4998, 5002, "5m").
		WithInducement(true).
		WithSweepZone(true).
		WithFlipZone(true)
}

func goodContext(poi contracts.POI) MarketContext {
	bias := contracts.Long
	chop := false
	return MarketContext{
		POIs:      []contracts.POI{poi},
		MacroBias: &bias,
		Chop:      &chop,
		Velez:     &market.VelezFlags{SMAHalt: true, Flat200: true, Elephant: true, MicroTrend: true},
	}
}

// pushTicks fills the ring buffer with 40s of sparse prints ending just before bar i
func (h *harness) pushTicks(i int) {
	end := sessionStart.Add(time.Duration(i) * time.Minute)
	for s := 40; s >= 1; s-- {
		side := contracts.SideBuy
		if s%2 == 0 {
			side = contracts.SideSell
		}
		h.o.OnTick(contracts.Tick{
			TimestampNs: end.Add(-time.Duration(s) * time.Second).UnixNano(),
			Price:       5000,
			Size:        1,
			Side:        side,
		})
	}
}

// driveToKill runs the warmup, installs mc and returns after the KILL bar
func (h *harness) driveToKill(t *testing.T, mc MarketContext) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < warmupBars; i++ {
		h.o.OnBar(ctx, flatBar(i))
	}
	require.Equal(t, contracts.StateScouting, h.o.Snapshot().State)
	require.InDelta(t, 2.0, h.o.Snapshot().ATR, 1e-9)

	h.o.UpdateContext(mc)
	h.o.OnBar(ctx, flatBar(warmupBars))
	require.Equal(t, contracts.StateStalking, h.o.Snapshot().State)

	h.pushTicks(killBar)
	h.o.OnBar(ctx, flatBar(killBar))
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(nil, Deps{}, nil)
	assert.Error(t, err)
}

func TestEntryFiresAndTargetCloses(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.driveToKill(t, goodContext(longPOI()))

	snap := h.o.Snapshot()
	assert.Equal(t, contracts.StateKill, snap.State)
	assert.Equal(t, 1, snap.TradeCount)
	require.Len(t, snap.Positions, 1)

	pos := snap.Positions[0]
	assert.Equal(t, "FLOF-0001", pos.ID)
	assert.Equal(t, contracts.GradeA, pos.Grade)
	assert.Equal(t, contracts.Long, pos.Direction)
	assert.InDelta(t, 5000, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 4996, pos.StopPrice, 1e-9)
	assert.InDelta(t, 5008, pos.TargetPrice, 1e-9)
	// 100,000 × 1.5% / (4pt × $50) = 7.5 → 7
	assert.Equal(t, 7, pos.TotalContracts)

	fired := h.events.of(contracts.EventOrderFired)
	require.Len(t, fired, 1)
	assert.Equal(t, "FLOF-0001", fired[0].Payload["position_id"])
	assert.Equal(t, 13, fired[0].Payload["score"])

	// 다음 바: 체결 후 KILL → DORMANT, 타겟 도달로 청산
	h.o.OnBar(context.Background(), barAt(killBar+1, 5000, 5009, 4999, 5006))

	snap = h.o.Snapshot()
	assert.Equal(t, contracts.StateDormant, snap.State)
	assert.Empty(t, snap.Positions)

	closed := h.o.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, execution.ExitTargetHit, closed[0].Reason)
	// 8pt × 7 × $50
	assert.InDelta(t, 2800, closed[0].PnL, 1e-9)
	assert.InDelta(t, 2.0, closed[0].RMultiple, 1e-9)
	assert.InDelta(t, 102_800, snap.Equity.Equity, 1e-9)
	assert.Equal(t, 0, snap.Risk.ConsecutiveLosses)
	assert.Len(t, h.o.EquityCurve(), 1)

	trades, err := h.o.Journal().ListTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Closed)
	assert.Equal(t, execution.ExitTargetHit, trades[0].ExitReason)
	assert.Equal(t, 13, trades[0].ScoreTotal)
	assert.Equal(t, 8, trades[0].ScoreTier1)
	assert.Equal(t, 4, trades[0].ScoreTier2)
	assert.Equal(t, 1, trades[0].ScoreTier3)
	assert.False(t, trades[0].Shadow)

	assert.Len(t, h.events.of(contracts.EventPositionClosed), 1)
	assert.NotEmpty(t, h.events.of(contracts.EventStateTransition))
}

func TestStopHitRecordsLoss(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.driveToKill(t, goodContext(longPOI()))

	h.o.OnBar(context.Background(), barAt(killBar+1, 5000, 5000, 4995, 4995.5))

	closed := h.o.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, execution.ExitStopHit, closed[0].Reason)
	assert.InDelta(t, -1400, closed[0].PnL, 1e-9)
	assert.InDelta(t, -1.0, closed[0].RMultiple, 1e-9)

	snap := h.o.Snapshot()
	assert.Equal(t, 1, snap.Risk.ConsecutiveLosses)
	assert.InDelta(t, -0.014, snap.Risk.DailyPnLPct, 1e-9)
	assert.False(t, snap.Risk.Flattened)
}

func TestEntryRejections(t *testing.T) {
	tests := []struct {
		name string
		mc   func() MarketContext
		gate string
	}{
		{
			name: "no inducement",
			mc:   func() MarketContext { return goodContext(longPOI().WithInducement(false)) },
			gate: scoring.GateG2,
		},
		{
			name: "chop",
			mc: func() MarketContext {
				mc := goodContext(longPOI())
				chop := true
				mc.Chop = &chop
				return mc
			},
			gate: scoring.GateG3,
		},
		{
			name: "macro dump",
			mc: func() MarketContext {
				mc := goodContext(longPOI())
				mc.MacroDump = true
				return mc
			},
			gate: GateMacroDump,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(t))
			h.driveToKill(t, tt.mc())

			snap := h.o.Snapshot()
			assert.Equal(t, 0, snap.TradeCount)
			assert.Empty(t, snap.Positions)
			assert.Empty(t, h.events.of(contracts.EventOrderFired))

			rejs, err := h.o.Journal().ListRejections(context.Background())
			require.NoError(t, err)
			require.Len(t, rejs, 1)
			assert.Equal(t, tt.gate, rejs[0].Gate)
			assert.Equal(t, contracts.POIOrderBlock, rejs[0].POIType)
			assert.Equal(t, "KILL", rejs[0].Context["state"])

			require.Len(t, h.events.of(contracts.EventSignalRejected), 1)

			// 거절도 진입 시도: 다음 바에서 DORMANT
			h.o.OnBar(context.Background(), flatBar(killBar+1))
			assert.Equal(t, contracts.StateDormant, h.o.Snapshot().State)
		})
	}
}

func TestMacroDumpEventFiresOnce(t *testing.T) {
	h := newHarness(t, testConfig(t))
	mc := goodContext(longPOI())
	mc.MacroDump = true
	h.driveToKill(t, mc)
	h.o.OnBar(context.Background(), flatBar(killBar+1))

	assert.Len(t, h.events.of(contracts.EventMacroDumpDetected), 1)
}

func TestShadowModeFiresFailedGates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Shadow.Enabled = true
	h := newHarness(t, cfg)
	h.driveToKill(t, goodContext(longPOI().WithInducement(false)))

	snap := h.o.Snapshot()
	assert.True(t, snap.Shadow)
	require.Len(t, snap.Positions, 1)
	// 섀도 최소 사이즈: 100,000 × 0.5% / 200 = 2.5 → 2
	assert.Equal(t, 2, snap.Positions[0].TotalContracts)
	// 섀도 체결은 안티스팸 집계 제외
	assert.Equal(t, 0, snap.Risk.RecentOrders)

	trades, err := h.o.Journal().ListTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Shadow)
	assert.Equal(t, []string{scoring.GateG2}, trades[0].ShadowGatesFailed)

	// 섀도 손실은 연패로 세지 않음
	h.o.OnBar(context.Background(), barAt(killBar+1, 5000, 5000, 4995, 4995.5))
	assert.Equal(t, 0, h.o.Snapshot().Risk.ConsecutiveLosses)
}

func TestStaleDataNuclearFlatten(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.driveToKill(t, goodContext(longPOI()))
	require.Len(t, h.o.Snapshot().Positions, 1)

	killTime := sessionStart.Add(killBar * time.Minute)
	h.o.OnStaleData(10 * time.Second)
	require.Len(t, h.events.of(contracts.EventStaleDataAlert), 1)
	assert.True(t, h.o.Snapshot().FeedStale)

	// 카운트다운 전: 정상
	res := h.o.RunRiskCheck(killTime.Add(2 * time.Second))
	assert.Equal(t, risk.StatusOK, res.Status)

	res = h.o.RunRiskCheck(killTime.Add(6 * time.Second))
	assert.Equal(t, risk.StatusBreach, res.Status)
	assert.Equal(t, risk.PillarStaleData, res.Pillar)

	snap := h.o.Snapshot()
	assert.True(t, snap.Risk.Flattened)
	assert.Equal(t, risk.PillarStaleData, snap.Risk.FlattenReason)
	assert.Equal(t, contracts.StateDormant, snap.State)
	assert.Empty(t, snap.Positions)
	assert.Equal(t, 0, snap.Ledger.OpenPositions)

	closed := h.o.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, execution.ExitNuclearFlatten, closed[0].Reason)
	assert.Len(t, h.events.of(contracts.EventRiskLimitBreached), 1)
	assert.Empty(t, h.exits, "no process exit outside live mode")

	// 한 번만 실행
	res = h.o.RunRiskCheck(killTime.Add(10 * time.Second))
	assert.Equal(t, risk.StatusFlattened, res.Status)

	// Flatten 이후 틱/바 무시
	ticks := snap.TickCount
	h.o.OnTick(contracts.Tick{TimestampNs: killTime.Add(20 * time.Second).UnixNano(), Price: 5001, Size: 1, Side: contracts.SideBuy})
	h.o.OnBar(context.Background(), flatBar(killBar+1))
	after := h.o.Snapshot()
	assert.Equal(t, ticks, after.TickCount)
	assert.Equal(t, contracts.StateDormant, after.State)
}

func TestConsecutiveLossesBreachOnBar(t *testing.T) {
	cfg := testConfig(t)
	cfg.Risk.MaxConsecutiveLosses = 1
	h := newHarness(t, cfg)
	h.driveToKill(t, goodContext(longPOI()))

	h.o.OnBar(context.Background(), barAt(killBar+1, 5000, 5000, 4995, 4995.5))

	snap := h.o.Snapshot()
	assert.True(t, snap.Risk.Flattened)
	assert.Equal(t, risk.PillarConsecutiveLosses, snap.Risk.FlattenReason)
	assert.Positive(t, snap.Ledger.LockoutUntilNs)
}

func TestDateRolloverResetsSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Risk.MaxConsecutiveLosses = 1
	h := newHarness(t, cfg)
	h.driveToKill(t, goodContext(longPOI()))
	h.o.OnBar(context.Background(), barAt(killBar+1, 5000, 5000, 4995, 4995.5))
	require.True(t, h.o.Snapshot().Risk.Flattened)

	next := sessionStart.Add(24 * time.Hour)
	h.o.OnBar(context.Background(), contracts.Bar{
		TimestampNs: next.UnixNano(),
		Open:        5000, High: 5001, Low: 4999, Close: 5000, Volume: 100,
	})

	snap := h.o.Snapshot()
	assert.False(t, snap.Risk.Flattened)
	assert.Equal(t, 0, snap.Risk.ConsecutiveLosses)
	assert.Equal(t, "2026-03-03", snap.SessionDate)
	assert.InDelta(t, 0, snap.Equity.DailyPnLPct, 1e-9)
	assert.Len(t, h.events.of(contracts.EventDailyReset), 1)
}

func TestFlattenHoldsUntilSessionRoll(t *testing.T) {
	h := newHarness(t, testConfig(t)) // UTC, roll 18:00
	ctx := context.Background()
	at := func(ts time.Time) contracts.Bar {
		return contracts.Bar{TimestampNs: ts.UnixNano(), Open: 5000, High: 5001, Low: 4999, Close: 5000, Volume: 100}
	}

	evening := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	h.o.OnBar(ctx, at(evening))
	assert.Equal(t, "2026-03-03", h.o.Snapshot().SessionDate)

	h.o.OnStaleData(10 * time.Second)
	res := h.o.RunRiskCheck(evening.Add(6 * time.Second))
	require.Equal(t, risk.StatusBreach, res.Status)
	require.Equal(t, risk.PillarStaleData, res.Pillar)

	// 자정은 세션 경계가 아님
	h.o.OnBar(ctx, at(time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC)))
	snap := h.o.Snapshot()
	assert.True(t, snap.Risk.Flattened)
	assert.Equal(t, risk.PillarStaleData, snap.Risk.FlattenReason)
	assert.Empty(t, h.events.of(contracts.EventDailyReset))

	// 같은 세션 안의 수동 리셋도 무시
	h.o.DailyReset(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	assert.True(t, h.o.Snapshot().Risk.Flattened)
	assert.Empty(t, h.events.of(contracts.EventDailyReset))

	// 18:00 스케줄 리셋 후 첫 바는 다시 리셋하지 않음
	h.o.DailyReset(time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC))
	assert.False(t, h.o.Snapshot().Risk.Flattened)
	require.Len(t, h.events.of(contracts.EventDailyReset), 1)

	h.o.OnBar(ctx, at(time.Date(2026, 3, 3, 18, 1, 0, 0, time.UTC)))
	snap = h.o.Snapshot()
	assert.False(t, snap.Risk.Flattened)
	assert.Equal(t, "2026-03-04", snap.SessionDate)
	assert.Len(t, h.events.of(contracts.EventDailyReset), 1)
}

func TestEODFlatten(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trade.EODFlattenTime = "10:22"
	h := newHarness(t, cfg)
	h.driveToKill(t, goodContext(longPOI()))
	require.Len(t, h.o.Snapshot().Positions, 1)

	h.o.EODWarning(sessionStart.Add(killBar * time.Minute))
	require.Len(t, h.events.of(contracts.EventEODFlattenWarning), 1)

	h.o.OnBar(context.Background(), flatBar(killBar+1))

	assert.Empty(t, h.o.Snapshot().Positions)
	closed := h.o.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, execution.ExitEODFlatten, closed[0].Reason)
	assert.Len(t, h.events.of(contracts.EventEODFlattenExecute), 1)

	// 같은 세션에서는 다시 실행하지 않음
	h.o.OnBar(context.Background(), flatBar(killBar+2))
	assert.Len(t, h.events.of(contracts.EventEODFlattenExecute), 1)
}

func TestCloseAllAtEnd(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.driveToKill(t, goodContext(longPOI()))

	n := h.o.CloseAll(context.Background(), execution.ExitEndOfBacktest)
	assert.Equal(t, 1, n)

	trades, err := h.o.Journal().ListTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, execution.ExitEndOfBacktest, trades[0].ExitReason)
	assert.IsType(t, audit.TradeRecord{}, trades[0])
}

func TestKillSwitchMethods(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.driveToKill(t, goodContext(longPOI()))

	require.NoError(t, h.o.CancelAllOrders())
	require.NoError(t, h.o.FlattenAllPositions())
	require.NoError(t, h.o.ForceDormant())

	snap := h.o.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.Equal(t, contracts.StateDormant, snap.State)
}
