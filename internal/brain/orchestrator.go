package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/eventbus"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/internal/orderflow"
	"github.com/wonny/flof/backend/internal/portfolio"
	"github.com/wonny/flof/backend/internal/predator"
	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/internal/scoring"
	"github.com/wonny/flof/backend/internal/strategyconfig"
	"github.com/wonny/flof/backend/pkg/logger"
)

const (
	eventSource = "Orchestrator"

	barHistoryMax   = 500
	rangeLookback   = 100
	minATRBars      = 15
	minBiasBars     = 30
	sessionAvgEvery = 30
	chopSlopeLag    = 5

	// order-flow windows (data-density guards keep these quiet on sparse ticks)
	ofGateWindow     = 30 * time.Second
	ofGateMinTicks   = 100
	deltaWindow      = 30 * time.Second
	deltaMinTicks    = 100
	absorptionWindow = 5 * time.Second

	brokerTimeout = 5 * time.Second
)

// Deps are the collaborators an Orchestrator talks to. nil fields get in-process defaults.
type Deps struct {
	Broker   execution.Broker
	Bus      *eventbus.Bus
	Journal  audit.Store
	Health   *health.Monitor
	Calendar *market.EventCalendar

	// Now is the wall clock for live hosts. nil means event time drives every clock (backtest, replay).
	Now func() time.Time
}

// Orchestrator is the per-instrument decision loop.
// ⭐ SSOT: 틱/바 → 분석 → 상태머신 → 채점 → 게이트 → 주문 → 포지션 관리 → 리스크 점검 순서는 여기서만
//
// 모든 공개 메서드는 mu 로 직렬화됨. 버스 구독자는 콜백 안에서 Orchestrator 를 다시 호출하면 안 됨.
type Orchestrator struct {
	mu sync.Mutex

	provider   *strategyconfig.Manager
	cfg        strategyconfig.Config
	loc        *time.Location
	instrument string
	profile    string
	shadow     bool
	configHash string

	// core components
	rb       *ringbuffer.RingBuffer
	analyzer *orderflow.Analyzer
	vp       *orderflow.VolumeProfile
	machine  *predator.Machine
	scorer   *scoring.Scorer
	gate     *portfolio.Gate
	overlord *risk.Overlord
	trades   *execution.TradeManager
	brackets *execution.BracketBuilder
	equity   *execution.EquityTracker

	// session helpers
	session  *market.SessionProfile
	sudden   *market.SuddenMoveClassifier
	calendar *market.EventCalendar
	health   *health.Monitor

	broker  execution.Broker
	bus     *eventbus.Bus
	journal audit.Store
	now     func() time.Time
	logger  *logger.Logger

	// bar state
	bars        []contracts.Bar
	bars2m      []contracts.Bar
	pending1m   *contracts.Bar
	sessionDate string
	resetFor    string // 마지막 일일 리셋이 적용된 세션
	sessionBars int
	prevHigh    float64
	prevLow     float64
	atr         float64
	rangeHigh   float64
	rangeLow    float64
	bias        *contracts.Direction
	hasCHOCH    bool
	velocity    float64
	suddenMove  contracts.SuddenMoveType
	cooldownNs  int64
	mc          MarketContext

	// edges and flags
	chopActive      bool
	macroDumpActive bool
	eodDone         bool
	tradeAttempted  bool

	tradeCount int
	tickCount  int
	lastPrice  float64
	lastNs     int64
	feedStale  bool

	openRecords map[string]audit.TradeRecord
	closed      []execution.ClosedTrade
}

// New builds the decision loop from a loaded configuration provider.
// opts are passed to the risk overlord (tests replace the process exit).
func New(provider *strategyconfig.Manager, deps Deps, log *logger.Logger, opts ...risk.Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New("brain: nil config provider")
	}
	if log == nil {
		log = logger.NewNop()
	}

	cfg := provider.Config()
	loc := cfg.Location()

	machine, err := predator.New(cfg.Predator, log.WithComponent("predator"))
	if err != nil {
		return nil, fmt.Errorf("predator: %w", err)
	}

	capacity := cfg.System.RingBufferCapacity
	if capacity <= 0 {
		capacity = strategyconfig.DefaultConfig().System.RingBufferCapacity
	}
	rb := ringbuffer.New(capacity)

	o := &Orchestrator{
		provider:    provider,
		cfg:         cfg,
		loc:         loc,
		instrument:  cfg.System.Instrument,
		profile:     cfg.System.Profile,
		shadow:      cfg.Shadow.Enabled,
		configHash:  provider.Hash(),
		rb:          rb,
		analyzer:    orderflow.NewAnalyzer(rb, cfg.OrderFlow),
		vp:          orderflow.NewVolumeProfile(rb, cfg.VolumeProfile),
		machine:     machine,
		scorer:      scoring.NewScorer(cfg.Scoring),
		gate:        portfolio.NewGate(cfg.Portfolio, log.WithComponent("portfolio")),
		trades:      execution.NewTradeManager(cfg.Trade, log.WithComponent("trade_manager")),
		brackets:    execution.NewBracketBuilder(cfg.Bracket, log.WithComponent("bracket")),
		equity:      execution.NewEquityTracker(cfg.System.StartingEquity),
		session:     market.NewSessionProfile(cfg.Chop),
		sudden:      market.NewSuddenMoveClassifier(cfg.SuddenMove),
		calendar:    deps.Calendar,
		health:      deps.Health,
		broker:      deps.Broker,
		bus:         deps.Bus,
		journal:     deps.Journal,
		now:         deps.Now,
		logger:      log.WithField("instrument", cfg.System.Instrument),
		suddenMove:  contracts.SuddenMoveNone,
		openRecords: make(map[string]audit.TradeRecord),
	}

	if o.broker == nil {
		o.broker = execution.NewSimBroker(cfg.Bracket.TickSize, 0, log.WithComponent("sim_broker"))
	}
	if o.bus == nil {
		o.bus = eventbus.New(cfg.EventBus.MaxQueueDepth, log.WithComponent("eventbus"))
	}
	if o.journal == nil {
		o.journal = audit.NewMemoryStore()
	}
	if o.health == nil {
		o.health = health.NewMonitor(cfg.Health, log.WithComponent("health"))
	}
	if o.calendar == nil {
		o.calendar = market.NewEventCalendar(cfg.Calendar, loc, log.WithComponent("calendar"))
	}

	riskCfg := cfg.Risk
	riskCfg.LiveMode = provider.LiveMode()
	opts = append([]risk.Option{risk.WithNotifier(o.bus)}, opts...)
	o.overlord = risk.NewOverlord(riskCfg, engineKill{o}, log.WithComponent("risk_overlord"), opts...)

	metrics.Equity.Set(o.equity.Equity())

	o.logger.WithFields(map[string]interface{}{
		"profile":     o.profile,
		"shadow":      o.shadow,
		"live_mode":   riskCfg.LiveMode,
		"config_hash": o.configHash,
	}).Info("Decision loop initialized")

	return o, nil
}

// Bus returns the notification channel
func (o *Orchestrator) Bus() *eventbus.Bus {
	return o.bus
}

// Journal returns the trade/rejection store
func (o *Orchestrator) Journal() audit.Store {
	return o.journal
}

// Health returns the infrastructure monitor
func (o *Orchestrator) Health() *health.Monitor {
	return o.health
}

// Calendar returns the economic event calendar
func (o *Orchestrator) Calendar() *market.EventCalendar {
	return o.calendar
}

// Provider returns the configuration provider
func (o *Orchestrator) Provider() *strategyconfig.Manager {
	return o.provider
}

// =============================================================================
// Market updates
// =============================================================================

// OnTick ingests one trade print. Ticks are dropped once the session is flattened.
func (o *Orchestrator) OnTick(t contracts.Tick) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.overlord.IsFlattened() {
		return
	}

	o.rb.Push(t)
	o.tickCount++
	o.lastPrice = t.Price
	o.lastNs = t.TimestampNs
	metrics.TicksTotal.WithLabelValues(o.instrument).Inc()

	// 실시간 모드에서는 피드 클라이언트가 벽시계로 하트비트를 기록함
	if o.now == nil {
		o.health.Heartbeat(health.SourceFeed, time.Unix(0, t.TimestampNs))
	}
}

// UpdateContext replaces the externally supplied market structure
func (o *Orchestrator) UpdateContext(mc MarketContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mc = mc
}

// OnBar runs one full decision cycle on a closed 1-minute bar
func (o *Orchestrator) OnBar(ctx context.Context, b contracts.Bar) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ns := b.TimestampNs
	sessionNow := time.Unix(0, ns).In(o.loc)
	date := market.SessionID(sessionNow, o.cfg.System.SessionRollTime)

	// 세션 변경: Flatten 상태여도 일일 리셋은 먼저 수행
	if o.sessionDate != "" && date != o.sessionDate {
		o.resetDaily(ns, date)
	}
	if o.overlord.IsFlattened() {
		return
	}

	metrics.BarsTotal.WithLabelValues(o.instrument).Inc()
	o.lastPrice = b.Close
	o.lastNs = ns

	o.pushBar(b)
	if date != o.sessionDate {
		o.startSession(date)
	}
	o.session.Update(b)
	o.sessionBars++

	o.refreshAnalytics(b)
	o.refreshFlags(ns)

	o.suddenMove = o.classifySuddenMove(ns, sessionNow)
	if o.suddenMove == contracts.SuddenMoveTypeA {
		if until := ns + market.ResponseFor(o.suddenMove).Cooldown.Nanoseconds(); until > o.cooldownNs {
			o.cooldownNs = until
		}
	}

	state := o.machine.Evaluate(predator.Input{
		Now:             sessionNow,
		Price:           b.Close,
		ATR:             o.atr,
		POIPrice:        o.poiPrice(),
		HasCHOCH:        o.hasCHOCH || !o.toggle(strategyconfig.ToggleCHOCH),
		BufferReady:     o.rb.IsReady(o.cfg.Predator.KillModeBufferMin),
		TapeVelocityPct: o.velocity,
		SuddenMove:      o.suddenMove,
		TradeAttempted:  o.tradeAttempted,
	})
	o.tradeAttempted = false
	o.drainTransitions()

	if !o.eodDone && o.trades.CheckEODFlatten(sessionNow.Format("15:04")) {
		o.executeEODFlatten(ctx, ns)
	}

	if state == contracts.StateKill && !o.eodDone {
		o.tryEntry(ctx, b, sessionNow)
	}

	o.managePositions(ctx, b)
	o.runRiskCheck(ns)
}

// pushBar keeps the 1m history and pairs 1m bars into 2m bars
func (o *Orchestrator) pushBar(b contracts.Bar) {
	o.bars = append(o.bars, b)
	if len(o.bars) > barHistoryMax {
		o.bars = o.bars[len(o.bars)-barHistoryMax:]
	}

	if o.pending1m == nil {
		first := b
		o.pending1m = &first
		return
	}
	pair := market.AggregateBars([]contracts.Bar{*o.pending1m, b}, 2)
	o.pending1m = nil
	if len(pair) == 0 {
		return
	}
	o.bars2m = append(o.bars2m, pair[0])
	if len(o.bars2m) > barHistoryMax {
		o.bars2m = o.bars2m[len(o.bars2m)-barHistoryMax:]
	}
}

// startSession rolls the previous session's range into PDH/PDL and clears session state
func (o *Orchestrator) startSession(date string) {
	if hi, lo, ok := o.session.Range(); ok {
		o.prevHigh, o.prevLow = hi, lo
	}
	o.session.Reset()
	o.sessionBars = 0
	o.sessionDate = date
	if o.resetFor == "" {
		o.resetFor = date
	}
	o.eodDone = false
	o.macroDumpActive = false
	o.logger.WithFields(map[string]interface{}{
		"session":   date,
		"prev_high": o.prevHigh,
		"prev_low":  o.prevLow,
	}).Info("Session started")
}

// refreshAnalytics updates range, ATR, session averages, bias, CHOCH and tape velocity
func (o *Orchestrator) refreshAnalytics(b contracts.Bar) {
	recent := o.bars
	if len(recent) > rangeLookback {
		recent = recent[len(recent)-rangeLookback:]
	}
	o.rangeHigh, o.rangeLow = recent[0].High, recent[0].Low
	for _, r := range recent[1:] {
		if r.High > o.rangeHigh {
			o.rangeHigh = r.High
		}
		if r.Low < o.rangeLow {
			o.rangeLow = r.Low
		}
	}

	if len(o.bars) >= minATRBars {
		if atr, ok := market.ATR(o.bars, o.cfg.Stops.ATRPeriod); ok {
			o.atr = atr
			o.analyzer.SetATR(atr)
		}
	}

	if o.sessionBars%sessionAvgEvery == 0 {
		o.refreshSessionAverages(b)
	}

	if len(o.bars) >= minBiasBars {
		if dir, ok := market.IntradayBias(o.bars); ok {
			o.bias = &dir
		} else {
			o.bias = nil
		}
	}

	o.hasCHOCH = o.atr > 0 && market.DetectCHOCH(o.bars, o.atr)
	o.velocity = predator.TapeVelocity(o.rb)
}

// refreshSessionAverages feeds the absorption baselines
func (o *Orchestrator) refreshSessionAverages(b contracts.Bar) {
	sessionVol := o.session.AvgBarVolume() * float64(o.sessionBars)
	avgVolPerSec := sessionVol / float64(o.sessionBars*60)

	avgTradeSize := b.Volume / 5.0
	if o.rb.Count() > 100 {
		var sum float64
		ticks := o.rb.Snapshot()
		for _, t := range ticks {
			sum += t.Size
		}
		avgTradeSize = sum / float64(len(ticks))
	}
	o.analyzer.SetSessionAverages(avgVolPerSec, avgTradeSize)
}

// refreshFlags publishes chop and macro-dump edges
func (o *Orchestrator) refreshFlags(ns int64) {
	chop := o.isChop()
	if chop != o.chopActive {
		o.chopActive = chop
		evt := contracts.EventChopCleared
		if chop {
			evt = contracts.EventChopDetected
		}
		o.publish(evt, ns, map[string]interface{}{"atr": o.atr})
	}

	dump := o.mc.MacroDump && o.toggle(strategyconfig.ToggleMacroDump)
	if dump && !o.macroDumpActive {
		o.logger.Warn("Macro dump detected, entries blocked for the session")
		o.publish(contracts.EventMacroDumpDetected, ns, map[string]interface{}{"price": o.lastPrice})
	}
	if dump {
		o.macroDumpActive = true
	}
}

// isChop prefers an external classification, else the session range vs ATR with the 20-SMA slope
func (o *Orchestrator) isChop() bool {
	if o.mc.Chop != nil {
		return *o.mc.Chop
	}
	return o.session.IsChop(o.atr, o.smaSlope())
}

// smaSlope is the fractional change of the 20-SMA over the last few bars
func (o *Orchestrator) smaSlope() float64 {
	closes := market.Closes(o.bars)
	period := o.cfg.Velez.SMA20Period
	if len(closes) < period+chopSlopeLag {
		return 0
	}
	now, ok := market.SMA(closes, period)
	if !ok {
		return 0
	}
	then, ok := market.SMA(closes[:len(closes)-chopSlopeLag], period)
	if !ok || then == 0 {
		return 0
	}
	return (now - then) / then
}

// classifySuddenMove reads health, the calendar and the tape
func (o *Orchestrator) classifySuddenMove(ns int64, sessionNow time.Time) contracts.SuddenMoveType {
	if !o.toggle(strategyconfig.ToggleSuddenMove) {
		return contracts.SuddenMoveNone
	}
	report := o.health.Report(o.clock(ns))
	metrics.FeedHeartbeatAge.Set(report.HeartbeatAgeMs / 1000)

	move := o.sudden.Classify(market.SuddenMoveInput{
		Health:           &report,
		HasCalendarEvent: o.calendar.HasActiveEvent(sessionNow),
		TapeVelocityPct:  o.velocity,
		SpreadCurrent:    o.mc.SpreadCurrent,
		SpreadBaseline:   o.mc.SpreadBaseline,
	})
	if move != contracts.SuddenMoveNone && move != o.suddenMove {
		o.logger.WithFields(map[string]interface{}{
			"type":     string(move),
			"velocity": o.velocity,
			"response": market.ResponseFor(move).Action,
		}).Warn("Sudden move classified")
	}
	return move
}

// poiPrice returns the active POI price for the state machine
func (o *Orchestrator) poiPrice() *float64 {
	poi, ok := o.mc.ActivePOI()
	if !ok {
		return nil
	}
	p := poi.Price
	return &p
}

// drainTransitions forwards state changes to logs, metrics and the bus
func (o *Orchestrator) drainTransitions() {
	for {
		select {
		case tr := <-o.machine.Transitions():
			metrics.StateTransitionsTotal.WithLabelValues(tr.From.String(), tr.To.String()).Inc()
			o.publish(contracts.EventStateTransition, tr.At.UnixNano(), map[string]interface{}{
				"from": tr.From.String(),
				"to":   tr.To.String(),
			})
		default:
			metrics.PredatorState.Set(float64(o.machine.State()))
			return
		}
	}
}

// =============================================================================
// Risk, session and host controls
// =============================================================================

// runRiskCheck runs the overlord and records a breach
func (o *Orchestrator) runRiskCheck(ns int64) risk.CheckResult {
	res := o.overlord.Check(ns)
	if res.Status == risk.StatusBreach {
		metrics.RiskBreachesTotal.WithLabelValues(res.Pillar).Inc()
		o.gate.RecordNuclearFlatten(ns)
	}
	return res
}

// RunRiskCheck is the scheduler's periodic overlord check
func (o *Orchestrator) RunRiskCheck(now time.Time) risk.CheckResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runRiskCheck(now.UnixNano())
}

// OnStaleData starts the stale-data countdown (feed watchdog callback)
func (o *Orchestrator) OnStaleData(age time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ns := o.clock(o.lastNs).UnixNano()
	o.feedStale = true
	o.overlord.OnStaleDataAlert(ns)
	o.publish(contracts.EventStaleDataAlert, ns, map[string]interface{}{
		"heartbeat_age_ms": age.Milliseconds(),
	})
}

// OnFeedRecovered clears the stale-data countdown
func (o *Orchestrator) OnFeedRecovered() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feedStale = false
	o.overlord.ClearStaleAlert()
}

// DailyReset clears session risk state at the session boundary.
// A session is reset at most once, whichever of the scheduler or the bar stream gets there first.
func (o *Orchestrator) DailyReset(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetDaily(now.UnixNano(), market.SessionID(now.In(o.loc), o.cfg.System.SessionRollTime))
}

func (o *Orchestrator) resetDaily(ns int64, session string) {
	if session == o.resetFor {
		o.logger.WithField("session", session).Debug("Daily reset already applied")
		return
	}
	o.resetFor = session
	o.overlord.ResetDaily()
	o.gate.ResetDaily()
	o.equity.StartSession()
	o.cooldownNs = 0
	o.publish(contracts.EventDailyReset, ns, map[string]interface{}{
		"session": session,
		"equity":  o.equity.Equity(),
	})
	o.logger.Info("Daily reset complete")
}

// EODWarning announces the upcoming end-of-day flatten
func (o *Orchestrator) EODWarning(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publish(contracts.EventEODFlattenWarning, now.UnixNano(), map[string]interface{}{
		"flatten_time": o.cfg.Trade.EODFlattenTime,
		"positions":    o.trades.Count(),
	})
}

// executeEODFlatten closes everything once per session and blocks further entries
func (o *Orchestrator) executeEODFlatten(ctx context.Context, ns int64) {
	o.eodDone = true
	n := o.trades.Count()
	o.closeAll(ctx, execution.ExitEODFlatten, ns)
	o.publish(contracts.EventEODFlattenExecute, ns, map[string]interface{}{
		"closed": n,
	})
	o.logger.WithField("closed", n).Info("EOD flatten executed")
}

// CloseAll closes every open position at the last price (end of backtest, shutdown)
func (o *Orchestrator) CloseAll(ctx context.Context, reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.trades.Count()
	o.closeAll(ctx, reason, o.lastNs)
	return n
}

// -----------------------------------------------------------------------------
// KillSwitch (contracts.KillSwitch)
// -----------------------------------------------------------------------------

// CancelAllOrders cancels every working order at the broker
func (o *Orchestrator) CancelAllOrders() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelAll()
}

// FlattenAllPositions closes every position at the last price
func (o *Orchestrator) FlattenAllPositions() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flattenAll()
}

// ForceDormant sends the state machine to DORMANT
func (o *Orchestrator) ForceDormant() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.forceDormant()
}

func (o *Orchestrator) cancelAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), brokerTimeout)
	defer cancel()
	o.logger.Warn("Cancelling all working orders")
	return o.broker.CancelAll(ctx)
}

func (o *Orchestrator) flattenAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), brokerTimeout)
	defer cancel()
	o.logger.WithField("positions", o.trades.Count()).Warn("Flattening all positions")
	o.closeAll(ctx, execution.ExitNuclearFlatten, o.lastNs)
	return nil
}

func (o *Orchestrator) forceDormant() error {
	o.machine.ForceDormant()
	o.drainTransitions()
	return nil
}

// engineKill is the overlord's kill path. It runs inside an already-locked update.
type engineKill struct{ o *Orchestrator }

func (k engineKill) CancelAllOrders() error     { return k.o.cancelAll() }
func (k engineKill) FlattenAllPositions() error { return k.o.flattenAll() }
func (k engineKill) ForceDormant() error        { return k.o.forceDormant() }

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot returns a value copy of engine state
func (o *Orchestrator) Snapshot() EngineSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	positions := make([]execution.ManagedPosition, 0, o.trades.Count())
	for _, p := range o.trades.Positions() {
		positions = append(positions, *p)
	}

	return EngineSnapshot{
		Instrument:  o.instrument,
		Profile:     o.profile,
		Shadow:      o.shadow,
		ConfigHash:  o.configHash,
		State:       o.machine.State(),
		LastPrice:   o.lastPrice,
		LastNs:      o.lastNs,
		ATR:         o.atr,
		TickCount:   o.tickCount,
		TradeCount:  o.tradeCount,
		Positions:   positions,
		Ledger:      o.gate.Snapshot(),
		Risk:        o.overlord.Snapshot(),
		Equity:      o.equity.Snapshot(),
		Toggles:     o.provider.Toggles(),
		FeedStale:   o.feedStale,
		SessionDate: o.sessionDate,
	}
}

// ClosedTrades returns every trade closed so far
func (o *Orchestrator) ClosedTrades() []execution.ClosedTrade {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]execution.ClosedTrade, len(o.closed))
	copy(out, o.closed)
	return out
}

// EquityCurve returns the realized equity curve
func (o *Orchestrator) EquityCurve() []execution.EquityPoint {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.equity.Curve()
}

// =============================================================================
// helpers
// =============================================================================

// clock returns wall time for live hosts, event time otherwise
func (o *Orchestrator) clock(ns int64) time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Unix(0, ns)
}

func (o *Orchestrator) toggle(id string) bool {
	return o.provider.IsToggleEnabled(id)
}

func (o *Orchestrator) publish(t contracts.EventType, ns int64, payload map[string]interface{}) {
	o.bus.Publish(eventbus.NewEvent(t, eventSource, ns, payload))
}
