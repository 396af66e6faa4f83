package brain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/internal/orderflow"
	"github.com/wonny/flof/backend/internal/portfolio"
	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/internal/strategyconfig"
)

// Rejection gates raised by the decision loop itself (scorer and portfolio gates keep their own names)
const (
	GateMacroDump      = "T38_macro_dump"
	GateSuddenCooldown = "T29_sudden_move_cooldown"
	GateOrderFlowRB    = "OF_gate_rejection_block"
	GateSizing         = "sizing_zero_contracts"
	GateBroker         = "broker_submit"
)

// entryCandidate carries what a rejection record needs
type entryCandidate struct {
	poi       contracts.POI
	zone      string
	isChop    bool
	ofScore   int
	ofDetails orderflow.Details
}

// tryEntry runs the KILL-state entry pipeline on the active POI:
// order-flow gate → structure → stop/target → scoring → portfolio gate → sizing → broker
func (o *Orchestrator) tryEntry(ctx context.Context, b contracts.Bar, sessionNow time.Time) {
	poi, ok := o.mc.ActivePOI()
	if !ok {
		return
	}
	ns := b.TimestampNs
	price := b.Close

	cand := entryCandidate{
		poi:  poi,
		zone: market.PremiumDiscount(price, o.rangeHigh, o.rangeLow),
	}

	if o.macroDumpActive {
		o.reject(ctx, ns, cand, GateMacroDump, "macro dump active, long and short entries blocked", nil)
		return
	}
	if ns < o.cooldownNs {
		o.reject(ctx, ns, cand, GateSuddenCooldown, "scheduled event cooldown", nil)
		return
	}

	// 오더플로우 (T07 끄면 0점)
	if o.toggle(strategyconfig.ToggleOrderFlow) {
		cand.ofScore, cand.ofDetails = o.analyzer.EvaluateDirectional(poi.Direction)
	}

	var extraGates []string
	if poi.Type == contracts.POIRejectionBlock && len(o.rb.Window(ofGateWindow)) >= ofGateMinTicks {
		if cand.ofScore == 0 && !cand.ofDetails.HasAbsorption {
			if !o.shadow {
				o.reject(ctx, ns, cand, GateOrderFlowRB, "rejection block without order-flow confirmation", nil)
				return
			}
			extraGates = append(extraGates, GateOrderFlowRB)
		}
	}

	cand.isChop = o.isChop()
	velez := o.velezFlags(poi, price)
	vwap := o.session.VWAPConfluence(poi.Price)

	// 스톱/타겟
	entry := price
	stop := o.vp.StopPrice(entry, poi.Direction, o.atr, o.toggle(strategyconfig.ToggleVPStops))
	riskPts := math.Abs(entry - stop)
	if riskPts <= 0 {
		return
	}
	targetR := o.cfg.Bracket.TargetR
	target := entry + poi.Direction.Sign()*targetR*riskPts

	sctx := contracts.NewScoringContext(poi).
		WithGates(contracts.GateInputs{
			PremiumDiscount: cand.zone,
			HasInducement:   poi.HasInducement,
			IsChop:          cand.isChop,
			G1Enabled:       o.cfg.Gates.G1PremiumDiscountEnabled,
			G2Required:      o.cfg.Gates.G2InducementRequired,
		}).
		WithTier1(contracts.Tier1Inputs{
			TrendAligned:         o.trendAligned(poi.Direction),
			Regime:               o.regime(),
			HasLiquiditySweep:    o.toggle(strategyconfig.ToggleLiquiditySweep) && o.mc.hasSweep(),
			IsFreshPOI:           o.toggle(strategyconfig.TogglePOIFreshness) && poi.IsFresh,
			HasCHOCH:             true, // KILL 진입 조건에 CHOCH 포함
			CHOCHDisplacementATR: true,
			OrderFlowScore:       cand.ofScore,
			InKillzone:           o.toggle(strategyconfig.ToggleKillzoneGate) && o.machine.InKillzone(sessionNow),
		}).
		WithTier2(contracts.Tier2Inputs{
			Enabled:       o.toggle(strategyconfig.ToggleVelez),
			Has20SMAHalt:  velez.SMAHalt,
			HasFlat200:    velez.Flat200,
			HasElephant:   velez.Elephant,
			HasMicroTrend: velez.MicroTrend,
		}).
		WithTier3(contracts.Tier3Inputs{
			HasVWAPConfluence:      vwap,
			IsFlipZone:             poi.IsFlipZone,
			HasLiquidityNearTarget: o.liquidityNear(target),
		}).
		WithCascade(o.toggle(strategyconfig.ToggleCascadeOverride) && o.suddenMove == contracts.SuddenMoveTypeB).
		WithPrices(entry, stop, target).
		WithOrderType(o.cfg.Bracket.DefaultOrderType)

	// 채점
	start := time.Now()
	var sig *contracts.TradeSignal
	gatesFailed := extraGates
	if o.shadow {
		var failed []string
		sig, failed = o.scorer.ScoreShadow(sctx)
		gatesFailed = append(gatesFailed, failed...)
	} else {
		var rej *contracts.Rejection
		sig, rej = o.scorer.Score(sctx)
		if rej != nil {
			metrics.ObserveScoring(start)
			score := rej.TotalScore
			o.reject(ctx, ns, cand, rej.Gate, rej.Reason, &score, "tier1", rej.Tier1Score)
			return
		}
	}
	metrics.ObserveScoring(start)

	// 포트폴리오 게이트
	dec := o.gate.Evaluate(o.instrument, sig.PositionSizePct, ns)
	if !dec.Passed {
		if !o.shadow {
			score := sig.ScoreTotal
			o.reject(ctx, ns, cand, dec.Gate, dec.Reason, &score)
			return
		}
		gatesFailed = append(gatesFailed, "portfolio:"+dec.Gate)
	}

	if o.shadow && o.equity.Drawdown() < o.cfg.Shadow.SafetyMaxDrawdownPct {
		o.logger.WithField("drawdown", o.equity.Drawdown()).Warn("Shadow safety stop: drawdown limit reached, entry skipped")
		return
	}

	bracket, ok := o.brackets.Build(*sig, o.equity.Equity())
	if !ok {
		if !o.shadow || len(gatesFailed) == 0 {
			score := sig.ScoreTotal
			o.reject(ctx, ns, cand, GateSizing, "position size rounds to zero contracts", &score)
			return
		}
		bracket = o.brackets.Bracket(*sig, 1, targetR)
	}

	o.fire(ctx, ns, *sig, bracket, gatesFailed)
}

// fire submits the bracket and registers the position everywhere
func (o *Orchestrator) fire(ctx context.Context, ns int64, sig contracts.TradeSignal, bracket execution.OCOBracket, gatesFailed []string) {
	id := fmt.Sprintf("FLOF-%04d", o.tradeCount+1)

	bctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	sent := time.Now()
	fill, err := o.broker.Submit(bctx, id, bracket)
	if err != nil {
		o.logger.WithError(err).WithField("position_id", id).Error("Broker rejected entry")
		score := sig.ScoreTotal
		o.reject(ctx, ns, entryCandidate{poi: sig.POI}, GateBroker, err.Error(), &score)
		return
	}
	if o.now != nil {
		o.health.RecordLatency(health.SourceBroker, time.Since(sent), o.now())
	}

	entry := bracket.Entry.Price
	size := bracket.Entry.Size
	if fill != nil && fill.Price > 0 {
		entry = fill.Price
	}

	o.tradeCount++
	o.tradeAttempted = true

	pos := execution.NewManagedPosition(id, sig.Direction, sig.Grade, entry, bracket.StopLoss.Price, bracket.TakeProfit.Price, size, ns)
	pos.Instrument = o.instrument
	o.trades.Add(pos)
	o.gate.AddPosition(portfolio.LedgerEntry{
		ID:           id,
		Instrument:   o.instrument,
		RiskFraction: sig.PositionSizePct,
		Contracts:    size,
	})
	if !o.shadow {
		o.overlord.RecordOrder(ns)
	}
	o.overlord.UpdatePositions(o.trades.Count())

	metrics.SignalsTotal.WithLabelValues(string(sig.Grade)).Inc()
	metrics.OpenPositions.Set(float64(o.trades.Count()))

	rec := audit.TradeRecord{
		PositionID:        id,
		Instrument:        o.instrument,
		Profile:           o.profile,
		Direction:         sig.Direction,
		Grade:             sig.Grade,
		POIType:           sig.POI.Type,
		ScoreTotal:        sig.ScoreTotal,
		ScoreTier1:        sig.ScoreTier1,
		ScoreTier2:        sig.ScoreTier2,
		ScoreTier3:        sig.ScoreTier3,
		EntryPrice:        entry,
		StopPrice:         pos.StopPrice,
		TargetPrice:       pos.TargetPrice,
		RiskPct:           sig.PositionSizePct,
		Contracts:         size,
		EntryNs:           ns,
		Shadow:            o.shadow,
		ShadowGatesFailed: gatesFailed,
		ConfigHash:        o.configHash,
	}
	o.openRecords[id] = rec
	o.saveTrade(ctx, rec)

	o.logger.WithFields(map[string]interface{}{
		"position_id":  id,
		"direction":    sig.Direction.String(),
		"grade":        string(sig.Grade),
		"score":        sig.ScoreTotal,
		"entry":        entry,
		"stop":         pos.StopPrice,
		"target":       pos.TargetPrice,
		"contracts":    size,
		"gates_failed": gatesFailed,
	}).Info("Order fired")

	o.publish(contracts.EventOrderFired, ns, map[string]interface{}{
		"position_id": id,
		"direction":   sig.Direction.String(),
		"grade":       string(sig.Grade),
		"score":       sig.ScoreTotal,
		"entry":       entry,
		"stop":        pos.StopPrice,
		"target":      pos.TargetPrice,
		"contracts":   size,
		"shadow":      o.shadow,
	})
}

// reject journals a rejection, publishes SIGNAL_REJECTED and ends the KILL cycle.
// extra is an optional key/value list stored in the record context.
func (o *Orchestrator) reject(ctx context.Context, ns int64, cand entryCandidate, gate, reason string, score *int, extra ...interface{}) {
	o.tradeAttempted = true
	metrics.RejectionsTotal.WithLabelValues(gate).Inc()

	detail := map[string]interface{}{
		"of_score":   cand.ofScore,
		"absorption": cand.ofDetails.HasAbsorption,
		"atr":        o.atr,
		"state":      o.machine.State().String(),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			detail[k] = extra[i+1]
		}
	}

	rec := audit.RejectionRecord{
		TimestampNs:     ns,
		Instrument:      o.instrument,
		POIType:         cand.poi.Type,
		POIPrice:        cand.poi.Price,
		Direction:       cand.poi.Direction,
		PremiumDiscount: cand.zone,
		HasInducement:   cand.poi.HasInducement,
		IsChop:          cand.isChop,
		Gate:            gate,
		Reason:          reason,
		Score:           score,
		Context:         detail,
	}
	if err := o.journal.SaveRejection(ctx, rec); err != nil {
		o.logger.WithError(err).Error("Failed to journal rejection")
	}

	o.logger.WithFields(map[string]interface{}{
		"gate":      gate,
		"reason":    reason,
		"poi_type":  string(cand.poi.Type),
		"poi_price": cand.poi.Price,
	}).Info("Entry rejected")

	o.publish(contracts.EventSignalRejected, ns, map[string]interface{}{
		"gate":      gate,
		"reason":    reason,
		"poi_price": cand.poi.Price,
	})
}

// -----------------------------------------------------------------------------
// structure inputs
// -----------------------------------------------------------------------------

// trendAligned compares the POI direction with the external or intraday bias
func (o *Orchestrator) trendAligned(dir contracts.Direction) bool {
	bias := o.bias
	if o.mc.MacroBias != nil {
		bias = o.mc.MacroBias
	}
	return bias != nil && *bias == dir
}

// regime is neutral unless the HTF regime toggle is on and a regime was supplied
func (o *Orchestrator) regime() contracts.Regime {
	if !o.toggle(strategyconfig.ToggleHTFRegime) || o.mc.Regime == "" {
		return contracts.RegimeNeutral
	}
	return o.mc.Regime
}

// velezFlags computes the tier-2 momentum flags on 2m bars, each gated by its own toggle
func (o *Orchestrator) velezFlags(poi contracts.POI, price float64) market.VelezFlags {
	if !o.toggle(strategyconfig.ToggleVelez) {
		return market.VelezFlags{}
	}

	var flags market.VelezFlags
	if o.mc.Velez != nil {
		flags = *o.mc.Velez
	} else {
		src := o.bars2m
		if len(src) == 0 {
			src = o.bars
		}
		closes := market.Closes(src)
		if sma20, ok := market.SMA(closes, o.cfg.Velez.SMA20Period); ok {
			flags.SMAHalt = market.SMAHalt(sma20, poi, price)
		}
		flags.MicroTrend = market.MicroTrend(closes, o.cfg.Velez.SMA20Period, poi.Direction)
		flags.Flat200 = market.Flat200(closes, o.cfg.Velez.SMA200Period, poi, price)
		flags.Elephant = market.ElephantBar(o.bars, poi.Direction)
	}

	flags.SMAHalt = flags.SMAHalt && o.toggle(strategyconfig.ToggleSMAHalt)
	flags.Flat200 = flags.Flat200 && o.toggle(strategyconfig.ToggleFlat200)
	flags.Elephant = flags.Elephant && o.toggle(strategyconfig.ToggleElephantBar)
	flags.MicroTrend = flags.MicroTrend && o.toggle(strategyconfig.ToggleMicroTrend)
	return flags
}

// liquidityNear reports a resting liquidity level (PDH/PDL, session extremes) within one ATR of target
func (o *Orchestrator) liquidityNear(target float64) bool {
	if o.atr <= 0 {
		return false
	}
	levels := []float64{o.prevDayHigh(), o.prevDayLow()}
	if hi, lo, ok := o.session.Range(); ok {
		levels = append(levels, hi, lo)
	}
	for _, l := range levels {
		if l > 0 && math.Abs(target-l) <= o.atr {
			return true
		}
	}
	return false
}

func (o *Orchestrator) prevDayHigh() float64 {
	if o.mc.PrevDayHigh > 0 {
		return o.mc.PrevDayHigh
	}
	return o.prevHigh
}

func (o *Orchestrator) prevDayLow() float64 {
	if o.mc.PrevDayLow > 0 {
		return o.mc.PrevDayLow
	}
	return o.prevLow
}
