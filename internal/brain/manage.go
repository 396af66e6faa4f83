package brain

import (
	"context"
	"errors"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/internal/strategyconfig"
)

// managePositions walks every open position through stops, targets, phases and conditional exits.
// 순서: 스톱 → 타겟 → 유리 극값 → 마이크로 트레일 → Phase1 부분청산 → Phase2 트레일 → 클라이맥스 → T18 → T48 → T35
func (o *Orchestrator) managePositions(ctx context.Context, b contracts.Bar) {
	ns := b.TimestampNs
	price := b.Close

	for _, pos := range o.trades.Positions() {
		if pos.StopHit(b.High, b.Low) {
			o.closePosition(ctx, pos, pos.StopPrice, execution.ExitStopHit, ns)
			continue
		}
		if pos.TargetHit(b.High, b.Low) {
			o.closePosition(ctx, pos, pos.TargetPrice, execution.ExitTargetHit, ns)
			continue
		}

		favorable := b.High
		if pos.Direction == contracts.Short {
			favorable = b.Low
		}
		pos.UpdateFavorable(favorable, ns)

		if mt := o.trades.CheckMicroTrail(pos, favorable); mt != nil {
			o.trades.ApplyMicroTrail(pos, mt)
		}

		if o.toggle(strategyconfig.TogglePhase1Partial) {
			if pe := o.trades.EvaluatePhase1(pos, price); pe != nil {
				if pe.ClosesPosition {
					o.closePosition(ctx, pos, pe.Price, execution.ExitPhase1Target, ns)
					continue
				}
				o.trades.ApplyPhase1(pos, pe)
				continue
			}
		}

		if pos.Phase == contracts.Phase2Runner {
			if su := o.trades.EvaluatePhase2(pos, price, o.bosLevel(), o.mc.LVN); su != nil {
				o.trades.ApplyStopUpdate(pos, su)
			}

			absorption := 0.0
			if o.analyzer.DetectAbsorption(absorptionWindow) {
				absorption = 1.0
			}
			// 0.5 매도 비중 = 정체 → 0
			delta := o.analyzer.SellDeltaPct(deltaWindow, deltaMinTicks) - 0.5
			if sig := o.trades.EvaluateClimax(pos, absorption, delta, price, o.near200(price)); sig != nil {
				o.closePosition(ctx, pos, price, sig.Reason, ns)
				continue
			}
		}

		if o.toggle(strategyconfig.ToggleTapeFailure) && o.tapeVolumeSufficient(b) {
			adverse := o.analyzer.AdverseDeltaPct(pos.Direction, deltaWindow, deltaMinTicks)
			if sig := o.trades.CheckTapeFailure(pos, adverse, o.smaHealthy(price, pos.Direction)); sig != nil {
				o.closePosition(ctx, pos, price, sig.Reason, ns)
				continue
			}
		}

		if o.toggle(strategyconfig.ToggleToxicityExit) {
			adverse := o.analyzer.AdverseDeltaPct(pos.Direction, deltaWindow, deltaMinTicks)
			if sig := o.trades.CheckToxicityExit(pos, adverse); sig != nil {
				o.closePosition(ctx, pos, price, sig.Reason, ns)
				continue
			}
		}

		if o.toggle(strategyconfig.ToggleToxicityTimer) {
			if sig := o.trades.CheckToxicityTimer(pos, ns); sig != nil {
				o.closePosition(ctx, pos, price, sig.Reason, ns)
				continue
			}
		}
	}
}

// closePosition exits at the broker and books the result everywhere
func (o *Orchestrator) closePosition(ctx context.Context, pos *execution.ManagedPosition, price float64, reason string, ns int64) {
	exit := price
	bctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	fill, err := o.broker.ClosePosition(bctx, pos.ID, pos.RemainingContracts, price)
	cancel()
	switch {
	case err == nil && fill != nil && fill.Price > 0:
		exit = fill.Price
	case errors.Is(err, execution.ErrUnknownPosition):
		// 이미 취소/청산된 브래킷 (Nuclear Flatten 의 CancelAll 이후)
	case err != nil:
		o.logger.WithError(err).WithField("position_id", pos.ID).Error("Broker close failed, booking at model price")
	}

	ct := o.trades.Close(pos, exit, reason, ns)
	o.closed = append(o.closed, ct)

	o.equity.Apply(ct.PnL, ns)
	daily := o.equity.DailyPnLPct()
	o.overlord.UpdateDailyPnL(daily)
	o.gate.UpdateDailyPnL(daily)

	// 섀도 모드는 연패 집계 제외 (섀도 체결로 Nuclear Flatten 방지)
	if !o.shadow {
		switch {
		case ct.PnL > 0:
			o.overlord.RecordWin()
			o.gate.RecordWin()
		case ct.PnL < 0:
			o.overlord.RecordLoss()
			o.gate.RecordLoss()
		}
	}

	o.gate.RemovePosition(pos.ID)
	o.overlord.UpdatePositions(o.trades.Count())

	metrics.PositionsClosedTotal.WithLabelValues(reason).Inc()
	metrics.OpenPositions.Set(float64(o.trades.Count()))
	metrics.Equity.Set(o.equity.Equity())

	if rec, ok := o.openRecords[pos.ID]; ok {
		delete(o.openRecords, pos.ID)
		rec.StopPrice = ct.Position.StopPrice
		rec.Closed = true
		rec.ExitPrice = ct.ExitPrice
		rec.ExitReason = reason
		rec.ExitNs = ns
		rec.PnL = ct.PnL
		rec.RMultiple = ct.RMultiple
		o.saveTrade(ctx, rec)
	}

	o.publish(contracts.EventPositionClosed, ns, map[string]interface{}{
		"position_id": pos.ID,
		"reason":      reason,
		"exit_price":  ct.ExitPrice,
		"pnl":         ct.PnL,
		"r_multiple":  ct.RMultiple,
	})
}

// closeAll closes every open position at the last price
func (o *Orchestrator) closeAll(ctx context.Context, reason string, ns int64) {
	for _, pos := range o.trades.Positions() {
		o.closePosition(ctx, pos, o.lastPrice, reason, ns)
	}
}

// saveTrade journals a trade. Journal failures never block trading.
func (o *Orchestrator) saveTrade(ctx context.Context, rec audit.TradeRecord) {
	if err := o.journal.SaveTrade(ctx, rec); err != nil {
		o.logger.WithError(err).WithField("position_id", rec.PositionID).Error("Failed to journal trade")
	}
}

// -----------------------------------------------------------------------------
// exit inputs
// -----------------------------------------------------------------------------

// bosLevel is the structural trail anchor (T19 off falls back to the fixed-R trail)
func (o *Orchestrator) bosLevel() *float64 {
	if !o.toggle(strategyconfig.ToggleStructuralTrail) {
		return nil
	}
	return o.mc.BOS
}

// near200 widens the climax thresholds near the 200-SMA (T22)
func (o *Orchestrator) near200(price float64) bool {
	if !o.toggle(strategyconfig.Toggle200SMAExitWatch) {
		return false
	}
	if o.mc.Near200 != nil {
		return *o.mc.Near200
	}
	return market.Near200(market.Closes(o.bars2m), o.cfg.Velez.SMA200Period, price, o.cfg.Velez.Near200Pct)
}

// tapeVolumeSufficient skips T18 on bars thinner than a fraction of the session average
func (o *Orchestrator) tapeVolumeSufficient(b contracts.Bar) bool {
	avg := o.session.AvgBarVolume()
	if avg <= 0 {
		return true
	}
	return b.Volume >= avg*o.cfg.Stops.T18VolumeThresholdPct
}

// smaHealthy is the T21 20-SMA health check on 2m closes
func (o *Orchestrator) smaHealthy(price float64, dir contracts.Direction) bool {
	if !o.toggle(strategyconfig.ToggleSMAHealth) {
		return true
	}
	return market.SMAHealthy(market.Closes(o.bars2m), o.cfg.Velez.SMA20Period, price, dir)
}
