// Package metrics exposes the engine's Prometheus collectors.
//
//   - flof_ticks_total{instrument}            ingested trade ticks
//   - flof_bars_total{instrument}             processed bars
//   - flof_signals_total{grade}               scored signals that fired
//   - flof_rejections_total{gate}             gate / grade rejections
//   - flof_positions_closed_total{reason}     closes split by exit reason
//   - flof_state_transitions_total{from,to}   predator transitions
//   - flof_risk_breaches_total{pillar}        Nuclear Flatten triggers
//   - flof_predator_state                     current state (0 dormant .. 3 kill)
//   - flof_equity / flof_open_positions       running account gauges
//   - flof_feed_heartbeat_age_seconds         feed heartbeat age
//   - flof_scoring_duration_seconds           confluence scoring latency
//   - flof_journal_write_failures_total       journal writes dropped after retries
//   - flof_ws_clients                         connected event stream clients
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_ticks_total", Help: "Trade ticks ingested"},
		[]string{"instrument"},
	)
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_bars_total", Help: "Bars processed by the decision loop"},
		[]string{"instrument"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_signals_total", Help: "Signals that passed every gate and were executed"},
		[]string{"grade"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_rejections_total", Help: "Entry attempts rejected, by gate"},
		[]string{"gate"},
	)
	PositionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_positions_closed_total", Help: "Closed positions by exit reason"},
		[]string{"reason"},
	)
	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_state_transitions_total", Help: "Predator state transitions"},
		[]string{"from", "to"},
	)
	RiskBreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flof_risk_breaches_total", Help: "Risk overlord breaches (Nuclear Flatten)"},
		[]string{"pillar"},
	)

	PredatorState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "flof_predator_state", Help: "Predator state (0 dormant, 1 scouting, 2 stalking, 3 kill)"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "flof_equity", Help: "Running account equity"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "flof_open_positions", Help: "Open managed positions"},
	)
	FeedHeartbeatAge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "flof_feed_heartbeat_age_seconds", Help: "Seconds since the last feed heartbeat"},
	)
	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "flof_ws_clients", Help: "Connected websocket event clients"},
	)

	JournalWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "flof_journal_write_failures_total", Help: "Journal writes dropped after retries"},
	)

	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flof_scoring_duration_seconds",
			Help:    "Confluence scoring latency",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005},
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, BarsTotal, SignalsTotal, RejectionsTotal,
		PositionsClosedTotal, StateTransitionsTotal, RiskBreachesTotal,
		PredatorState, Equity, OpenPositions, FeedHeartbeatAge,
		WSClients, JournalWriteFailuresTotal, ScoringDuration,
	)
}

// Handler returns the Prometheus exposition handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScoring records one scoring pass started at start
func ObserveScoring(start time.Time) {
	ScoringDuration.Observe(time.Since(start).Seconds())
}
