package backtest

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wonny/flof/backend/internal/execution"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Costs is the execution cost model applied during a backtest
type Costs struct {
	CommissionPerContract float64 `yaml:"commission_per_contract" json:"commission_per_contract"` // 편도, 계약당
	SlippageTicks         int     `yaml:"slippage_ticks" json:"slippage_ticks"`                   // 불리한 방향 체결 틱
}

// DefaultCosts returns typical ES retail costs
func DefaultCosts() Costs {
	return Costs{CommissionPerContract: 2.25}
}

// Stats holds simulation statistics
type Stats struct {
	Entries         int     `json:"entries"`
	Exits           int     `json:"exits"`
	Contracts       int     `json:"contracts"` // 편도 계약 합계
	TotalCommission float64 `json:"total_commission"`
}

// Simulator fills orders through the sim broker and books commissions per fill
// ⭐ SSOT: 백테스팅 체결 비용은 여기서만
type Simulator struct {
	broker *execution.SimBroker
	costs  Costs
	logger *logger.Logger

	mu         sync.Mutex
	stats      Stats
	commission decimal.Decimal
}

// NewSimulator creates a simulator on the given tick grid
func NewSimulator(tickSize float64, costs Costs, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Simulator{
		broker:     execution.NewSimBroker(tickSize, costs.SlippageTicks, log.WithComponent("sim_broker")),
		costs:      costs,
		logger:     log,
		commission: decimal.Zero,
	}
}

// Submit fills the entry and charges commission
func (s *Simulator) Submit(ctx context.Context, positionID string, bracket execution.OCOBracket) (*execution.Fill, error) {
	fill, err := s.broker.Submit(ctx, positionID, bracket)
	if err != nil {
		return nil, err
	}
	s.charge(fill.Size, true)
	return fill, nil
}

// ClosePosition fills the exit and charges commission.
// A position whose legs were already cancelled still exits at the model price, so it is charged too.
func (s *Simulator) ClosePosition(ctx context.Context, positionID string, size int, price float64) (*execution.Fill, error) {
	fill, err := s.broker.ClosePosition(ctx, positionID, size, price)
	switch {
	case err == nil:
		s.charge(fill.Size, false)
	case errors.Is(err, execution.ErrUnknownPosition):
		s.charge(size, false)
	}
	return fill, err
}

// CancelAll cancels every working bracket
func (s *Simulator) CancelAll(ctx context.Context) error {
	return s.broker.CancelAll(ctx)
}

// Fills returns every sim fill
func (s *Simulator) Fills() []execution.Fill {
	return s.broker.Fills()
}

// GetStats returns simulation statistics
func (s *Simulator) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.TotalCommission = s.commission.InexactFloat64()
	return out
}

func (s *Simulator) charge(size int, entry bool) {
	if size <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry {
		s.stats.Entries++
	} else {
		s.stats.Exits++
	}
	s.stats.Contracts += size
	s.commission = s.commission.Add(decimal.NewFromFloat(s.costs.CommissionPerContract).Mul(decimal.NewFromInt(int64(size))))
}
