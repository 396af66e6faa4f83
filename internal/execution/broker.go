package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// ErrUnknownPosition is returned when closing a position the broker does not hold
var ErrUnknownPosition = errors.New("unknown position")

// Broker defines the order routing surface used by the engine
// ⭐ SSOT: 주문 라우팅 인터페이스는 여기서만 정의
type Broker interface {
	// Submit places an entry with its OCO bracket and returns the entry fill
	Submit(ctx context.Context, positionID string, bracket OCOBracket) (*Fill, error)

	// ClosePosition exits the remaining contracts at market
	ClosePosition(ctx context.Context, positionID string, contracts int, price float64) (*Fill, error)

	// CancelAll cancels every working order
	CancelAll(ctx context.Context) error
}

// Fill is an execution report
type Fill struct {
	OrderID     string              `json:"order_id"`
	PositionID  string              `json:"position_id"`
	Direction   contracts.Direction `json:"direction"`
	Price       float64             `json:"price"`
	Size        int                 `json:"size"`
	TimestampNs int64               `json:"ts"`
}

// SimBroker fills immediately with optional adverse slippage.
// 백테스트와 페이퍼 run 모드에서 사용
type SimBroker struct {
	mu            sync.Mutex
	tickSize      float64
	slippageTicks int
	log           *logger.Logger
	now           func() time.Time

	working map[string]OCOBracket // positionID -> 보호 주문
	fills   []Fill
}

// NewSimBroker creates a simulated broker
func NewSimBroker(tickSize float64, slippageTicks int, log *logger.Logger) *SimBroker {
	if log == nil {
		log = logger.NewNop()
	}
	return &SimBroker{
		tickSize:      tickSize,
		slippageTicks: slippageTicks,
		log:           log,
		now:           time.Now,
		working:       make(map[string]OCOBracket),
	}
}

// Submit fills the entry and keeps the OCO legs working
func (b *SimBroker) Submit(ctx context.Context, positionID string, bracket OCOBracket) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fill := Fill{
		OrderID:     uuid.NewString(),
		PositionID:  positionID,
		Direction:   bracket.Entry.Direction,
		Price:       b.slip(bracket.Entry.Price, bracket.Entry.Direction),
		Size:        bracket.Entry.Size,
		TimestampNs: b.now().UnixNano(),
	}
	b.working[positionID] = bracket
	b.fills = append(b.fills, fill)

	b.log.WithFields(map[string]interface{}{
		"position_id": positionID,
		"order_id":    fill.OrderID,
		"price":       fill.Price,
		"size":        fill.Size,
	}).Debug("Sim entry filled")
	return &fill, nil
}

// ClosePosition fills the exit and cancels the position's OCO legs
func (b *SimBroker) ClosePosition(ctx context.Context, positionID string, size int, price float64) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bracket, ok := b.working[positionID]
	if !ok {
		return nil, ErrUnknownPosition
	}
	delete(b.working, positionID)

	exitDir := bracket.Entry.Direction.Opposite()
	fill := Fill{
		OrderID:     uuid.NewString(),
		PositionID:  positionID,
		Direction:   exitDir,
		Price:       b.slip(price, exitDir),
		Size:        size,
		TimestampNs: b.now().UnixNano(),
	}
	b.fills = append(b.fills, fill)
	return &fill, nil
}

// CancelAll drops every working bracket
func (b *SimBroker) CancelAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.working)
	b.working = make(map[string]OCOBracket)
	b.log.WithField("cancelled", n).Warn("Sim broker cancelled all working orders")
	return nil
}

// Working returns the number of positions with working OCO legs
func (b *SimBroker) Working() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.working)
}

// Fills returns a copy of all fills
func (b *SimBroker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Fill, len(b.fills))
	copy(out, b.fills)
	return out
}

// slip moves the price against the order direction
func (b *SimBroker) slip(price float64, dir contracts.Direction) float64 {
	if b.slippageTicks == 0 {
		return price
	}
	return roundToTick(price+dir.Sign()*float64(b.slippageTicks)*b.tickSize, b.tickSize)
}
