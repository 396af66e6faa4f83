package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps the journal in process memory (backtests, tests)
type MemoryStore struct {
	mu         sync.RWMutex
	trades     []TradeRecord
	index      map[string]int
	rejections []RejectionRecord
}

// NewMemoryStore creates an empty in-memory journal
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

// SaveTrade upserts by position id, keeping the original entry order
func (s *MemoryStore) SaveTrade(_ context.Context, t TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ShadowGatesFailed = append([]string(nil), t.ShadowGatesFailed...)
	if i, ok := s.index[t.PositionID]; ok {
		s.trades[i] = t
		return nil
	}
	s.index[t.PositionID] = len(s.trades)
	s.trades = append(s.trades, t)
	return nil
}

// SaveRejection appends a rejection
func (s *MemoryStore) SaveRejection(_ context.Context, r RejectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, r)
	return nil
}

// ListTrades returns a copy of all trades
func (s *MemoryStore) ListTrades(_ context.Context) ([]TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out, nil
}

// ListRejections returns a copy of all rejections
func (s *MemoryStore) ListRejections(_ context.Context) ([]RejectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RejectionRecord, len(s.rejections))
	copy(out, s.rejections)
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
