package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/audit"
)

// flakyStore fails the first n trade writes
type flakyStore struct {
	*audit.MemoryStore
	mu       sync.Mutex
	failures int
	closed   bool
}

func (s *flakyStore) SaveTrade(ctx context.Context, t audit.TradeRecord) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("db unavailable")
	}
	s.mu.Unlock()
	return s.MemoryStore.SaveTrade(ctx, t)
}

func (s *flakyStore) Close() error {
	s.closed = true
	return nil
}

func newWriter(failures int) (*JournalWriter, *flakyStore) {
	store := &flakyStore{MemoryStore: audit.NewMemoryStore(), failures: failures}
	w := NewJournalWriter(store, 16, nil)
	w.retryDelay = time.Millisecond
	return w, store
}

func TestJournalWriterPreservesOrder(t *testing.T) {
	w, _ := newWriter(0)
	ctx := context.Background()

	require.NoError(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P1", EntryNs: 1}))
	require.NoError(t, w.SaveRejection(ctx, audit.RejectionRecord{TimestampNs: 2, Gate: "G3_chop"}))
	require.NoError(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P1", EntryNs: 1, Closed: true, PnL: 50}))

	trades, err := w.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Closed, "upsert applied after the open record")
	assert.Equal(t, 50.0, trades[0].PnL)

	rejections, err := w.ListRejections(ctx)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Zero(t, w.Pending())
}

func TestJournalWriterRetries(t *testing.T) {
	w, _ := newWriter(2)
	ctx := context.Background()

	require.NoError(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P1"}))
	trades, err := w.ListTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestJournalWriterGivesUpAfterMaxRetries(t *testing.T) {
	w, _ := newWriter(10)
	ctx := context.Background()

	require.NoError(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P1"}))
	trades, err := w.ListTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestJournalWriterClose(t *testing.T) {
	w, store := newWriter(0)
	ctx := context.Background()

	require.NoError(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P1"}))
	require.NoError(t, w.Close())
	assert.True(t, store.closed)

	assert.ErrorIs(t, w.SaveTrade(ctx, audit.TradeRecord{PositionID: "P2"}), ErrClosed)
	assert.ErrorIs(t, w.Flush(ctx), ErrClosed)

	// 닫힌 뒤에도 조회는 저장소로 위임
	trades, err := w.ListTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}
