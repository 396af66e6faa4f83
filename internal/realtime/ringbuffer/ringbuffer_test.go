package ringbuffer

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/internal/contracts"
)

const sec = int64(time.Second)

func tick(tsSec int64, price float64) contracts.Tick {
	return contracts.Tick{TimestampNs: tsSec * sec, Price: price, Size: 1, Side: contracts.SideBuy}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-1) })
}

func TestEmptyBuffer(t *testing.T) {
	rb := New(8)

	assert.Equal(t, 0, rb.Count())
	assert.Empty(t, rb.Window(time.Minute))
	assert.NotNil(t, rb.Window(time.Minute))
	assert.False(t, rb.IsReady(0))
	assert.Equal(t, time.Duration(0), rb.Span())

	_, ok := rb.Latest()
	assert.False(t, ok)
}

func TestPushEvictsOldestFIFO(t *testing.T) {
	rb := New(5)
	for i := int64(0); i < 12; i++ {
		rb.Push(tick(i, float64(i)))
	}

	require.Equal(t, 5, rb.Count())
	snap := rb.Snapshot()
	require.Len(t, snap, 5)
	for i, tk := range snap {
		assert.Equal(t, float64(7+i), tk.Price, "oldest 7 records must be evicted in order")
	}

	latest, ok := rb.Latest()
	require.True(t, ok)
	assert.Equal(t, 11.0, latest.Price)
}

func TestWindowSortedAndBounded(t *testing.T) {
	rb := New(10)
	for i := int64(0); i < 25; i++ {
		rb.Push(tick(i, float64(i)))
	}

	win := rb.Window(4 * time.Second)
	require.Len(t, win, 5) // ts 20..24

	assert.True(t, sort.SliceIsSorted(win, func(i, j int) bool {
		return win[i].TimestampNs < win[j].TimestampNs
	}))
	for _, tk := range win {
		assert.GreaterOrEqual(t, tk.TimestampNs, 24*sec-4*sec)
	}
}

func TestWindowIsACopy(t *testing.T) {
	rb := New(4)
	rb.Push(tick(1, 100))
	win := rb.Window(time.Minute)
	win[0].Price = -1

	latest, _ := rb.Latest()
	assert.Equal(t, 100.0, latest.Price)
}

func TestPushBatchAcrossWrap(t *testing.T) {
	rb := New(6)
	for i := int64(0); i < 4; i++ {
		rb.Push(tick(i, float64(i)))
	}

	rb.PushBatch([]contracts.Tick{tick(4, 4), tick(5, 5), tick(6, 6), tick(7, 7)})

	require.Equal(t, 6, rb.Count())
	prices := make([]float64, 0, 6)
	for _, tk := range rb.Snapshot() {
		prices = append(prices, tk.Price)
	}
	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7}, prices)
}

func TestPushBatchLargerThanCapacity(t *testing.T) {
	rb := New(3)
	batch := make([]contracts.Tick, 0, 10)
	for i := int64(0); i < 10; i++ {
		batch = append(batch, tick(i, float64(i)))
	}
	rb.PushBatch(batch)

	require.Equal(t, 3, rb.Count())
	snap := rb.Snapshot()
	assert.Equal(t, 7.0, snap[0].Price)
	assert.Equal(t, 9.0, snap[2].Price)

	// continues writing correctly after a full-capacity batch
	rb.Push(tick(10, 10))
	assert.Equal(t, 8.0, rb.Snapshot()[0].Price)
}

func TestIsReadyUsesTimeSpanNotCount(t *testing.T) {
	rb := New(1000)
	for i := 0; i < 500; i++ {
		rb.Push(contracts.Tick{TimestampNs: int64(i) * int64(time.Millisecond), Price: 1, Size: 1})
	}
	// 500 records but only ~0.5s of data
	assert.False(t, rb.IsReady(30*time.Second))

	rb.Push(tick(31, 1))
	assert.True(t, rb.IsReady(30*time.Second))
}

func TestClearResetsWithoutRealloc(t *testing.T) {
	rb := New(4)
	for i := int64(0); i < 6; i++ {
		rb.Push(tick(i, float64(i)))
	}
	rb.Clear()

	assert.Equal(t, 0, rb.Count())
	assert.Equal(t, 4, rb.Capacity())
	assert.Empty(t, rb.Window(time.Hour))

	rb.Push(tick(100, 42))
	assert.Equal(t, []contracts.Tick{tick(100, 42)}, rb.Snapshot())
}

func BenchmarkPush(b *testing.B) {
	rb := New(DefaultCapacity)
	tk := contracts.Tick{TimestampNs: 1, Price: 5000, Size: 1, Side: 1}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tk.TimestampNs = int64(i)
		rb.Push(tk)
	}
}

// 결정 루프 예산: push < 1µs, 할당 없음
func TestPushLatencyBudget(t *testing.T) {
	res := testing.Benchmark(BenchmarkPush)
	require.Positive(t, res.N)
	assert.Less(t, res.NsPerOp(), int64(time.Microsecond), "push took %dns/op", res.NsPerOp())
	assert.Zero(t, res.AllocsPerOp())
}
