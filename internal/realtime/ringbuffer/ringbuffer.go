package ringbuffer

import (
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
)

// DefaultCapacity holds roughly a full RTH session of ES prints
const DefaultCapacity = 500_000

// RingBuffer is a fixed-capacity circular store of trade ticks
// ⭐ SSOT: 체결 데이터는 여기에만 저장. 모든 분석은 Window() 복사본을 읽음
//
// 내부 동기화 없음: 호출자가 단일 결정 루프에서 직렬화해야 함
type RingBuffer struct {
	buf   []contracts.Tick
	head  int // next write position
	count int // valid records (capped at capacity)
}

// New preallocates a buffer. capacity <= 0 panics.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("ringbuffer: capacity must be positive")
	}
	return &RingBuffer{buf: make([]contracts.Tick, capacity)}
}

// Capacity returns the fixed capacity
func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

// Count returns the number of valid records
func (r *RingBuffer) Count() int {
	return r.count
}

// Push stores one tick. O(1).
func (r *RingBuffer) Push(t contracts.Tick) {
	r.buf[r.head] = t
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	if r.count < len(r.buf) {
		r.count++
	}
}

// PushBatch stores a contiguous batch, splitting across the wrap boundary.
// A batch of capacity or more keeps only its last capacity records.
func (r *RingBuffer) PushBatch(ticks []contracts.Tick) {
	n := len(ticks)
	if n == 0 {
		return
	}
	capacity := len(r.buf)
	if n >= capacity {
		ticks = ticks[n-capacity:]
		n = capacity
	}

	end := r.head + n
	if end <= capacity {
		copy(r.buf[r.head:end], ticks)
	} else {
		first := capacity - r.head
		copy(r.buf[r.head:], ticks[:first])
		copy(r.buf[:n-first], ticks[first:])
	}

	r.head = end % capacity
	r.count += n
	if r.count > capacity {
		r.count = capacity
	}
}

// Window returns a chronological copy of records with ts >= latest - d
func (r *RingBuffer) Window(d time.Duration) []contracts.Tick {
	if r.count == 0 {
		return []contracts.Tick{}
	}

	latest := r.buf[r.latestIndex()].TimestampNs
	cutoff := latest - d.Nanoseconds()

	// 최신 레코드부터 역방향으로 경계를 찾아 윈도우 크기만큼만 복사
	n := 0
	for n < r.count {
		if r.at(r.count-1-n).TimestampNs < cutoff {
			break
		}
		n++
	}

	out := make([]contracts.Tick, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// Snapshot returns all valid records in chronological order
func (r *RingBuffer) Snapshot() []contracts.Tick {
	out := make([]contracts.Tick, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	// wrapped: oldest starts at head
	k := copy(out, r.buf[r.head:])
	copy(out[k:], r.buf[:r.head])
	return out
}

// IsReady reports whether the newest-oldest span is at least min.
// Count alone never satisfies readiness.
func (r *RingBuffer) IsReady(min time.Duration) bool {
	if r.count < 2 {
		return false
	}
	return r.Span() >= min
}

// Span returns newest - oldest timestamp (0 when fewer than 2 records)
func (r *RingBuffer) Span() time.Duration {
	if r.count < 2 {
		return 0
	}
	return time.Duration(r.at(r.count-1).TimestampNs - r.at(0).TimestampNs)
}

// Latest returns the most recently pushed tick
func (r *RingBuffer) Latest() (contracts.Tick, bool) {
	if r.count == 0 {
		return contracts.Tick{}, false
	}
	return r.buf[r.latestIndex()], true
}

// Clear resets cursor and count. Storage is neither reallocated nor zeroed.
func (r *RingBuffer) Clear() {
	r.head = 0
	r.count = 0
}

// at returns the i-th oldest valid record (0 = oldest)
func (r *RingBuffer) at(i int) contracts.Tick {
	if r.count < len(r.buf) {
		return r.buf[i]
	}
	idx := r.head + i
	if idx >= len(r.buf) {
		idx -= len(r.buf)
	}
	return r.buf[idx]
}

func (r *RingBuffer) latestIndex() int {
	if r.head == 0 {
		return len(r.buf) - 1
	}
	return r.head - 1
}
