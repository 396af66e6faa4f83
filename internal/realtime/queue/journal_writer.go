package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/pkg/logger"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("journal writer closed")

// writeJob is one queued journal write. flush markers carry done only.
type writeJob struct {
	trade     *audit.TradeRecord
	rejection *audit.RejectionRecord
	retries   int
	done      chan struct{}
}

// JournalWriter moves journal writes off the decision loop.
// It implements audit.Store: saves are queued and applied in order by one worker.
// ⭐ SSOT: 저널 비동기 동기화는 이 구조체에서만
type JournalWriter struct {
	store      audit.Store
	jobs       chan writeJob
	maxRetries int
	retryDelay time.Duration
	logger     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// NewJournalWriter creates a writer over store and starts its worker
func NewJournalWriter(store audit.Store, bufferSize int, log *logger.Logger) *JournalWriter {
	if log == nil {
		log = logger.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	w := &JournalWriter{
		store:      store,
		jobs:       make(chan writeJob, bufferSize),
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
		logger:     log,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// SaveTrade queues a trade upsert
func (w *JournalWriter) SaveTrade(ctx context.Context, t audit.TradeRecord) error {
	return w.enqueue(ctx, writeJob{trade: &t})
}

// SaveRejection queues a rejection insert
func (w *JournalWriter) SaveRejection(ctx context.Context, r audit.RejectionRecord) error {
	return w.enqueue(ctx, writeJob{rejection: &r})
}

// ListTrades flushes pending writes and reads from the store
func (w *JournalWriter) ListTrades(ctx context.Context) ([]audit.TradeRecord, error) {
	if err := w.Flush(ctx); err != nil && !errors.Is(err, ErrClosed) {
		return nil, err
	}
	return w.store.ListTrades(ctx)
}

// ListRejections flushes pending writes and reads from the store
func (w *JournalWriter) ListRejections(ctx context.Context) ([]audit.RejectionRecord, error) {
	if err := w.Flush(ctx); err != nil && !errors.Is(err, ErrClosed) {
		return nil, err
	}
	return w.store.ListRejections(ctx)
}

// Flush blocks until every write queued before the call is applied
func (w *JournalWriter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := w.enqueue(ctx, writeJob{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued writes
func (w *JournalWriter) Pending() int {
	return len(w.jobs)
}

// Close drains the queue and closes the underlying store
func (w *JournalWriter) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	w.wg.Wait()
	return w.store.Close()
}

// enqueue never drops a record: a full buffer falls back to a synchronous write
func (w *JournalWriter) enqueue(ctx context.Context, job writeJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}

	select {
	case w.jobs <- job:
		return nil
	default:
	}

	if job.done != nil {
		select {
		case w.jobs <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.logger.Warn("Journal queue full, writing synchronously")
	return w.apply(ctx, job)
}

// run is the single worker. Order of writes is preserved.
func (w *JournalWriter) run() {
	defer w.wg.Done()

	for job := range w.jobs {
		if job.done != nil {
			close(job.done)
			continue
		}
		w.process(job)
	}
	w.logger.Debug("Journal writer stopped")
}

// process applies a job with retries
func (w *JournalWriter) process(job writeJob) {
	ctx := context.Background()
	for {
		err := w.apply(ctx, job)
		if err == nil {
			return
		}

		job.retries++
		if job.retries > w.maxRetries {
			metrics.JournalWriteFailuresTotal.Inc()
			w.logger.WithError(err).WithFields(map[string]interface{}{
				"kind":    job.kind(),
				"retries": job.retries - 1,
			}).Error("Journal write failed after retries")
			return
		}
		time.Sleep(w.retryDelay * time.Duration(job.retries))
	}
}

func (w *JournalWriter) apply(ctx context.Context, job writeJob) error {
	switch {
	case job.trade != nil:
		return w.store.SaveTrade(ctx, *job.trade)
	case job.rejection != nil:
		return w.store.SaveRejection(ctx, *job.rejection)
	}
	return nil
}

func (j writeJob) kind() string {
	if j.trade != nil {
		return "trade"
	}
	return "rejection"
}
