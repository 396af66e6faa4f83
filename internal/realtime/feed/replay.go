package feed

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/flof/backend/pkg/logger"
)

// RecordHandler consumes one record. Returning an error stops the replay.
type RecordHandler func(rec Record) error

// ReplayStats summarizes a replay run
type ReplayStats struct {
	Records  int           `json:"records"`
	Ticks    int           `json:"ticks"`
	Bars     int           `json:"bars"`
	Contexts int           `json:"contexts"`
	Duration time.Duration `json:"duration"`
}

// Replayer streams a JSONL file into a handler, optionally paced
// ⭐ SSOT: 녹화 데이터 재생은 이 구조체에서만 (backtest, paper run 공용)
type Replayer struct {
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewReplayer creates a replayer. ratePerSec <= 0 replays as fast as possible.
func NewReplayer(ratePerSec float64, log *logger.Logger) *Replayer {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Replayer{logger: log}
	if ratePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return r
}

// Replay reads every record from src in order
func (r *Replayer) Replay(ctx context.Context, src io.Reader, handle RecordHandler) (ReplayStats, error) {
	start := time.Now()
	var stats ReplayStats
	dec := NewDecoder(src)

	for {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				stats.Duration = time.Since(start)
				return stats, err
			}
		}

		if err := handle(rec); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		stats.Records++
		switch rec.Type {
		case RecordTick:
			stats.Ticks++
		case RecordBar:
			stats.Bars++
		case RecordContext:
			stats.Contexts++
		}
	}

	stats.Duration = time.Since(start)
	r.logger.WithFields(map[string]interface{}{
		"records":  stats.Records,
		"ticks":    stats.Ticks,
		"bars":     stats.Bars,
		"duration": stats.Duration.String(),
	}).Info("Replay finished")
	return stats, nil
}
