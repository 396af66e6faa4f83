package predator

import (
	"time"

	"github.com/wonny/flof/backend/internal/realtime/ringbuffer"
)

const (
	velocityMinTicks = 100
	velocityMinSpan  = 30 * time.Second
	velocityRecent   = 5 * time.Second
)

// TapeVelocity returns the last-5s tick count as a percentage of the
// buffer-wide baseline rate per 5s. 0 when fewer than 100 ticks or
// less than 30s of data are stored.
func TapeVelocity(rb *ringbuffer.RingBuffer) float64 {
	if rb.Count() < velocityMinTicks {
		return 0
	}
	span := rb.Span()
	if span < velocityMinSpan {
		return 0
	}

	recent := len(rb.Window(velocityRecent))
	if recent == 0 {
		return 0
	}

	baseline := float64(rb.Count()) / span.Seconds() * velocityRecent.Seconds()
	if baseline <= 0 {
		return 0
	}
	return float64(recent) / baseline * 100
}
