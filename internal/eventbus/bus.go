package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/pkg/logger"
)

// DefaultQueueDepth is the async queue bound
const DefaultQueueDepth = 1000

// Handler receives one event
type Handler func(evt contracts.Event)

// NewEvent stamps an event with a fresh id
func NewEvent(t contracts.EventType, source string, tsNs int64, payload map[string]interface{}) contracts.Event {
	return contracts.Event{
		ID:          uuid.NewString(),
		Type:        t,
		TimestampNs: tsNs,
		Source:      source,
		Payload:     payload,
	}
}

// Bus fans events out to subscribers.
// ⭐ SSOT: 엔진 알림은 이 버스를 통해서만 (contracts.Notifier 구현)
//
// 전달 규칙:
//   - RISK_LIMIT_BREACHED: 큐 우회, 모든 구독자에게 즉시 전달
//   - sync 구독자: 발행 시점에 인라인 전달
//   - async 구독자: 큐(깊이 제한) 경유, 가득 차면 드롭 + 경고
//   - 디스패처 미기동 시 async 구독자도 인라인 전달
type Bus struct {
	mu       sync.RWMutex
	async    map[contracts.EventType][]Handler
	inline   map[contracts.EventType][]Handler
	wildcard []Handler

	queue   chan contracts.Event
	running atomic.Bool
	dropped atomic.Int64
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger *logger.Logger
}

// New creates a bus with the given queue depth (<=0 uses DefaultQueueDepth)
func New(depth int, log *logger.Logger) *Bus {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		async:  make(map[contracts.EventType][]Handler),
		inline: make(map[contracts.EventType][]Handler),
		queue:  make(chan contracts.Event, depth),
		stopCh: make(chan struct{}),
		logger: log,
	}
}

// Subscribe registers an async handler for one event type
func (b *Bus) Subscribe(t contracts.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.async[t] = append(b.async[t], h)
}

// SubscribeSync registers an inline handler for one event type
func (b *Bus) SubscribeSync(t contracts.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inline[t] = append(b.inline[t], h)
}

// SubscribeAll registers an async handler for every event type
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, h)
}

// Publish delivers an event according to the delivery rules
func (b *Bus) Publish(evt contracts.Event) {
	if evt.Type.IsSafetyCritical() {
		b.PublishSync(evt)
		return
	}

	b.mu.RLock()
	syncHandlers := append([]Handler(nil), b.inline[evt.Type]...)
	b.mu.RUnlock()
	for _, h := range syncHandlers {
		b.invoke(h, evt)
	}

	if !b.running.Load() {
		b.dispatch(evt)
		return
	}

	select {
	case b.queue <- evt:
	default:
		n := b.dropped.Add(1)
		b.logger.WithFields(map[string]interface{}{
			"event_type": evt.Type,
			"dropped":    n,
		}).Warn("Event queue full, dropping event")
	}
}

// PublishSync delivers inline to every subscriber of the type, sync and async
func (b *Bus) PublishSync(evt contracts.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.inline[evt.Type])+len(b.async[evt.Type])+len(b.wildcard))
	handlers = append(handlers, b.inline[evt.Type]...)
	handlers = append(handlers, b.async[evt.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, evt)
	}
}

// Start runs the async dispatcher until ctx is done or Stop is called
func (b *Bus) Start(ctx context.Context) {
	if !b.running.CompareAndSwap(false, true) {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case evt := <-b.queue:
				b.dispatch(evt)
			case <-ctx.Done():
				b.drain()
				return
			case <-b.stopCh:
				b.drain()
				return
			}
		}
	}()

	b.logger.Info("Event bus started")
}

// Stop drains the queue and stops the dispatcher
func (b *Bus) Stop() {
	if !b.running.Load() {
		return
	}
	close(b.stopCh)
	b.wg.Wait()
	b.running.Store(false)

	b.logger.WithField("dropped", b.dropped.Load()).Info("Event bus stopped")
}

// Dropped returns the number of events dropped on backpressure
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// QueueDepth returns the number of queued events
func (b *Bus) QueueDepth() int {
	return len(b.queue)
}

func (b *Bus) drain() {
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		default:
			return
		}
	}
}

// dispatch delivers to async and wildcard subscribers
func (b *Bus) dispatch(evt contracts.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.async[evt.Type])+len(b.wildcard))
	handlers = append(handlers, b.async[evt.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, evt)
	}
}

// invoke runs a handler, recovering panics
func (b *Bus) invoke(h Handler, evt contracts.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(map[string]interface{}{
				"event_type": evt.Type,
				"event_id":   evt.ID,
				"panic":      fmt.Sprint(r),
			}).Error("Event handler panicked")
		}
	}()
	h(evt)
}
