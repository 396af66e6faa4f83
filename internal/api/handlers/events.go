package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/eventbus"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientQueueLen = 256
)

// EventStream fans engine events out to websocket clients
// ⭐ SSOT: 이벤트 스트리밍은 이 구조체에서만 (버스 와일드카드 구독 1개)
type EventStream struct {
	upgrader websocket.Upgrader
	limiter  *rate.Limiter // 연결 수립 속도 제한

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	logger  *logger.Logger
}

type streamClient struct {
	conn   *websocket.Conn
	send   chan contracts.Event
	types  map[contracts.EventType]bool // nil = 전체
	closed sync.Once
}

func (c *streamClient) wants(t contracts.EventType) bool {
	return c.types == nil || c.types[t]
}

func (c *streamClient) close() {
	c.closed.Do(func() { close(c.send) })
}

// NewEventStream subscribes to every bus event.
// connectsPerSecond bounds new connections (burst = 2x).
func NewEventStream(bus *eventbus.Bus, connectsPerSecond float64, log *logger.Logger) *EventStream {
	if connectsPerSecond <= 0 {
		connectsPerSecond = 5
	}
	s := &EventStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(connectsPerSecond), int(connectsPerSecond*2)+1),
		clients: make(map[*streamClient]struct{}),
		logger:  log,
	}
	bus.SubscribeAll(s.broadcast)
	return s
}

// Clients returns the number of connected clients
func (s *EventStream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stream upgrades the connection and streams events
// GET /ws/events?types=ORDER_FIRED,RISK_LIMIT_BREACHED
func (s *EventStream) Stream(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "Too many connection attempts")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &streamClient{
		conn:  conn,
		send:  make(chan contracts.Event, clientQueueLen),
		types: parseTypes(r.URL.Query().Get("types")),
	}
	s.register(c)

	go s.writePump(c)
	s.readPump(c)
}

// Close disconnects every client
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
	metrics.WSClients.Set(0)
}

// broadcast never blocks the bus: a full client queue drops the event for that client
func (s *EventStream) broadcast(evt contracts.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		if !c.wants(evt.Type) {
			continue
		}
		select {
		case c.send <- evt:
		default:
			s.logger.WithField("type", evt.Type).Warn("Websocket client queue full, event dropped")
		}
	}
}

func (s *EventStream) register(c *streamClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	s.logger.WithField("clients", n).Info("Websocket client connected")
}

func (s *EventStream) unregister(c *streamClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	n := len(s.clients)
	s.mu.Unlock()

	metrics.WSClients.Set(float64(n))
	s.logger.WithField("clients", n).Info("Websocket client disconnected")
}

// readPump discards client messages and detects disconnects
func (s *EventStream) readPump(c *streamClient) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("Websocket read error")
			}
			return
		}
	}
}

// writePump writes queued events and keepalive pings
func (s *EventStream) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseTypes parses a comma separated event type filter
func parseTypes(raw string) map[contracts.EventType]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[contracts.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[contracts.EventType(strings.ToUpper(t))] = true
		}
	}
	return out
}
