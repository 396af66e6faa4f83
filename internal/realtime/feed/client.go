package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/flof/backend/internal/realtime/health"
	"github.com/wonny/flof/backend/pkg/logger"
)

const (
	// Reconnect settings
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 1 * time.Minute

	// Ping/Pong settings
	pingInterval = 15 * time.Second
	pongWait     = 30 * time.Second
	writeWait    = 5 * time.Second
)

// ClientConfig configures the market data websocket
type ClientConfig struct {
	URL        string
	Instrument string
}

// subscribeMessage is sent after every (re)connect
type subscribeMessage struct {
	Action     string `json:"action"`
	Instrument string `json:"instrument"`
}

// Client streams ticks and bars from a websocket market data feed
// ⭐ SSOT: 실시간 시장 데이터 연결은 이 클라이언트에서만
type Client struct {
	cfg     ClientConfig
	handle  RecordHandler
	monitor *health.Monitor
	logger  *logger.Logger
	now     func() time.Time

	conn   *websocket.Conn
	connMu sync.RWMutex

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	reconnecting bool
	reconnectMu  sync.Mutex
	reconnects   int
}

// NewClient creates a websocket feed client.
// monitor may be nil when no health tracking is needed.
func NewClient(cfg ClientConfig, handle RecordHandler, monitor *health.Monitor, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		cfg:     cfg,
		handle:  handle,
		monitor: monitor,
		logger:  log,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start connects and starts the read/ping loops
func (c *Client) Start(ctx context.Context) error {
	c.logger.WithField("url", c.cfg.URL).Info("Starting feed client")

	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go c.readLoop(ctx)
	go c.pingLoop(ctx)

	return nil
}

// Stop closes the connection and waits for the read loop
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping feed client")
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	})
	<-c.doneCh
}

// Reconnects returns the number of successful reconnects
func (c *Client) Reconnects() int {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.reconnects
}

// connect dials the feed and subscribes to the instrument
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.logger.WithField("url", c.cfg.URL).Debug("Connecting to feed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if c.cfg.Instrument != "" {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Instrument: c.cfg.Instrument}); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.conn = conn
	c.logger.WithField("instrument", c.cfg.Instrument).Info("Connected to feed")
	return nil
}

// readLoop reads messages until stopped
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logger.WithError(err).Warn("Failed to read feed message")
			c.handleDisconnect(ctx)
			continue
		}

		if err := c.handleMessage(message); err != nil {
			c.logger.WithError(err).Error("Failed to handle feed message")
		}
	}
}

// handleMessage decodes one message and forwards it to the handler
func (c *Client) handleMessage(message []byte) error {
	rec, err := ParseRecord(message)
	if err != nil {
		return err
	}

	now := c.now()
	if c.monitor != nil {
		c.monitor.Heartbeat(health.SourceFeed, now)
		if ts := rec.TimestampNs(); ts > 0 {
			if latency := now.Sub(time.Unix(0, ts)); latency >= 0 {
				c.monitor.RecordLatency(health.SourceFeed, latency, now)
			}
		}
	}

	if rec.Type == RecordHeartbeat || c.handle == nil {
		return nil
	}
	return c.handle(rec)
}

// handleDisconnect reconnects with exponential backoff
func (c *Client) handleDisconnect(ctx context.Context) {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(ctx); err != nil {
			c.logger.WithError(err).WithField("delay", delay.String()).Error("Reconnect failed, retrying")

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		c.reconnectMu.Lock()
		c.reconnects++
		c.reconnectMu.Unlock()

		c.logger.Info("Reconnected to feed")
		return
	}
}

// pingLoop keeps the connection alive
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				c.logger.WithError(err).Warn("Failed to send ping")
			}
		}
	}
}
