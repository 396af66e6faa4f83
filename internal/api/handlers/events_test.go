package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/flof/backend/internal/contracts"
	"github.com/wonny/flof/backend/internal/eventbus"
	"github.com/wonny/flof/backend/pkg/logger"
)

func TestEventStreamFiltersByType(t *testing.T) {
	bus := eventbus.New(16, logger.NewNop())
	stream := NewEventStream(bus, 10, logger.NewNop())
	defer stream.Close()

	srv := httptest.NewServer(http.HandlerFunc(stream.Stream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?types=order_fired"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(eventbus.NewEvent(contracts.EventStateTransition, "predator", 1, nil))
	bus.Publish(eventbus.NewEvent(contracts.EventOrderFired, "brain", 2, map[string]interface{}{"contracts": 7}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt contracts.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, contracts.EventOrderFired, evt.Type)
	assert.EqualValues(t, 2, evt.TimestampNs)
	assert.EqualValues(t, 7, evt.Payload["contracts"])

	stream.Close()
	assert.Zero(t, stream.Clients())
}

func TestEventStreamRateLimitsConnects(t *testing.T) {
	stream := NewEventStream(eventbus.New(16, logger.NewNop()), 1, logger.NewNop())
	defer stream.Close()

	// burst = 3: plain GETs fail the upgrade but still consume a token
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		stream.Stream(rec, httptest.NewRequest(http.MethodGet, "/ws/events", nil))
		codes = append(codes, rec.Code)
	}
	assert.NotEqual(t, http.StatusTooManyRequests, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestParseTypes(t *testing.T) {
	assert.Nil(t, parseTypes(" "))
	got := parseTypes("order_fired, RISK_LIMIT_BREACHED,,")
	assert.Equal(t, map[contracts.EventType]bool{
		contracts.EventOrderFired:        true,
		contracts.EventRiskLimitBreached: true,
	}, got)
}
