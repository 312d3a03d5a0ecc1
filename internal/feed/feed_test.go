package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stefanaltmann/markets-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, hub *Hub, asset string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/feed/:asset", hub.SubscribeHandler())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/feed/" + asset
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Wait for the hub to register the subscriber.
	require.Eventually(t, func() bool { return hub.ClientCount() > 0 },
		time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestHubBroadcastsConfirmations(t *testing.T) {
	hub := NewHub()
	conn := dialFeed(t, hub, "A")

	order := &types.Order{ID: 1, Asset: "A", Price: 10, Volume: 5, IsBid: true, Status: types.StatusActive}
	hub.ConfirmEnter(order)

	msg := readMessage(t, conn)
	assert.Equal(t, "enter_confirmation", msg.Type)
	assert.Equal(t, "A", msg.Asset)
	require.NotNil(t, msg.Order)
	assert.Equal(t, uint(1), msg.Order.ID)

	hub.ConfirmCancel(order)
	msg = readMessage(t, conn)
	assert.Equal(t, "cancel_confirmation", msg.Type)

	trade := &types.Trade{ID: 7, Asset: "A", TakingOrderID: 2}
	hub.ConfirmTrade(trade)
	msg = readMessage(t, conn)
	assert.Equal(t, "trade_confirmation", msg.Type)
	require.NotNil(t, msg.Trade)
	assert.Equal(t, uint(7), msg.Trade.ID)
}

func TestHubFiltersByAsset(t *testing.T) {
	hub := NewHub()
	conn := dialFeed(t, hub, "B")

	hub.ConfirmEnter(&types.Order{ID: 1, Asset: "A"})
	hub.ConfirmEnter(&types.Order{ID: 2, Asset: "B"})

	msg := readMessage(t, conn)
	assert.Equal(t, "B", msg.Asset)
	require.NotNil(t, msg.Order)
	assert.Equal(t, uint(2), msg.Order.ID)
}

func TestHubAllAssetsSubscription(t *testing.T) {
	hub := NewHub()
	conn := dialFeed(t, hub, "all")

	hub.ConfirmEnter(&types.Order{ID: 1, Asset: "A"})
	hub.ConfirmEnter(&types.Order{ID: 2, Asset: "B"})

	first := readMessage(t, conn)
	second := readMessage(t, conn)
	assert.Equal(t, "A", first.Asset)
	assert.Equal(t, "B", second.Asset)
}
