package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/stefanaltmann/markets-api/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Message is one confirmation pushed over the feed.
type Message struct {
	Type      string       `json:"type"` // enter_confirmation, trade_confirmation, cancel_confirmation
	Asset     string       `json:"asset"`
	Order     *types.Order `json:"order,omitempty"`
	Trade     *types.Trade `json:"trade,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Hub broadcasts matching-engine confirmations to websocket subscribers. It
// implements the engine's Sink interface: confirmations arrive after the
// triggering operation has committed and are delivered best-effort, so a
// slow consumer is dropped rather than allowed to stall the engine.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id    string
	asset string // empty subscribes to every asset
	conn  *websocket.Conn
	send  chan []byte
}

// NewHub creates an empty feed hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// SubscribeHandler upgrades the request to a websocket subscribed to the
// asset named in the route, or to all assets when the asset is "all".
func (h *Hub) SubscribeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("feed upgrade failed")
			return
		}

		asset := c.Param("asset")
		if asset == "all" {
			asset = ""
		}

		cl := &client{
			id:    uuid.New().String(),
			asset: asset,
			conn:  conn,
			send:  make(chan []byte, sendBufferSize),
		}

		h.mu.Lock()
		h.clients[cl] = struct{}{}
		h.mu.Unlock()

		log.Info().Str("client_id", cl.id).Str("asset", asset).Msg("feed client connected")

		go h.writePump(cl)
		go h.readPump(cl)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConfirmEnter pushes an enter confirmation for a freshly resting order.
func (h *Hub) ConfirmEnter(order *types.Order) {
	h.broadcast(order.Asset, Message{
		Type:      "enter_confirmation",
		Asset:     order.Asset,
		Order:     order,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ConfirmTrade pushes a trade confirmation with the taking order and every
// making order's filled volume.
func (h *Hub) ConfirmTrade(trade *types.Trade) {
	h.broadcast(trade.Asset, Message{
		Type:      "trade_confirmation",
		Asset:     trade.Asset,
		Trade:     trade,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ConfirmCancel pushes a cancel confirmation.
func (h *Hub) ConfirmCancel(order *types.Order) {
	h.broadcast(order.Asset, Message{
		Type:      "cancel_confirmation",
		Asset:     order.Asset,
		Order:     order,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) broadcast(asset string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("marshal feed message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if cl.asset != "" && cl.asset != asset {
			continue
		}
		select {
		case cl.send <- payload:
		default:
			// Subscriber is not keeping up; closing send makes the write
			// pump shut the connection down.
			log.Warn().Str("client_id", cl.id).Msg("dropping slow feed client")
			go h.remove(cl)
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	// Closed under the lock so no concurrent broadcast can be mid-send.
	close(cl.send)
	h.mu.Unlock()

	log.Info().Str("client_id", cl.id).Msg("feed client disconnected")
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(cl *client) {
	defer h.remove(cl)

	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The feed is one-way; reads only drain control frames and detect
	// disconnects.
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
