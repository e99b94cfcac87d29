package gateway

import (
	"net/http"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// cross-origin checks happen at the edge proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection. ID doubles as the socket id recorded
// in the room registry.
type Client struct {
	ID   string
	gw   *Gateway
	conn *websocket.Conn
	send chan []byte
}

// ServeWS upgrades the request and starts the connection's pumps.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		obslog.L().Warn("ws_upgrade_error", zap.Error(err))
		return
	}
	c := &Client{
		ID:   uuid.NewString(),
		gw:   g,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	g.register(c)
	obslog.L().Info("socket_connect", zap.String("socket_id", c.ID))

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				obslog.L().Warn("ws_read_error", zap.String("socket_id", c.ID), zap.Error(err))
			}
			break
		}
		c.gw.handleMessage(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
