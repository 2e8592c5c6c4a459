package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client adapts one websocket connection to the Subscriber interface.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

func NewClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Send writes a message to the websocket connection.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("Websocket send failed", zap.Error(err))
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler upgrades dashboard connections and keeps them registered
// with the hub until they disconnect.
func WebsocketHandler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade websocket connection", zap.Error(err))
			return
		}
		client := NewClient(conn, logger)
		hub.Register(client)

		// Reads only serve to detect disconnects; clients never send data.
		go func() {
			defer func() {
				hub.Unregister(client)
				client.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
