package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one connected viewer on one canvas stream
type Client struct {
	ID          string
	CanvasID    string
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewClient wraps a websocket connection
func NewClient(id, canvasID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:          id,
		CanvasID:    canvasID,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// WriteJSON writes a message to the client. Writes are serialized because
// broadcasts and per-connection replies share the websocket.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}
