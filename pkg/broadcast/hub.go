package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Hub fans out named events to the current subscribers of each canvas.
// Delivery is at-most-once and best-effort: a failed write is logged and
// the event is not retried. Viewers who join later pull current state
// instead of replaying missed events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]*Client // canvasID -> clientID -> client
	logger  zerolog.Logger
	seq     uint64
}

// NewHub creates a new broadcast hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[string]*Client),
		logger:  logger,
	}
}

// Subscribe registers a websocket connection as a viewer of a canvas
func (h *Hub) Subscribe(canvasID string, conn *websocket.Conn) (*Client, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	client := NewClient(id, canvasID, conn)

	h.mu.Lock()
	if h.clients[canvasID] == nil {
		h.clients[canvasID] = make(map[string]*Client)
	}
	h.clients[canvasID][id] = client
	count := len(h.clients[canvasID])
	h.mu.Unlock()

	h.logger.Info().
		Str("canvasId", canvasID).
		Str("clientId", id).
		Int("viewers", count).
		Msg("Viewer subscribed")

	h.Publish(canvasID, EventPresence, map[string]interface{}{
		"viewers": count,
		"joined":  id,
	})

	return client, nil
}

// Unsubscribe removes a client from its canvas
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	if canvasClients, ok := h.clients[client.CanvasID]; ok {
		delete(canvasClients, client.ID)
		if len(canvasClients) == 0 {
			delete(h.clients, client.CanvasID)
		}
	}
	count := len(h.clients[client.CanvasID])
	h.mu.Unlock()

	h.logger.Info().
		Str("canvasId", client.CanvasID).
		Str("clientId", client.ID).
		Msg("Viewer unsubscribed")

	h.Publish(client.CanvasID, EventPresence, map[string]interface{}{
		"viewers": count,
		"left":    client.ID,
	})
}

// ViewerCount returns the number of subscribers on a canvas
func (h *Hub) ViewerCount(canvasID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[canvasID])
}

// Publish sends a named event to all current subscribers of a canvas
func (h *Hub) Publish(canvasID, event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		CanvasID:  canvasID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       h.nextSeq(),
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[canvasID]))
	for _, client := range h.clients[canvasID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	successCount := 0
	failureCount := 0
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to viewer")
			failureCount++
		} else {
			successCount++
		}
	}

	h.logger.Debug().
		Str("canvasId", canvasID).
		Str("event", event).
		Int64("seq", msg.Seq).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")
}

func (h *Hub) nextSeq() int64 {
	return int64(atomic.AddUint64(&h.seq, 1))
}
