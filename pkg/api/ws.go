package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers connect from arbitrary origins; auth happens via the
	// shared secret on the API routes, not the stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")

	if _, err := s.canvases.GetCanvas(r.Context(), canvasID); err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get canvas")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("canvas_id", canvasID).Msg("WebSocket upgrade failed")
		return
	}

	client, err := s.hub.Subscribe(canvasID, conn)
	if err != nil {
		s.logger.Error().Err(err).Str("canvas_id", canvasID).Msg("Subscribe failed")
		conn.Close()
		return
	}

	s.logger.Debug().
		Str("client_id", client.ID).
		Str("canvas_id", canvasID).
		Msg("Viewer connected")

	done := make(chan struct{})
	go s.pingLoop(conn, done)
	s.readLoop(client, conn, done)
}

// readLoop drains inbound frames until the peer disconnects. Viewers are
// read-only; anything they send is discarded.
func (s *Server) readLoop(client *broadcast.Client, conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		s.hub.Unsubscribe(client)
		conn.Close()
		s.logger.Debug().
			Str("client_id", client.ID).
			Str("canvas_id", client.CanvasID).
			Msg("Viewer disconnected")
	}()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
