package broadcast

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair upgrades one server-side connection and dials it, returning both
// ends ready for use.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConns <- conn
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	serverConn := <-serverConns

	cleanup := func() {
		clientConn.Close()
		serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}

func readEvent(t *testing.T, conn *websocket.Conn) EventMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscribe(t *testing.T) {
	t.Run("should track viewers per canvas", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		serverConn, _, cleanup := wsPair(t)
		defer cleanup()

		client, err := hub.Subscribe("canvas-1", serverConn)
		require.NoError(t, err)
		assert.NotEmpty(t, client.ID)
		assert.Equal(t, 1, hub.ViewerCount("canvas-1"))
		assert.Equal(t, 0, hub.ViewerCount("canvas-2"))

		hub.Unsubscribe(client)
		assert.Equal(t, 0, hub.ViewerCount("canvas-1"))
	})

	t.Run("should announce presence on join", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		serverConn, clientConn, cleanup := wsPair(t)
		defer cleanup()

		_, err := hub.Subscribe("canvas-1", serverConn)
		require.NoError(t, err)

		msg := readEvent(t, clientConn)
		assert.Equal(t, EventPresence, msg.Event)
		assert.Equal(t, "canvas-1", msg.CanvasID)
	})
}

func TestPublish(t *testing.T) {
	t.Run("should deliver events to every subscriber of the canvas", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		serverA, clientA, cleanupA := wsPair(t)
		defer cleanupA()
		serverB, clientB, cleanupB := wsPair(t)
		defer cleanupB()

		_, err := hub.Subscribe("canvas-1", serverA)
		require.NoError(t, err)
		readEvent(t, clientA) // presence for A

		_, err = hub.Subscribe("canvas-1", serverB)
		require.NoError(t, err)
		readEvent(t, clientA) // presence for B
		readEvent(t, clientB)

		hub.Publish("canvas-1", EventNodeCreated, map[string]string{"id": "n1"})

		msgA := readEvent(t, clientA)
		msgB := readEvent(t, clientB)
		assert.Equal(t, EventNodeCreated, msgA.Event)
		assert.Equal(t, EventNodeCreated, msgB.Event)
		assert.Equal(t, msgA.Seq, msgB.Seq)
	})

	t.Run("should not cross canvases", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		serverConn, clientConn, cleanup := wsPair(t)
		defer cleanup()

		_, err := hub.Subscribe("canvas-1", serverConn)
		require.NoError(t, err)
		readEvent(t, clientConn) // own presence

		hub.Publish("canvas-2", EventNodeCreated, map[string]string{"id": "n1"})

		require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		var msg EventMessage
		err = clientConn.ReadJSON(&msg)
		assert.Error(t, err) // nothing should arrive
	})

	t.Run("should be a no-op with no subscribers", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		assert.NotPanics(t, func() {
			hub.Publish("canvas-1", EventNodeCreated, nil)
		})
	})

	t.Run("should use increasing sequence numbers", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		hub := NewHub(logger)

		serverConn, clientConn, cleanup := wsPair(t)
		defer cleanup()

		_, err := hub.Subscribe("canvas-1", serverConn)
		require.NoError(t, err)
		first := readEvent(t, clientConn)

		hub.Publish("canvas-1", EventNodeCreated, nil)
		second := readEvent(t, clientConn)

		assert.Greater(t, second.Seq, first.Seq)
	})
}
