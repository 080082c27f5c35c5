package admin

import (
	"net/http"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	streamBuffer = 64
)

// upgrader keeps gorilla's default same-origin check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Stream handles GET /stream. Each broker message is written to the socket
// as one JSON text frame. The client only needs to answer pings; anything
// it sends is discarded. A client too slow to keep up misses messages
// rather than holding up publishers.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	msgs, cancel := h.Broker.Subscribe(streamBuffer)
	defer cancel()

	h.Log.Info("admin stream opened", zap.String("remote", r.RemoteAddr))
	defer h.Log.Info("admin stream closed", zap.String("remote", r.RemoteAddr))

	closed := make(chan struct{})
	go readPump(conn, closed)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case m, ok := <-msgs:
			if !ok {
				writeClose(conn, websocket.CloseGoingAway)
				return
			}
			if err := writeMessage(conn, m); err != nil {
				h.Log.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, m broker.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}

func writeClose(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(writeWait))
}

// readPump services control frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
