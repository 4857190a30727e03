package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Events pushes repository change notifications over a WebSocket.
// The optional repo_id query parameter filters to one repository.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("repo_id")

	// Subscribe before the handshake completes so no change is missed.
	events, cancel := h.ws.Subscribe()
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithRequestID(r.Context()).Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	// Clients never send anything; reading only surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case n, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if filter != "" && n.RepoID != filter {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		}
	}
}
