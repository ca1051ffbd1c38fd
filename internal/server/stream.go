package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/plugin-registry/pkg/registry"
)

const streamLogPrefix = "server:stream"

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents streams invocation events as JSON text frames. ?group= limits the
// feed to one plugin group. Messages sent by the client are ignored; the feed
// ends when the client closes the connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, registry.NewRegistryError(registry.KindOperationNotFound, "event stream is not enabled"))
		return
	}
	group := r.URL.Query().Get("group")

	// Subscribe before the handshake completes so the client sees every event
	// published after its dial returns.
	feed, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - websocket upgrade failed: %v", streamLogPrefix, err))
		return
	}
	defer conn.Close()
	slog.Debug(fmt.Sprintf("%s - event stream opened by %s", streamLogPrefix, conn.RemoteAddr()))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug(fmt.Sprintf("%s - read: %v", streamLogPrefix, err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			if group != "" && ev.Group != group {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug(fmt.Sprintf("%s - write: %v", streamLogPrefix, err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
